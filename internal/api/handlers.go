package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tanq16/rangeflow/internal/engine"
	"github.com/tanq16/rangeflow/internal/prober"
	"github.com/tanq16/rangeflow/internal/utils"
)

// Downloads is the engine surface the command layer drives.
type Downloads interface {
	Start(ctx context.Context, req engine.StartRequest) (utils.DownloadTask, error)
	Pause(id string) error
	Resume(id string) error
	Cancel(id string) error
	Delete(id string) error
	GetProgress(id string) (engine.Progress, error)
	List() []engine.Progress
}

type startBody struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	Workers  int    `json:"numberOfThreads"`
}

type Handler struct {
	downloads Downloads
	mux       *http.ServeMux
}

func NewHandler(downloads Downloads) *Handler {
	h := &Handler{downloads: downloads, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/downloads", h.start)
	h.mux.HandleFunc("GET /api/downloads", h.list)
	h.mux.HandleFunc("GET /api/downloads/{id}", h.progress)
	h.mux.HandleFunc("POST /api/downloads/{id}/pause", h.control(downloads.Pause))
	h.mux.HandleFunc("POST /api/downloads/{id}/resume", h.control(downloads.Resume))
	h.mux.HandleFunc("POST /api/downloads/{id}/cancel", h.control(downloads.Cancel))
	h.mux.HandleFunc("DELETE /api/downloads/{id}", h.remove)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := utils.GetLogger("api")
	log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("Request")
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if body.Workers < 0 {
		writeError(w, http.StatusBadRequest, "numberOfThreads must not be negative")
		return
	}
	task, err := h.downloads.Start(r.Context(), engine.StartRequest{
		URL:      body.URL,
		FileName: body.FileName,
		Workers:  body.Workers,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.downloads.List())
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.downloads.GetProgress(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// control wraps a signal operation. The response carries the status seen
// right after the signal was issued, not the settled one.
func (h *Handler) control(op func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := op(id); err != nil {
			writeEngineError(w, err)
			return
		}
		p, err := h.downloads.GetProgress(id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.downloads.Delete(r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, utils.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, utils.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, utils.ErrTooManyDownloads):
		status = http.StatusServiceUnavailable
	case errors.Is(err, utils.ErrInvalidURL), errors.Is(err, utils.ErrUnknownSize):
		status = http.StatusBadRequest
	case errors.Is(err, prober.ErrProbeFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log := utils.GetLogger("api")
		log.Error().Err(err).Msg("Request failed")
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := utils.GetLogger("api")
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
