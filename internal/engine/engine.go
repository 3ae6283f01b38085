package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tanq16/rangeflow/internal/prober"
	"github.com/tanq16/rangeflow/internal/scheduler"
	"github.com/tanq16/rangeflow/internal/store"
	"github.com/tanq16/rangeflow/internal/utils"
)

// Prober resolves a URL to the metadata a task needs.
type Prober interface {
	Probe(ctx context.Context, link string) (*prober.Resource, error)
}

type Options struct {
	StorageRoot      string
	DefaultWorkers   int
	MaxDownloads     int
	QueueSize        int
	RetryAttempts    int
	RetryBackoff     time.Duration
	ProgressInterval time.Duration
	BufferSize       int
}

func (o *Options) setDefaults() {
	if o.StorageRoot == "" {
		o.StorageRoot = "downloads"
	}
	if o.DefaultWorkers == 0 {
		o.DefaultWorkers = 4
	}
	if o.MaxDownloads == 0 {
		o.MaxDownloads = 4
	}
	if o.QueueSize == 0 {
		o.QueueSize = 16
	}
	if o.RetryAttempts == 0 {
		o.RetryAttempts = utils.DefaultRetryAttempts
	}
	if o.RetryBackoff == 0 {
		o.RetryBackoff = utils.DefaultRetryBackoff
	}
	if o.ProgressInterval == 0 {
		o.ProgressInterval = utils.DefaultProgressInterval
	}
	if o.BufferSize == 0 {
		o.BufferSize = utils.DefaultBufferSize
	}
}

type StartRequest struct {
	URL      string
	FileName string
	Workers  int
}

// Progress is the externally visible snapshot of a task.
type Progress struct {
	ID              string           `json:"id"`
	FileName        string           `json:"fileName"`
	URL             string           `json:"url"`
	FileSize        int64            `json:"fileSize"`
	DownloadedBytes int64            `json:"downloadedBytes"`
	Percent         float64          `json:"percent"`
	DownloadSpeed   float64          `json:"downloadSpeed"`
	Status          utils.TaskStatus `json:"status"`
	Workers         int              `json:"numberOfThreads"`
	CreatedAt       time.Time        `json:"createdAt"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
}

func progressOf(task utils.DownloadTask) Progress {
	p := Progress{
		ID:              task.ID,
		FileName:        task.FileName,
		URL:             task.URL,
		FileSize:        task.FileSize,
		DownloadedBytes: task.DownloadedBytes,
		DownloadSpeed:   task.DownloadSpeed,
		Status:          task.Status,
		Workers:         task.Workers,
		CreatedAt:       task.CreatedAt,
		CompletedAt:     task.CompletedAt,
	}
	if task.FileSize > 0 {
		p.Percent = float64(task.DownloadedBytes) * 100 / float64(task.FileSize)
	}
	return p
}

// Engine runs download tasks held in a TaskStore.
type Engine struct {
	store     store.TaskStore
	prober    Prober
	client    *utils.RangeClient
	scheduler *scheduler.Scheduler
	registry  *registry
	startMu   sync.Mutex
	opts      Options
	log       zerolog.Logger
}

// New builds an engine and starts its execution pool.
func New(st store.TaskStore, p Prober, client *utils.RangeClient, opts Options) *Engine {
	opts.setDefaults()
	e := &Engine{
		store:     st,
		prober:    p,
		client:    client,
		scheduler: scheduler.New(opts.MaxDownloads, opts.QueueSize),
		registry:  newRegistry(),
		opts:      opts,
		log:       utils.GetLogger("engine"),
	}
	e.scheduler.Start(context.Background())
	return e
}

// Close stops accepting work and interrupts running executions.
func (e *Engine) Close() {
	e.scheduler.Stop()
}

// Start probes the source, records a QUEUED task and schedules it. It
// returns as soon as the task is queued.
func (e *Engine) Start(ctx context.Context, req StartRequest) (utils.DownloadTask, error) {
	resource, err := e.prober.Probe(ctx, req.URL)
	if err != nil {
		return utils.DownloadTask{}, err
	}
	workers := req.Workers
	if workers == 0 {
		workers = e.opts.DefaultWorkers
	}
	workers = utils.ClampWorkers(workers)
	if !resource.AcceptRanges {
		workers = 1
	}
	if int64(workers) > resource.Size {
		workers = int(resource.Size)
	}

	name := utils.SanitizeFileName(req.FileName)
	if name == "" {
		name = utils.SanitizeFileName(resource.FileName)
	}
	if name == "" {
		name = utils.FallbackFileName()
	}
	if err := os.MkdirAll(e.opts.StorageRoot, 0755); err != nil {
		return utils.DownloadTask{}, fmt.Errorf("error creating storage root: %w", err)
	}

	e.startMu.Lock()
	defer e.startMu.Unlock()
	outputPath := e.freeOutputPath(filepath.Join(e.opts.StorageRoot, name))

	task := utils.DownloadTask{
		URL:         req.URL,
		ResolvedURL: resource.ResolvedURL,
		FileName:    filepath.Base(outputPath),
		FilePath:    outputPath,
		FileSize:    resource.Size,
		Status:      utils.StatusQueued,
		Workers:     workers,
		CreatedAt:   time.Now(),
	}
	id, err := e.store.Create(task)
	if err != nil {
		return utils.DownloadTask{}, fmt.Errorf("error recording task: %w", err)
	}
	if err := e.submit(id); err != nil {
		e.store.Delete(id)
		return utils.DownloadTask{}, err
	}
	e.log.Info().Str("task", id).Str("file", task.FileName).Int64("size", task.FileSize).Int("workers", workers).Msg("Download queued")
	return e.store.Get(id)
}

// freeOutputPath steps around files on disk and paths claimed by tasks that
// have not finished yet.
func (e *Engine) freeOutputPath(outputPath string) string {
	claimed := make(map[string]bool)
	for _, task := range e.store.List() {
		if !task.Status.Terminal() {
			claimed[task.FilePath] = true
		}
	}
	return utils.RenewOutputPath(outputPath, func(candidate string) bool { return claimed[candidate] })
}

func (e *Engine) submit(id string) error {
	err := e.scheduler.Submit(scheduler.Job{
		ID:  id,
		Run: func(ctx context.Context) { e.execute(ctx, id) },
	})
	if errors.Is(err, scheduler.ErrQueueFull) || errors.Is(err, scheduler.ErrStopped) {
		return fmt.Errorf("%w: %w", utils.ErrTooManyDownloads, err)
	}
	return err
}

// Pause asks a DOWNLOADING task to stop and keep its part files.
func (e *Engine) Pause(id string) error {
	var x *execution
	err := e.store.Update(id, func(task *utils.DownloadTask) error {
		if task.Status != utils.StatusDownloading {
			return fmt.Errorf("%w: cannot pause task in status %s", utils.ErrInvalidTransition, task.Status)
		}
		x = e.registry.get(id)
		task.Status = utils.StatusPaused
		task.DownloadSpeed = 0
		return nil
	})
	if err != nil {
		return err
	}
	if x != nil {
		x.requestPause()
	}
	e.log.Info().Str("task", id).Msg("Pause requested")
	return nil
}

// Resume re-queues a PAUSED task for a fresh execution attempt.
func (e *Engine) Resume(id string) error {
	err := e.store.Update(id, func(task *utils.DownloadTask) error {
		if task.Status != utils.StatusPaused {
			return fmt.Errorf("%w: cannot resume task in status %s", utils.ErrInvalidTransition, task.Status)
		}
		task.Status = utils.StatusQueued
		return nil
	})
	if err != nil {
		return err
	}
	if err := e.submit(id); err != nil {
		e.store.Update(id, func(task *utils.DownloadTask) error {
			if task.Status == utils.StatusQueued {
				task.Status = utils.StatusPaused
			}
			return nil
		})
		return err
	}
	e.log.Info().Str("task", id).Msg("Download resumed")
	return nil
}

// Cancel stops a task for good. Part files are removed once the workers have
// exited, or right away when nothing is running.
func (e *Engine) Cancel(id string) error {
	var x *execution
	var outputPath string
	err := e.store.Update(id, func(task *utils.DownloadTask) error {
		if !utils.CanTransition(task.Status, utils.StatusCancelled) || task.Status == utils.StatusCancelled {
			return fmt.Errorf("%w: cannot cancel task in status %s", utils.ErrInvalidTransition, task.Status)
		}
		x = e.registry.get(id)
		outputPath = task.FilePath
		task.Status = utils.StatusCancelled
		task.DownloadSpeed = 0
		return nil
	})
	if err != nil {
		return err
	}
	if x != nil {
		x.requestCancel()
		// the attempt may have settled as PAUSED just before the flag landed
		go func() {
			<-x.done
			if task, err := e.store.Get(id); err == nil && task.Status == utils.StatusCancelled {
				e.removeParts(id, outputPath)
			}
		}()
	} else {
		e.removeParts(id, outputPath)
	}
	e.log.Info().Str("task", id).Msg("Download cancelled")
	return nil
}

// Delete removes the task record along with its output and part files.
func (e *Engine) Delete(id string) error {
	task, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if x := e.registry.get(id); x != nil {
		x.requestCancel()
		<-x.done
	}
	if err := e.store.Delete(id); err != nil {
		return err
	}
	var errs []error
	if err := utils.CleanParts(task.FilePath); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(task.FilePath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	e.log.Info().Str("task", id).Msg("Download deleted")
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("task deleted but files remain: %w", err)
	}
	return nil
}

func (e *Engine) removeParts(id, outputPath string) {
	if err := utils.CleanParts(outputPath); err != nil {
		e.log.Warn().Err(err).Str("task", id).Msg("Failed to remove part files")
	}
}

func (e *Engine) GetProgress(id string) (Progress, error) {
	task, err := e.store.Get(id)
	if err != nil {
		return Progress{}, err
	}
	return progressOf(task), nil
}

func (e *Engine) List() []Progress {
	tasks := e.store.List()
	result := make([]Progress, 0, len(tasks))
	for _, task := range tasks {
		result = append(result, progressOf(task))
	}
	return result
}
