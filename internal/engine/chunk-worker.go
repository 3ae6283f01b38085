package engine

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tanq16/rangeflow/internal/utils"
)

// errStopped marks a cooperative exit observed mid-stream. It never leaves
// the worker.
var errStopped = errors.New("stop requested")

type chunkWorker struct {
	index      int
	rng        utils.ByteRange
	partPath   string
	link       string
	client     *utils.RangeClient
	progress   *progressTracker
	token      stopToken
	attempts   int
	backoff    time.Duration
	bufferSize int
	log        zerolog.Logger
}

// run downloads the worker's range into its part file. A nil return covers
// both a completed range and a cooperative stop; the coordinator tells them
// apart through the execution flags.
func (w *chunkWorker) run() error {
	file, err := os.OpenFile(w.partPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error opening part file: %w", err)
	}
	defer file.Close()
	if err := utils.LockFile(file, true); err != nil {
		w.log.Error().Err(err).Msg("Part file already owned by another writer")
		return err
	}
	defer utils.UnlockFile(file)

	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * w.backoff
			w.log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("Retrying chunk")
			if !w.token.Sleep(delay) {
				return nil
			}
		}
		if w.token.Stopped() {
			return nil
		}
		err := w.fetch(file)
		if err == nil || errors.Is(err, errStopped) {
			return nil
		}
		if w.token.Stopped() {
			// the read was torn down by pause, cancel or a failing sibling
			return nil
		}
		if errors.Is(err, utils.ErrRangeNotSupported) {
			w.log.Error().Err(err).Msg("Server ignored range request")
			return err
		}
		lastErr = err
		w.log.Warn().Err(err).Int("attempt", attempt).Msg("Chunk attempt failed")
	}
	return fmt.Errorf("chunk %d failed after %d attempts: %w", w.index, w.attempts, lastErr)
}

// fetch resumes the range from the bytes already present in the part file.
func (w *chunkWorker) fetch(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("error inspecting part file: %w", err)
	}
	offset := info.Size()
	if offset >= w.rng.Length() {
		return nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking part file: %w", err)
	}

	request := utils.ByteRange{Start: w.rng.Start + offset, End: w.rng.End}
	resp, err := w.client.OpenRange(w.token.ctx, w.link, request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if request.Start != 0 {
			return fmt.Errorf("%w: got 200 for %s", utils.ErrRangeNotSupported, request.Header())
		}
	default:
		return fmt.Errorf("%w: %d", utils.ErrUnexpectedStatus, resp.StatusCode)
	}

	remaining := request.Length()
	written, err := w.stream(file, resp.Body, remaining)
	if err != nil {
		return err
	}
	if written != remaining {
		return fmt.Errorf("%w: expected %d bytes, got %d", utils.ErrSizeMismatch, remaining, written)
	}
	return nil
}

// stream copies up to remaining bytes from src into dst. Every byte that
// reaches dst is counted, including those of a write that failed partway,
// since the next attempt resumes from the part file's size.
func (w *chunkWorker) stream(dst io.Writer, src io.Reader, remaining int64) (int64, error) {
	reader := io.LimitReader(src, remaining)
	buffer := make([]byte, w.bufferSize)
	var written int64
	for written < remaining {
		if w.token.Stopped() {
			return written, errStopped
		}
		n, readErr := reader.Read(buffer)
		if n > 0 {
			wn, err := dst.Write(buffer[:n])
			if wn > 0 {
				written += int64(wn)
				w.progress.Add(int64(wn))
			}
			if err != nil {
				return written, fmt.Errorf("error writing part file: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, fmt.Errorf("error reading chunk: %w", readErr)
		}
	}
	return written, nil
}
