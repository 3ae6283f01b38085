package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tanq16/rangeflow/internal/utils"
)

// execute runs one attempt of a task, from QUEUED to a settled status.
func (e *Engine) execute(ctx context.Context, id string) {
	log := e.log.With().Str("task", id).Logger()
	x, err := e.registry.register(ctx, id)
	if err != nil {
		log.Warn().Err(err).Msg("Execution abandoned before start")
		return
	}
	defer e.registry.release(x)

	var task utils.DownloadTask
	err = e.store.Update(id, func(t *utils.DownloadTask) error {
		if t.Status != utils.StatusQueued {
			return fmt.Errorf("%w: task left the queue as %s", utils.ErrInvalidTransition, t.Status)
		}
		t.Status = utils.StatusDownloading
		t.DownloadSpeed = 0
		task = *t
		return nil
	})
	if errors.Is(err, utils.ErrInvalidTransition) {
		log.Debug().Err(err).Msg("Skipping execution")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Could not start execution, task stays queued")
		return
	}
	log.Info().Str("file", task.FileName).Msg("Download started")

	if err := os.MkdirAll(utils.TempDir(task.FilePath), 0755); err != nil {
		e.settleFailed(id, fmt.Errorf("error creating temp directory: %w", err))
		return
	}
	ranges := PlanRanges(task.FileSize, task.Workers)
	resumed, err := preparePartFiles(task.FilePath, ranges)
	if err != nil {
		e.settleFailed(id, err)
		return
	}
	e.store.Update(id, func(t *utils.DownloadTask) error {
		t.DownloadedBytes = resumed
		return nil
	})
	if resumed > 0 {
		log.Debug().Int64("resumed", resumed).Msg("Reusing part files from previous attempt")
	}

	progress := newProgressTracker(resumed, e.opts.ProgressInterval, func(downloaded int64, speed float64) {
		e.reportProgress(id, downloaded, speed)
	})
	g, gctx := errgroup.WithContext(x.ctx)
	g.SetLimit(task.Workers)
	token := stopToken{exec: x, ctx: gctx}
	results := make([]chan error, len(ranges))
	for i, r := range ranges {
		results[i] = make(chan error, 1)
		worker := &chunkWorker{
			index:      i,
			rng:        r,
			partPath:   utils.PartPath(task.FilePath, i),
			link:       task.SourceURL(),
			client:     e.client,
			progress:   progress,
			token:      token,
			attempts:   e.opts.RetryAttempts,
			backoff:    e.opts.RetryBackoff,
			bufferSize: e.opts.BufferSize,
			log:        log.With().Int("chunk", i).Logger(),
		}
		g.Go(func() error {
			err := worker.run()
			results[i] <- err
			return err
		})
	}

	for i := range results {
		if err := <-results[i]; err != nil {
			g.Wait()
			e.settleFailed(id, fmt.Errorf("chunk %d: %w", i, err))
			return
		}
		if x.cancelRequested.Load() {
			g.Wait()
			e.settleCancelled(id, task.FilePath)
			return
		}
		if x.pauseRequested.Load() {
			g.Wait()
			e.settlePaused(id, task.FilePath, progress.Downloaded())
			return
		}
	}
	g.Wait()
	switch {
	case x.cancelRequested.Load():
		e.settleCancelled(id, task.FilePath)
		return
	case x.pauseRequested.Load():
		e.settlePaused(id, task.FilePath, progress.Downloaded())
		return
	case ctx.Err() != nil:
		e.settleFailed(id, errors.New("interrupted by shutdown"))
		return
	}

	if err := mergeParts(task.FilePath, ranges, task.FileSize); err != nil {
		e.settleFailed(id, fmt.Errorf("merge failed: %w", err))
		return
	}
	e.removeParts(id, task.FilePath)
	e.settleCompleted(id, task.FilePath, task.FileSize)
}

// reportProgress never lets a late report move the counter backwards.
func (e *Engine) reportProgress(id string, downloaded int64, speed float64) {
	e.store.Update(id, func(t *utils.DownloadTask) error {
		if t.Status != utils.StatusDownloading {
			return nil
		}
		t.DownloadedBytes = max(t.DownloadedBytes, min(downloaded, t.FileSize))
		t.DownloadSpeed = speed
		return nil
	})
}

// transition applies a validated status change.
func (e *Engine) transition(id string, to utils.TaskStatus, mutate func(*utils.DownloadTask)) error {
	return e.store.Update(id, func(t *utils.DownloadTask) error {
		if !utils.CanTransition(t.Status, to) {
			return fmt.Errorf("%w: cannot move task from %s to %s", utils.ErrInvalidTransition, t.Status, to)
		}
		t.Status = to
		t.DownloadSpeed = 0
		if mutate != nil {
			mutate(t)
		}
		return nil
	})
}

// settleCompleted records a merged download. A cancel that landed while the
// parts were merging wins, and the merged output is removed.
func (e *Engine) settleCompleted(id, outputPath string, fileSize int64) {
	err := e.transition(id, utils.StatusCompleted, func(t *utils.DownloadTask) {
		t.DownloadedBytes = fileSize
		if t.CompletedAt == nil {
			now := time.Now()
			t.CompletedAt = &now
		}
	})
	if err == nil {
		e.log.Info().Str("task", id).Msg("Download completed")
		return
	}
	if task, getErr := e.store.Get(id); getErr == nil && task.Status == utils.StatusCancelled {
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			e.log.Warn().Err(err).Str("task", id).Msg("Failed to remove output of cancelled download")
		}
		e.log.Info().Str("task", id).Msg("Download cancelled during merge")
		return
	}
	e.log.Warn().Err(err).Str("task", id).Msg("Could not record completion")
}

func (e *Engine) settleFailed(id string, cause error) {
	e.log.Error().Err(cause).Str("task", id).Msg("Download failed")
	err := e.transition(id, utils.StatusFailed, func(t *utils.DownloadTask) {
		if t.CompletedAt == nil {
			now := time.Now()
			t.CompletedAt = &now
		}
	})
	if err != nil {
		e.log.Debug().Err(err).Str("task", id).Msg("Failure not recorded")
	}
}

func (e *Engine) settleCancelled(id, outputPath string) {
	if err := e.transition(id, utils.StatusCancelled, nil); err != nil {
		e.log.Debug().Err(err).Str("task", id).Msg("Cancellation not recorded")
	}
	e.removeParts(id, outputPath)
}

// settlePaused keeps the part files unless a cancel overtook the pause.
func (e *Engine) settlePaused(id, outputPath string, downloaded int64) {
	err := e.transition(id, utils.StatusPaused, func(t *utils.DownloadTask) {
		t.DownloadedBytes = max(t.DownloadedBytes, min(downloaded, t.FileSize))
	})
	if err == nil {
		e.log.Info().Str("task", id).Int64("downloaded", downloaded).Msg("Download paused")
		return
	}
	if task, getErr := e.store.Get(id); getErr == nil && task.Status == utils.StatusCancelled {
		e.settleCancelled(id, outputPath)
		return
	}
	e.log.Debug().Err(err).Str("task", id).Msg("Pause not recorded")
}
