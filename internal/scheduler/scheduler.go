package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/tanq16/rangeflow/internal/utils"
)

var (
	ErrQueueFull = errors.New("execution queue is full")
	ErrStopped   = errors.New("scheduler stopped")
)

// Job is one download execution attempt.
type Job struct {
	ID  string
	Run func(ctx context.Context)
}

// Scheduler runs whole download executions on a fixed set of workers fed by
// a bounded queue. Submissions beyond the queue capacity are rejected.
type Scheduler struct {
	workers int
	jobCh   chan Job
	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(workers, queueSize int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Scheduler{
		workers: workers,
		jobCh:   make(chan Job, queueSize),
	}
}

// Start launches the workers. Cancelling ctx interrupts running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for i := range s.workers {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			s.processJobs(ctx, workerID)
		}(i)
	}
}

// Submit enqueues a job without blocking.
func (s *Scheduler) Submit(job Job) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrStopped
	}
	select {
	case s.jobCh <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new jobs, interrupts running ones and waits for the workers.
// Jobs still queued are handed a cancelled context so they settle quickly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.jobCh)
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) processJobs(ctx context.Context, workerID int) {
	log := utils.GetLogger("scheduler").With().Int("worker", workerID).Logger()
	for job := range s.jobCh {
		log.Debug().Str("task", job.ID).Msg("Running job")
		job.Run(ctx)
		log.Debug().Str("task", job.ID).Msg("Job finished")
	}
}
