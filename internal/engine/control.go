package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// execution is the control context of one attempt at a task. It carries the
// pause and cancel flags and the context that interrupts in-flight reads.
// It is dropped from the registry when the attempt settles.
type execution struct {
	taskID          string
	ctx             context.Context
	cancel          context.CancelFunc
	cancelRequested atomic.Bool
	pauseRequested  atomic.Bool
	done            chan struct{}
}

func newExecution(parent context.Context, taskID string) *execution {
	ctx, cancel := context.WithCancel(parent)
	return &execution{taskID: taskID, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

func (x *execution) requestCancel() {
	x.cancelRequested.Store(true)
	x.cancel()
}

func (x *execution) requestPause() {
	x.pauseRequested.Store(true)
	x.cancel()
}

// flagged reports whether pause or cancel was asked for.
func (x *execution) flagged() bool {
	return x.cancelRequested.Load() || x.pauseRequested.Load()
}

// stopToken is handed to chunk workers. It trips on either flag or when the
// worker group context ends because a sibling failed or the engine closed.
type stopToken struct {
	exec *execution
	ctx  context.Context
}

func (t stopToken) Stopped() bool {
	return t.exec.flagged() || t.ctx.Err() != nil
}

// Sleep waits for d and reports false if the token tripped first.
func (t stopToken) Sleep(d time.Duration) bool {
	if d <= 0 {
		return !t.Stopped()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !t.Stopped()
	case <-t.ctx.Done():
		return false
	}
}

// registry tracks the live execution of every task. At most one execution
// per task is registered at a time.
type registry struct {
	mu     sync.Mutex
	active map[string]*execution
}

func newRegistry() *registry {
	return &registry{active: make(map[string]*execution)}
}

// register creates the execution for taskID, first waiting for any previous
// attempt of the same task to release.
func (r *registry) register(parent context.Context, taskID string) (*execution, error) {
	for {
		r.mu.Lock()
		previous, busy := r.active[taskID]
		if !busy {
			x := newExecution(parent, taskID)
			r.active[taskID] = x
			r.mu.Unlock()
			return x, nil
		}
		r.mu.Unlock()
		select {
		case <-previous.done:
		case <-parent.Done():
			return nil, parent.Err()
		}
	}
}

func (r *registry) get(taskID string) *execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[taskID]
}

func (r *registry) release(x *execution) {
	r.mu.Lock()
	if r.active[x.taskID] == x {
		delete(r.active, x.taskID)
	}
	r.mu.Unlock()
	x.cancel()
	close(x.done)
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
