package engine

import (
	"sync/atomic"
	"time"
)

// progressTracker accumulates bytes written by all workers of one execution
// attempt and pushes a throttled report at most once per interval. The
// throttle is shared across the task's workers, not held per worker.
type progressTracker struct {
	downloaded atomic.Int64
	lastReport atomic.Int64 // unix nanoseconds
	lastBytes  atomic.Int64
	interval   time.Duration
	report     func(downloaded int64, speed float64)
}

func newProgressTracker(initial int64, interval time.Duration, report func(int64, float64)) *progressTracker {
	p := &progressTracker{interval: interval, report: report}
	p.downloaded.Store(initial)
	p.lastBytes.Store(initial)
	p.lastReport.Store(time.Now().UnixNano())
	return p
}

// Add records n freshly written bytes. Exactly one caller wins the report for
// an interval; everyone else only bumps the counter.
func (p *progressTracker) Add(n int64) {
	total := p.downloaded.Add(n)
	now := time.Now().UnixNano()
	last := p.lastReport.Load()
	elapsed := time.Duration(now - last)
	if elapsed < p.interval || elapsed <= 0 {
		return
	}
	if !p.lastReport.CompareAndSwap(last, now) {
		return
	}
	previous := p.lastBytes.Swap(total)
	if p.report != nil {
		p.report(total, float64(total-previous)/elapsed.Seconds())
	}
}

func (p *progressTracker) Downloaded() int64 {
	return p.downloaded.Load()
}
