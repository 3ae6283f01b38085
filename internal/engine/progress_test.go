package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestProgressTrackerThrottles(t *testing.T) {
	var reports atomic.Int32
	p := newProgressTracker(100, time.Hour, func(int64, float64) { reports.Add(1) })
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				p.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := p.Downloaded(); got != 8100 {
		t.Errorf("Downloaded = %d, want 8100", got)
	}
	if reports.Load() != 0 {
		t.Errorf("got %d reports inside one interval", reports.Load())
	}
}

func TestProgressTrackerReportsSpeed(t *testing.T) {
	var mu sync.Mutex
	var totals []int64
	var speeds []float64
	p := newProgressTracker(0, 20*time.Millisecond, func(downloaded int64, speed float64) {
		mu.Lock()
		defer mu.Unlock()
		totals = append(totals, downloaded)
		speeds = append(speeds, speed)
	})
	p.Add(500)
	time.Sleep(30 * time.Millisecond)
	p.Add(500)
	p.Add(500)

	mu.Lock()
	defer mu.Unlock()
	if len(totals) != 1 {
		t.Fatalf("got %d reports, want 1", len(totals))
	}
	if totals[0] != 1000 {
		t.Errorf("reported %d, want 1000", totals[0])
	}
	if speeds[0] <= 0 || speeds[0] > 1000/0.03 {
		t.Errorf("speed = %f out of range", speeds[0])
	}
}
