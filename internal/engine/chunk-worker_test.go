package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tanq16/rangeflow/internal/utils"
)

func newTestWorker(t *testing.T, link string, r utils.ByteRange) (*chunkWorker, *execution) {
	t.Helper()
	x := newExecution(context.Background(), "test")
	t.Cleanup(x.cancel)
	partPath := filepath.Join(t.TempDir(), "file.bin.part0")
	return &chunkWorker{
		rng:        r,
		partPath:   partPath,
		link:       link,
		client:     utils.NewRangeClient(utils.HTTPClientConfig{ReadTimeout: 5 * time.Second}),
		progress:   newProgressTracker(0, time.Hour, nil),
		token:      stopToken{exec: x, ctx: x.ctx},
		attempts:   3,
		backoff:    time.Millisecond,
		bufferSize: 1024,
		log:        zerolog.Nop(),
	}, x
}

func TestChunkWorkerDownloadsRange(t *testing.T) {
	data := generateTestData(10_000)
	_, server := newTestSource(t, data)
	w, _ := newTestWorker(t, server.URL, utils.ByteRange{Start: 2500, End: 4999})

	if err := w.run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	got, _ := os.ReadFile(w.partPath)
	if !bytes.Equal(got, data[2500:5000]) {
		t.Errorf("part holds %d bytes, not the requested range", len(got))
	}
	if w.progress.Downloaded() != 2500 {
		t.Errorf("progress = %d, want 2500", w.progress.Downloaded())
	}
}

func TestChunkWorkerRetriesThenSucceeds(t *testing.T) {
	data := generateTestData(4096)
	src, server := newTestSource(t, data)
	src.failFirst(1024, 2)
	w, _ := newTestWorker(t, server.URL, utils.ByteRange{Start: 1024, End: 2047})

	if err := w.run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	got, _ := os.ReadFile(w.partPath)
	if !bytes.Equal(got, data[1024:2048]) {
		t.Error("range content wrong after retries")
	}
	if n := len(src.rangeRequests()); n != 3 {
		t.Errorf("server saw %d requests, want 3", n)
	}
}

func TestChunkWorkerGivesUpAfterThreeAttempts(t *testing.T) {
	data := generateTestData(4096)
	src, server := newTestSource(t, data)
	src.failFirst(0, 3)
	w, _ := newTestWorker(t, server.URL, utils.ByteRange{Start: 0, End: 1023})

	err := w.run()
	if !errors.Is(err, utils.ErrUnexpectedStatus) {
		t.Fatalf("run = %v, want ErrUnexpectedStatus", err)
	}
	if n := len(src.rangeRequests()); n != 3 {
		t.Errorf("server saw %d requests, want 3", n)
	}
}

func TestChunkWorkerResumesFromPartFile(t *testing.T) {
	data := generateTestData(4096)
	src, server := newTestSource(t, data)
	w, _ := newTestWorker(t, server.URL, utils.ByteRange{Start: 1000, End: 2999})
	if err := os.WriteFile(w.partPath, data[1000:1500], 0644); err != nil {
		t.Fatal(err)
	}

	if err := w.run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	requests := src.rangeRequests()
	if len(requests) != 1 || requests[0] != "bytes=1500-2999" {
		t.Errorf("requests = %v, want [bytes=1500-2999]", requests)
	}
	got, _ := os.ReadFile(w.partPath)
	if !bytes.Equal(got, data[1000:3000]) {
		t.Error("resumed part content wrong")
	}
}

func TestChunkWorkerLockConflict(t *testing.T) {
	data := generateTestData(1024)
	src, server := newTestSource(t, data)
	w, _ := newTestWorker(t, server.URL, utils.ByteRange{Start: 0, End: 1023})

	holder, err := os.OpenFile(w.partPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if err := utils.LockFile(holder, true); err != nil {
		t.Fatalf("LockFile: %v", err)
	}
	defer utils.UnlockFile(holder)

	if err := w.run(); !errors.Is(err, utils.ErrLockConflict) {
		t.Fatalf("run = %v, want ErrLockConflict", err)
	}
	if n := len(src.rangeRequests()); n != 0 {
		t.Errorf("lock conflict must not reach the network, saw %d requests", n)
	}
}

func TestChunkWorkerRejectsIgnoredRange(t *testing.T) {
	data := generateTestData(1024)
	src, server := newTestSource(t, data)
	src.noRanges = true
	w, _ := newTestWorker(t, server.URL, utils.ByteRange{Start: 512, End: 1023})

	if err := w.run(); !errors.Is(err, utils.ErrRangeNotSupported) {
		t.Fatalf("run = %v, want ErrRangeNotSupported", err)
	}
}

func TestChunkWorkerStopsCooperatively(t *testing.T) {
	data := generateTestData(100_000)
	src, server := newTestSource(t, data)
	src.holdAfter(4096)
	w, x := newTestWorker(t, server.URL, utils.ByteRange{Start: 0, End: 99_999})

	done := make(chan error, 1)
	go func() { done <- w.run() }()
	waitFor(t, "first bytes", func() bool { return src.leadSent.Load() == 1 })
	x.requestPause()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("pause should be a clean exit, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	info, err := os.Stat(w.partPath)
	if err != nil {
		t.Fatalf("part file removed: %v", err)
	}
	if info.Size() > 4096 {
		t.Errorf("part grew to %d after pause", info.Size())
	}
}

// shortWriter accepts limit bytes and then fails partway through a write.
type shortWriter struct {
	buf   bytes.Buffer
	limit int
}

func (s *shortWriter) Write(p []byte) (int, error) {
	room := s.limit - s.buf.Len()
	if len(p) <= room {
		return s.buf.Write(p)
	}
	s.buf.Write(p[:room])
	return room, errors.New("disk full")
}

func TestChunkWorkerCountsBytesOfFailedWrite(t *testing.T) {
	w, _ := newTestWorker(t, "", utils.ByteRange{Start: 0, End: 4095})
	dst := &shortWriter{limit: 1500}

	written, err := w.stream(dst, bytes.NewReader(generateTestData(4096)), 4096)
	if err == nil {
		t.Fatal("expected write failure")
	}
	if written != 1500 || w.progress.Downloaded() != 1500 {
		t.Errorf("written = %d, progress = %d, want both 1500", written, w.progress.Downloaded())
	}
	if dst.buf.Len() != 1500 {
		t.Errorf("destination holds %d bytes", dst.buf.Len())
	}
}
