package engine

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func generateTestData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// testSource serves data with range support. It can fail the first requests
// for a given range start and hold every response after lead bytes until
// hold is closed.
type testSource struct {
	data     []byte
	noRanges bool
	lead     int
	hold     chan struct{}

	mu       sync.Mutex
	failures map[int64]int
	requests []string
	leadSent atomic.Int32
}

func newTestSource(t *testing.T, data []byte) (*testSource, *httptest.Server) {
	t.Helper()
	src := &testSource{data: data, failures: make(map[int64]int)}
	server := httptest.NewServer(src)
	t.Cleanup(server.Close)
	t.Cleanup(src.release)
	return src, server
}

func (s *testSource) failFirst(start int64, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[start] = times
}

func (s *testSource) holdAfter(lead int) {
	s.lead = lead
	s.hold = make(chan struct{})
}

func (s *testSource) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold != nil {
		select {
		case <-s.hold:
		default:
			close(s.hold)
		}
	}
}

func (s *testSource) rangeRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *testSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	size := int64(len(s.data))
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		if !s.noRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		return
	}

	rangeHeader := r.Header.Get("Range")
	if s.noRanges || rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Write(s.data)
		return
	}
	parts := strings.Split(strings.TrimPrefix(rangeHeader, "bytes="), "-")
	start, _ := strconv.ParseInt(parts[0], 10, 64)
	end, _ := strconv.ParseInt(parts[1], 10, 64)
	if end >= size {
		end = size - 1
	}

	s.mu.Lock()
	s.requests = append(s.requests, rangeHeader)
	fail := s.failures[start] > 0
	if fail {
		s.failures[start]--
	}
	s.mu.Unlock()
	if fail {
		http.Error(w, "flaky", http.StatusInternalServerError)
		return
	}

	body := s.data[start : end+1]
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusPartialContent)
	if s.hold != nil && s.lead < len(body) {
		w.Write(body[:s.lead])
		w.(http.Flusher).Flush()
		s.leadSent.Add(1)
		select {
		case <-s.hold:
		case <-r.Context().Done():
			return
		}
		body = body[s.lead:]
	}
	w.Write(body)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
