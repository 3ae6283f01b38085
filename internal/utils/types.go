package utils

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	StatusQueued      TaskStatus = "QUEUED"
	StatusDownloading TaskStatus = "DOWNLOADING"
	StatusPaused      TaskStatus = "PAUSED"
	StatusCancelled   TaskStatus = "CANCELLED"
	StatusCompleted   TaskStatus = "COMPLETED"
	StatusFailed      TaskStatus = "FAILED"
)

// Terminal reports whether the status ends an execution attempt for good.
func (s TaskStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusFailed
}

var transitions = map[TaskStatus][]TaskStatus{
	StatusQueued:      {StatusDownloading, StatusCancelled},
	StatusDownloading: {StatusPaused, StatusCancelled, StatusCompleted, StatusFailed},
	StatusPaused:      {StatusQueued, StatusCancelled, StatusCompleted, StatusFailed},
	StatusCancelled:   {},
	StatusCompleted:   {},
	StatusFailed:      {},
}

// CanTransition reports whether a task may move from one status to another.
// Writing the same status again is always allowed.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DownloadTask is the record kept by the task store.
type DownloadTask struct {
	ID              string     `json:"id" yaml:"id"`
	URL             string     `json:"url" yaml:"url"`
	ResolvedURL     string     `json:"-" yaml:"resolved_url"`
	FileName        string     `json:"fileName" yaml:"file_name"`
	FilePath        string     `json:"filePath" yaml:"file_path"`
	FileSize        int64      `json:"fileSize" yaml:"file_size"`
	DownloadedBytes int64      `json:"downloadedBytes" yaml:"downloaded_bytes"`
	DownloadSpeed   float64    `json:"downloadSpeed" yaml:"download_speed"`
	Status          TaskStatus `json:"status" yaml:"status"`
	Workers         int        `json:"numberOfThreads" yaml:"workers"`
	CreatedAt       time.Time  `json:"createdAt" yaml:"created_at"`
	CompletedAt     *time.Time `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
}

// SourceURL is the URL chunk workers fetch from.
func (t DownloadTask) SourceURL() string {
	if t.ResolvedURL != "" {
		return t.ResolvedURL
	}
	return t.URL
}

// ByteRange is an inclusive [Start, End] slice of the remote resource.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// ClampWorkers bounds a requested worker count to [MinWorkers, MaxWorkers].
func ClampWorkers(n int) int {
	return max(MinWorkers, min(n, MaxWorkers))
}
