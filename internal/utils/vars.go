package utils

import (
	"errors"
	"regexp"
	"time"
)

const (
	DefaultBufferSize       = 8 * 1024 // 8KB read buffer per chunk worker
	DefaultUserAgent        = "Mozilla/5.0"
	DefaultConnectTimeout   = 30 * time.Second
	DefaultReadTimeout      = 30 * time.Second
	DefaultKATimeout        = 90 * time.Second
	DefaultRetryAttempts    = 3
	DefaultRetryBackoff     = 2 * time.Second
	DefaultProgressInterval = 500 * time.Millisecond
	MinWorkers              = 1
	MaxWorkers              = 16
	TempDirName             = "temp"
	LogFile                 = ".rangeflow.log"
)

var (
	ErrTaskNotFound      = errors.New("download task not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrTooManyDownloads  = errors.New("too many concurrent downloads")
	ErrLockConflict      = errors.New("part file is locked by another writer")
	ErrRangeNotSupported = errors.New("range requests are not supported")
	ErrSizeMismatch      = errors.New("size mismatch")
	ErrUnexpectedStatus  = errors.New("unexpected status code")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrUnknownSize       = errors.New("could not determine file size or file is empty")
)

var ChunkIDRegex = regexp.MustCompile(`\.part(\d+)$`)
var filenameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)
