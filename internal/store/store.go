package store

import "github.com/tanq16/rangeflow/internal/utils"

// TaskStore persists download task records. Update applies mutate atomically.
// When mutate fails, or the result cannot be persisted, the record is left
// as it was and the error is returned.
type TaskStore interface {
	Create(task utils.DownloadTask) (string, error)
	Get(id string) (utils.DownloadTask, error)
	List() []utils.DownloadTask
	Update(id string, mutate func(*utils.DownloadTask) error) error
	Delete(id string) error
}
