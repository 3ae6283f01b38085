package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tanq16/rangeflow/internal/utils"
)

type snapshotFile struct {
	Tasks []utils.DownloadTask `yaml:"tasks"`
}

// YAMLFile is a Memory store that snapshots records to a YAML file whenever a
// task is created, deleted or changes status. Progress-only updates ride along
// with the next snapshot. A write whose snapshot cannot be saved is not
// applied.
type YAMLFile struct {
	*Memory
	path string
}

// OpenYAMLFile loads path if it exists. Tasks that were still active when the
// file was written are marked FAILED, since resume only works within the
// owning process.
func OpenYAMLFile(path string) (*YAMLFile, error) {
	s := &YAMLFile{Memory: NewMemory(), path: path}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read task store: %w", err)
	}
	if err == nil {
		var snap snapshotFile
		if err := yaml.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parse task store: %w", err)
		}
		now := time.Now()
		for i := range snap.Tasks {
			if !snap.Tasks[i].Status.Terminal() {
				snap.Tasks[i].Status = utils.StatusFailed
				snap.Tasks[i].DownloadSpeed = 0
				if snap.Tasks[i].CompletedAt == nil {
					snap.Tasks[i].CompletedAt = &now
				}
			}
		}
		s.restore(snap.Tasks)
	}
	if err := s.persist(s.List()); err != nil {
		return nil, err
	}
	s.beforeCommit = func(records []utils.DownloadTask, statusChanged bool) error {
		if !statusChanged {
			return nil
		}
		return s.persist(records)
	}
	return s, nil
}

func (s *YAMLFile) persist(records []utils.DownloadTask) error {
	data, err := yaml.Marshal(snapshotFile{Tasks: records})
	if err != nil {
		return fmt.Errorf("encode task store: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create task store directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write task store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("finalize task store: %w", err)
	}
	return nil
}
