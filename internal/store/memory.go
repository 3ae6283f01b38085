package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tanq16/rangeflow/internal/utils"
)

// Memory is a process-local TaskStore.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]*utils.DownloadTask
	// beforeCommit sees the records a write would leave behind and can veto
	// the write. It runs under the write lock.
	beforeCommit func(records []utils.DownloadTask, statusChanged bool) error
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*utils.DownloadTask)}
}

func (m *Memory) Create(task utils.DownloadTask) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if _, exists := m.tasks[task.ID]; exists {
		return "", fmt.Errorf("task %s already exists", task.ID)
	}
	if err := m.commit(task.ID, cloneTask(task), true); err != nil {
		return "", err
	}
	m.tasks[task.ID] = cloneTask(task)
	return task.ID, nil
}

func (m *Memory) Get(id string) (utils.DownloadTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, exists := m.tasks[id]
	if !exists {
		return utils.DownloadTask{}, fmt.Errorf("%w: %s", utils.ErrTaskNotFound, id)
	}
	return *cloneTask(*task), nil
}

// List returns all tasks ordered by creation time.
func (m *Memory) List() []utils.DownloadTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedTasks(m.tasks, "", nil)
}

// sortedTasks copies tasks in creation order with the record for id swapped
// for next. A nil next drops the record.
func sortedTasks(records map[string]*utils.DownloadTask, id string, next *utils.DownloadTask) []utils.DownloadTask {
	tasks := make([]utils.DownloadTask, 0, len(records)+1)
	for key, task := range records {
		if id != "" && key == id {
			continue
		}
		tasks = append(tasks, *cloneTask(*task))
	}
	if id != "" && next != nil {
		tasks = append(tasks, *cloneTask(*next))
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

func (m *Memory) Update(id string, mutate func(*utils.DownloadTask) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, exists := m.tasks[id]
	if !exists {
		return fmt.Errorf("%w: %s", utils.ErrTaskNotFound, id)
	}
	working := cloneTask(*task)
	if err := mutate(working); err != nil {
		return err
	}
	working.ID = id
	changed := task.Status != working.Status || (task.CompletedAt == nil) != (working.CompletedAt == nil)
	if err := m.commit(id, working, changed); err != nil {
		return err
	}
	m.tasks[id] = working
	return nil
}

func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[id]; !exists {
		return fmt.Errorf("%w: %s", utils.ErrTaskNotFound, id)
	}
	if err := m.commit(id, nil, true); err != nil {
		return err
	}
	delete(m.tasks, id)
	return nil
}

// commit offers the pending write to beforeCommit. The caller holds the
// write lock and applies the write only on a nil return.
func (m *Memory) commit(id string, next *utils.DownloadTask, statusChanged bool) error {
	if m.beforeCommit == nil {
		return nil
	}
	return m.beforeCommit(sortedTasks(m.tasks, id, next), statusChanged)
}

func (m *Memory) restore(tasks []utils.DownloadTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range tasks {
		m.tasks[task.ID] = cloneTask(task)
	}
}

func cloneTask(task utils.DownloadTask) *utils.DownloadTask {
	c := task
	if task.CompletedAt != nil {
		t := *task.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
