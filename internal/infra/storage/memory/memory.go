// Package memory provides an in-memory TaskRepository for running
// without a database and for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/justin2061/drivefetch/internal/core/domain"
	"github.com/justin2061/drivefetch/internal/infra/storage"
)

// TaskStore implements storage.TaskRepository in memory.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*domain.Task)}
}

func (s *TaskStore) Save(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrTaskNotFound
	}
	cp := *task
	return &cp, nil
}

func (s *TaskStore) List(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if status != "" && task.Status != status {
			continue
		}
		cp := *task
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TaskStore) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return storage.ErrTaskNotFound
	}
	task.Status = status
	task.ErrorMessage = errMsg
	switch status {
	case domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled:
		task.CompletedAt = time.Now()
	}
	return nil
}

func (s *TaskStore) UpdateProgress(ctx context.Context, id string, downloaded, failed int, downloadedBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return storage.ErrTaskNotFound
	}
	task.DownloadedCount = downloaded
	task.FailedCount = failed
	task.DownloadedBytes = downloadedBytes
	return nil
}

func (s *TaskStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, task := range s.tasks {
		switch task.Status {
		case domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled:
			if !task.CompletedAt.IsZero() && task.CompletedAt.Before(cutoff) {
				delete(s.tasks, id)
				removed++
			}
		}
	}
	return removed, nil
}
