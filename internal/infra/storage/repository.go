package storage

import (
	"context"
	"errors"
	"time"

	"github.com/justin2061/drivefetch/internal/core/domain"
)

var (
	// ErrTaskNotFound is returned when a task doesn't exist
	ErrTaskNotFound = errors.New("task not found")
)

// TaskRepository persists download task history.
type TaskRepository interface {
	// Save inserts or updates a task
	Save(ctx context.Context, task *domain.Task) error

	// Get retrieves a task by ID
	Get(ctx context.Context, id string) (*domain.Task, error)

	// List retrieves recent tasks, newest first. A non-positive limit
	// defaults to 50; status filters when non-empty.
	List(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error)

	// UpdateStatus updates a task's status and error message
	UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, errMsg string) error

	// UpdateProgress updates a task's running counters
	UpdateProgress(ctx context.Context, id string, downloaded, failed int, downloadedBytes int64) error

	// DeleteOlderThan removes terminal tasks completed before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
