package domain

import "time"

// TaskStatus is the lifecycle state of a download task.
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskPreparing   TaskStatus = "preparing"
	TaskDownloading TaskStatus = "downloading"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
	TaskCancelled   TaskStatus = "cancelled"
	TaskPaused      TaskStatus = "paused"
)

// Task is a download job for a single file or a whole folder.
type Task struct {
	ID              string
	Name            string
	SourceID        string
	OutputPath      string
	Status          TaskStatus
	CreatedAt       time.Time
	StartedAt       time.Time
	CompletedAt     time.Time
	FileCount       int
	DownloadedCount int
	FailedCount     int
	TotalBytes      int64
	DownloadedBytes int64
	ErrorMessage    string
	PreferredFormat string
}
