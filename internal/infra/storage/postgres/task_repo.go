package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/justin2061/drivefetch/internal/core/domain"
	"github.com/justin2061/drivefetch/internal/infra/storage"
)

// TaskRepo implements storage.TaskRepository using PostgreSQL.
type TaskRepo struct {
	db *DB
}

// NewTaskRepo creates a new PostgreSQL task repository.
func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// taskRow is the database shape of a task.
type taskRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	SourceID        string         `db:"source_id"`
	OutputPath      string         `db:"output_path"`
	Status          string         `db:"status"`
	CreatedAt       time.Time      `db:"created_at"`
	StartedAt       sql.NullTime   `db:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	FileCount       int            `db:"file_count"`
	DownloadedCount int            `db:"downloaded_count"`
	FailedCount     int            `db:"failed_count"`
	TotalBytes      int64          `db:"total_bytes"`
	DownloadedBytes int64          `db:"downloaded_bytes"`
	ErrorMessage    sql.NullString `db:"error_message"`
	PreferredFormat sql.NullString `db:"preferred_format"`
}

func (r taskRow) toDomain() *domain.Task {
	t := &domain.Task{
		ID:              r.ID,
		Name:            r.Name,
		SourceID:        r.SourceID,
		OutputPath:      r.OutputPath,
		Status:          domain.TaskStatus(r.Status),
		CreatedAt:       r.CreatedAt,
		FileCount:       r.FileCount,
		DownloadedCount: r.DownloadedCount,
		FailedCount:     r.FailedCount,
		TotalBytes:      r.TotalBytes,
		DownloadedBytes: r.DownloadedBytes,
		ErrorMessage:    r.ErrorMessage.String,
		PreferredFormat: r.PreferredFormat.String,
	}
	if r.StartedAt.Valid {
		t.StartedAt = r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		t.CompletedAt = r.CompletedAt.Time
	}
	return t
}

func fromDomain(t *domain.Task) taskRow {
	r := taskRow{
		ID:              t.ID,
		Name:            t.Name,
		SourceID:        t.SourceID,
		OutputPath:      t.OutputPath,
		Status:          string(t.Status),
		CreatedAt:       t.CreatedAt,
		FileCount:       t.FileCount,
		DownloadedCount: t.DownloadedCount,
		FailedCount:     t.FailedCount,
		TotalBytes:      t.TotalBytes,
		DownloadedBytes: t.DownloadedBytes,
	}
	if !t.StartedAt.IsZero() {
		r.StartedAt = sql.NullTime{Time: t.StartedAt, Valid: true}
	}
	if !t.CompletedAt.IsZero() {
		r.CompletedAt = sql.NullTime{Time: t.CompletedAt, Valid: true}
	}
	if t.ErrorMessage != "" {
		r.ErrorMessage = sql.NullString{String: t.ErrorMessage, Valid: true}
	}
	if t.PreferredFormat != "" {
		r.PreferredFormat = sql.NullString{String: t.PreferredFormat, Valid: true}
	}
	return r
}

// Save inserts or updates a task.
func (r *TaskRepo) Save(ctx context.Context, task *domain.Task) error {
	const query = `
		INSERT INTO download_tasks (
			id, name, source_id, output_path, status, created_at,
			started_at, completed_at, file_count, downloaded_count,
			failed_count, total_bytes, downloaded_bytes, error_message,
			preferred_format
		) VALUES (
			:id, :name, :source_id, :output_path, :status, :created_at,
			:started_at, :completed_at, :file_count, :downloaded_count,
			:failed_count, :total_bytes, :downloaded_bytes, :error_message,
			:preferred_format
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			file_count = EXCLUDED.file_count,
			downloaded_count = EXCLUDED.downloaded_count,
			failed_count = EXCLUDED.failed_count,
			total_bytes = EXCLUDED.total_bytes,
			downloaded_bytes = EXCLUDED.downloaded_bytes,
			error_message = EXCLUDED.error_message`

	if _, err := r.db.NamedExecContext(ctx, query, fromDomain(task)); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID.
func (r *TaskRepo) Get(ctx context.Context, id string) (*domain.Task, error) {
	var row taskRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM download_tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return row.toDomain(), nil
}

// List retrieves recent tasks, newest first.
func (r *TaskRepo) List(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []taskRow
	var err error
	if status != "" {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT * FROM download_tasks WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
			string(status), limit)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT * FROM download_tasks ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*domain.Task, len(rows))
	for i, row := range rows {
		tasks[i] = row.toDomain()
	}
	return tasks, nil
}

// UpdateStatus updates a task's status and error message.
func (r *TaskRepo) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, errMsg string) error {
	var msg sql.NullString
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE download_tasks
		SET status = $2,
		    error_message = $3,
		    completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled')
		                        THEN now() ELSE completed_at END
		WHERE id = $1`,
		id, string(status), msg)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrTaskNotFound
	}
	return nil
}

// UpdateProgress updates a task's running counters.
func (r *TaskRepo) UpdateProgress(ctx context.Context, id string, downloaded, failed int, downloadedBytes int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE download_tasks
		SET downloaded_count = $2, failed_count = $3, downloaded_bytes = $4
		WHERE id = $1`,
		id, downloaded, failed, downloadedBytes)
	if err != nil {
		return fmt.Errorf("failed to update task progress: %w", err)
	}
	return nil
}

// DeleteOlderThan removes terminal tasks completed before the cutoff.
func (r *TaskRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM download_tasks
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND completed_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
