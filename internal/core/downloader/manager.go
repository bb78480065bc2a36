// Package downloader runs download tasks: it resolves a file or folder
// into a flat file list, fetches the content through a bounded worker
// pool, and records task history.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justin2061/drivefetch/internal/core/convert"
	"github.com/justin2061/drivefetch/internal/core/domain"
	"github.com/justin2061/drivefetch/internal/core/driveid"
	"github.com/justin2061/drivefetch/internal/core/loader"
	"github.com/justin2061/drivefetch/internal/core/progress"
	"github.com/justin2061/drivefetch/internal/core/retry"
	"github.com/justin2061/drivefetch/internal/infra/drive"
	"github.com/justin2061/drivefetch/internal/infra/storage"
	"github.com/justin2061/drivefetch/internal/metrics"
)

const (
	defaultConcurrency = 5

	// markerTTL is how long a completed-download marker suppresses a
	// repeat fetch of the same file.
	markerTTL = 24 * time.Hour

	// maxFolderDepth bounds recursive folder traversal.
	maxFolderDepth = 20
)

// Service is the slice of the Drive API the downloader consumes.
type Service interface {
	loader.Service
	Download(ctx context.Context, fileID string, w io.Writer) (int64, error)
	Export(ctx context.Context, fileID, mimeType string, w io.Writer) (int64, error)
}

// Markers deduplicates downloads across processes. Implemented by the
// Redis listing store; optional.
type Markers interface {
	MarkDownloaded(ctx context.Context, fileID, taskID string, ttl time.Duration) error
	IsDownloaded(ctx context.Context, fileID string) (taskID string, ok bool, err error)
}

// item is one file scheduled for download, with its directory relative
// to the task output root.
type item struct {
	file   *domain.File
	relDir string
}

// taskState is the in-flight bookkeeping for one task.
type taskState struct {
	task    *domain.Task
	tracker *progress.Tracker
	cancel  context.CancelFunc
	paused  bool
}

// Manager owns download tasks from creation to completion. Safe for
// concurrent use.
type Manager struct {
	svc         Service
	repo        storage.TaskRepository
	markers     Markers
	engine      *retry.Engine
	concurrency int
	outputRoot  string

	mu    sync.Mutex
	tasks map[string]*taskState
	wg    sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithMarkers enables cross-process download dedup.
func WithMarkers(m Markers) Option {
	return func(mgr *Manager) { mgr.markers = m }
}

// WithEngine substitutes the retry engine used per file.
func WithEngine(e *retry.Engine) Option {
	return func(mgr *Manager) { mgr.engine = e }
}

// WithConcurrency bounds simultaneous file downloads per task.
func WithConcurrency(n int) Option {
	return func(mgr *Manager) { mgr.concurrency = n }
}

// WithOutputRoot sets the directory task output paths are resolved
// against.
func WithOutputRoot(dir string) Option {
	return func(mgr *Manager) { mgr.outputRoot = dir }
}

// NewManager creates a download manager.
func NewManager(svc Service, repo storage.TaskRepository, opts ...Option) *Manager {
	m := &Manager{
		svc:         svc,
		repo:        repo,
		concurrency: defaultConcurrency,
		outputRoot:  ".",
		tasks:       make(map[string]*taskState),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.concurrency <= 0 {
		m.concurrency = defaultConcurrency
	}
	if m.engine == nil {
		m.engine = retry.New(retry.DefaultPolicy())
	}
	return m
}

// CreateTask registers a new pending task for a file or folder. The
// source may be a bare ID or a Drive URL embedding one.
func (m *Manager) CreateTask(ctx context.Context, name, sourceID, outputPath, preferredFormat string) (*domain.Task, error) {
	if !driveid.Valid(sourceID) {
		if id := driveid.FromURL(sourceID); driveid.Valid(id) {
			sourceID = id
		} else {
			return nil, &drive.ValidationError{
				Field: "source_id", Value: sourceID, Message: "invalid file ID format",
			}
		}
	}
	if name == "" {
		name = sourceID
	}

	task := &domain.Task{
		ID:              uuid.NewString(),
		Name:            name,
		SourceID:        sourceID,
		OutputPath:      outputPath,
		Status:          domain.TaskPending,
		CreatedAt:       time.Now(),
		PreferredFormat: preferredFormat,
	}

	if err := m.repo.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to persist task: %w", err)
	}

	m.mu.Lock()
	m.tasks[task.ID] = &taskState{task: task, tracker: progress.NewTracker(task.ID)}
	m.mu.Unlock()

	slog.Info("task created", "task", task.ID, "source", sourceID, "name", name)
	return cloneTask(task), nil
}

// StartTask begins executing a pending or paused task in the
// background. ctx only bounds startup; the download itself runs until
// completion, cancellation, or Shutdown.
func (m *Manager) StartTask(ctx context.Context, id string) error {
	m.mu.Lock()
	state, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return storage.ErrTaskNotFound
	}
	switch state.task.Status {
	case domain.TaskPending, domain.TaskPaused:
	default:
		m.mu.Unlock()
		return fmt.Errorf("task %s is %s, not startable", id, state.task.Status)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	state.cancel = cancel
	state.paused = false
	// A resumed task restarts its progress accounting from zero.
	state.tracker = progress.NewTracker(id)
	state.task.Status = domain.TaskPreparing
	state.task.StartedAt = time.Now()
	state.tracker.SetStatus(domain.TaskPreparing)
	m.mu.Unlock()

	m.persist(ctx, state.task)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(runCtx, state)
	}()

	slog.Info("task started", "task", id)
	return nil
}

// run executes one task end to end.
func (m *Manager) run(ctx context.Context, state *taskState) {
	task := state.task

	items, totalBytes, err := m.prepare(ctx, task)
	if err != nil {
		m.finish(state, domain.TaskFailed, err)
		return
	}

	m.mu.Lock()
	task.FileCount = len(items)
	task.TotalBytes = totalBytes
	task.Status = domain.TaskDownloading
	m.mu.Unlock()
	state.tracker.SetTotal(len(items), totalBytes)
	state.tracker.SetStatus(domain.TaskDownloading)
	m.persist(ctx, task)

	slog.Info("task prepared", "task", task.ID, "files", len(items), "bytes", totalBytes)

	var (
		sem     = make(chan struct{}, m.concurrency)
		wg      sync.WaitGroup
		mu      sync.Mutex
		failed  int
		fetched int
	)

	for _, it := range items {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(it item) {
			defer wg.Done()
			defer func() { <-sem }()

			err := m.downloadOne(ctx, state, it)

			mu.Lock()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					failed++
					state.tracker.IncrementError()
					slog.Error("file download failed",
						"task", task.ID, "file", it.file.ID, "error", err)
				}
			} else {
				fetched++
			}
			downloaded, bytes := fetched, state.tracker.Snapshot().DownloadedBytes
			fcount := failed
			mu.Unlock()

			m.mu.Lock()
			task.DownloadedCount = downloaded
			task.FailedCount = fcount
			task.DownloadedBytes = bytes
			m.mu.Unlock()
			_ = m.repo.UpdateProgress(context.Background(), task.ID, downloaded, fcount, bytes)
		}(it)
	}
	wg.Wait()

	if ctx.Err() != nil {
		m.mu.Lock()
		paused := state.paused
		m.mu.Unlock()
		if paused {
			m.finish(state, domain.TaskPaused, nil)
		} else {
			m.finish(state, domain.TaskCancelled, ctx.Err())
		}
		return
	}

	// Partial failures still complete the task; the counts tell the story.
	m.finish(state, domain.TaskCompleted, nil)
}

// prepare resolves the source into the flat list of files to download.
// Folders are walked recursively; sub-folder structure is preserved in
// the output directory.
func (m *Manager) prepare(ctx context.Context, task *domain.Task) ([]item, int64, error) {
	info, err := m.svc.GetFile(ctx, task.SourceID, domain.DefaultFields)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to resolve source: %w", err)
	}

	var items []item
	if info.IsFolder() {
		items, err = m.collect(ctx, info.ID, "", 0)
		if err != nil {
			return nil, 0, err
		}
	} else {
		items = []item{{file: info}}
	}

	var total int64
	for _, it := range items {
		if n, ok := it.file.SizeBytes(); ok {
			total += n
		}
	}
	return items, total, nil
}

// collect lists a folder recursively, flattening files and descending
// into sub-folders.
func (m *Manager) collect(ctx context.Context, folderID, relDir string, depth int) ([]item, error) {
	if depth > maxFolderDepth {
		return nil, fmt.Errorf("folder nesting exceeds %d levels", maxFolderDepth)
	}

	l, err := loader.New(m.svc, folderID,
		loader.WithPageSize(100),
		loader.WithEngine(m.engine))
	if err != nil {
		return nil, err
	}

	var items []item
	for result := range l.Pages(ctx, 0) {
		if !result.OK() {
			return nil, result.Err
		}
		for _, f := range result.Items {
			if f.IsFolder() {
				sub, err := m.collect(ctx, f.ID, filepath.Join(relDir, f.Name), depth+1)
				if err != nil {
					// A sub-folder we cannot read is skipped, not fatal.
					slog.Warn("skipping unreadable sub-folder",
						"folder", f.ID, "name", f.Name, "error", err)
					continue
				}
				items = append(items, sub...)
				continue
			}
			items = append(items, item{file: f, relDir: relDir})
		}
	}
	return items, nil
}

// downloadOne fetches a single file to disk, going through the export
// conversion for Workspace documents.
func (m *Manager) downloadOne(ctx context.Context, state *taskState, it item) error {
	task := state.task
	f := it.file

	if m.markers != nil {
		if _, done, err := m.markers.IsDownloaded(ctx, f.ID); err == nil && done {
			slog.Debug("file already downloaded, skipping", "file", f.ID)
			state.tracker.FileDone(f.Name)
			return nil
		}
	}

	state.tracker.SetCurrentFile(f.Name)

	name := f.Name
	exportMIME := ""
	if convert.IsWorkspaceFile(f.MimeType) {
		exportMIME = convert.ExportMIME(f.MimeType, task.PreferredFormat)
		if exportMIME == "" {
			return fmt.Errorf("no export format for %s (%s)", f.Name, f.MimeType)
		}
		name += convert.ExportExtension(f.MimeType, exportMIME)
	}

	dir := filepath.Join(m.outputRoot, task.OutputPath, it.relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, name)

	out := m.engine.Execute(ctx, func(ctx context.Context) (any, error) {
		dst, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		defer dst.Close()

		w := &countingWriter{w: dst, tracker: state.tracker}
		var n int64
		if exportMIME != "" {
			n, err = m.svc.Export(ctx, f.ID, exportMIME, w)
		} else {
			n, err = m.svc.Download(ctx, f.ID, w)
		}
		if err != nil {
			// Back out this attempt's bytes so a retried transfer is
			// not counted twice.
			state.tracker.AddBytes(-w.written)
			return nil, err
		}
		return n, nil
	})
	if !out.OK {
		metrics.DownloadsTotal.WithLabelValues("failed").Inc()
		_ = os.Remove(path)
		return out.Err
	}

	n := out.Value.(int64)
	metrics.DownloadsTotal.WithLabelValues("completed").Inc()
	metrics.DownloadBytesTotal.Add(float64(n))
	state.tracker.FileDone(f.Name)

	if m.markers != nil {
		if err := m.markers.MarkDownloaded(ctx, f.ID, task.ID, markerTTL); err != nil {
			slog.Warn("failed to mark download", "file", f.ID, "error", err)
		}
	}

	slog.Debug("file downloaded", "task", task.ID, "file", f.ID, "bytes", n, "path", path)
	return nil
}

// finish moves a task into a terminal (or paused) state and persists it.
func (m *Manager) finish(state *taskState, status domain.TaskStatus, cause error) {
	m.mu.Lock()
	task := state.task
	task.Status = status
	if cause != nil {
		task.ErrorMessage = cause.Error()
	}
	switch status {
	case domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled:
		task.CompletedAt = time.Now()
	}
	m.mu.Unlock()

	state.tracker.SetStatus(status)
	if err := m.repo.UpdateStatus(context.Background(), task.ID, status, task.ErrorMessage); err != nil {
		slog.Warn("failed to update task status", "task", task.ID, "error", err)
	}

	if cause != nil {
		slog.Error("task finished", "task", task.ID, "status", status, "error", cause)
	} else {
		slog.Info("task finished", "task", task.ID, "status", status,
			"downloaded", task.DownloadedCount, "failed", task.FailedCount)
	}
}

// PauseTask stops an in-flight task, leaving it resumable. Files
// already fetched are kept and skipped on resume.
func (m *Manager) PauseTask(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.tasks[id]
	if !ok {
		return storage.ErrTaskNotFound
	}
	if state.task.Status != domain.TaskDownloading && state.task.Status != domain.TaskPreparing {
		return fmt.Errorf("task %s is %s, not pausable", id, state.task.Status)
	}

	state.paused = true
	if state.cancel != nil {
		state.cancel()
	}
	return nil
}

// CancelTask aborts a task permanently.
func (m *Manager) CancelTask(id string) error {
	m.mu.Lock()
	state, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return storage.ErrTaskNotFound
	}

	switch state.task.Status {
	case domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled:
		m.mu.Unlock()
		return fmt.Errorf("task %s already %s", id, state.task.Status)
	}

	running := state.cancel != nil && (state.task.Status == domain.TaskDownloading ||
		state.task.Status == domain.TaskPreparing)
	if running {
		state.paused = false
		state.cancel()
		m.mu.Unlock()
		// The run goroutine observes the cancellation and finishes the task.
		return nil
	}

	state.task.Status = domain.TaskCancelled
	state.task.CompletedAt = time.Now()
	task := state.task
	m.mu.Unlock()

	state.tracker.SetStatus(domain.TaskCancelled)
	m.persist(context.Background(), task)
	return nil
}

// GetTask returns a copy of a task.
func (m *Manager) GetTask(id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.tasks[id]
	if !ok {
		return nil, storage.ErrTaskNotFound
	}
	return cloneTask(state.task), nil
}

// Progress returns the live progress snapshot for a task.
func (m *Manager) Progress(id string) (progress.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.tasks[id]
	if !ok {
		return progress.Snapshot{}, storage.ErrTaskNotFound
	}
	return state.tracker.Snapshot(), nil
}

// ListTasks returns copies of all registered tasks.
func (m *Manager) ListTasks() []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Task, 0, len(m.tasks))
	for _, state := range m.tasks {
		out = append(out, cloneTask(state.task))
	}
	return out
}

// Summary aggregates task counts and byte totals.
type Summary struct {
	TotalTasks      int                       `json:"total_tasks"`
	ByStatus        map[domain.TaskStatus]int `json:"by_status"`
	ActiveTasks     int                       `json:"active_tasks"`
	DownloadedBytes int64                     `json:"downloaded_bytes"`
}

// Summarize reports aggregate statistics over registered tasks.
func (m *Manager) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{ByStatus: make(map[domain.TaskStatus]int)}
	for _, state := range m.tasks {
		s.TotalTasks++
		s.ByStatus[state.task.Status]++
		s.DownloadedBytes += state.task.DownloadedBytes
		switch state.task.Status {
		case domain.TaskPreparing, domain.TaskDownloading:
			s.ActiveTasks++
		}
	}
	return s
}

// Shutdown cancels all running tasks and waits for their goroutines.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, state := range m.tasks {
		if state.cancel != nil {
			state.cancel()
		}
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (m *Manager) persist(ctx context.Context, task *domain.Task) {
	m.mu.Lock()
	cp := cloneTask(task)
	m.mu.Unlock()
	if err := m.repo.Save(ctx, cp); err != nil {
		slog.Warn("failed to persist task", "task", cp.ID, "error", err)
	}
}

func cloneTask(t *domain.Task) *domain.Task {
	cp := *t
	return &cp
}

// countingWriter forwards writes and feeds the byte counter, keeping
// its own total so a failed attempt can be backed out.
type countingWriter struct {
	w       io.Writer
	tracker *progress.Tracker
	written int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.written += int64(n)
		c.tracker.AddBytes(int64(n))
	}
	return n, err
}
