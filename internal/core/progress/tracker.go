// Package progress tracks per-task download progress: file and byte
// counters, a sliding-window transfer speed, and an ETA estimate.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/justin2061/drivefetch/internal/core/domain"
)

// speedWindow bounds how far back byte samples count toward the
// current speed.
const speedWindow = 10 * time.Second

// maxSpeedSamples caps the recent samples used for the speed estimate.
const maxSpeedSamples = 10

// Snapshot is a point-in-time view of a task's progress.
type Snapshot struct {
	TaskID          string            `json:"task_id"`
	Timestamp       time.Time         `json:"timestamp"`
	DownloadedFiles int               `json:"downloaded_files"`
	TotalFiles      int               `json:"total_files"`
	DownloadedBytes int64             `json:"downloaded_bytes"`
	TotalBytes      int64             `json:"total_bytes"`
	Speed           float64           `json:"current_speed"`
	ETASeconds      float64           `json:"eta_seconds"`
	HasETA          bool              `json:"has_eta"`
	Status          domain.TaskStatus `json:"status"`
	CurrentFile     string            `json:"current_file,omitempty"`
	ErrorCount      int               `json:"error_count"`
}

// FilePercentage is the file-count completion percentage.
func (s Snapshot) FilePercentage() float64 {
	if s.TotalFiles == 0 {
		return 0.0
	}
	return float64(s.DownloadedFiles) / float64(s.TotalFiles) * 100
}

// BytePercentage is the byte-count completion percentage.
func (s Snapshot) BytePercentage() float64 {
	if s.TotalBytes == 0 {
		return 0.0
	}
	return float64(s.DownloadedBytes) / float64(s.TotalBytes) * 100
}

// FormattedSpeed renders the speed as a human-readable rate.
func (s Snapshot) FormattedSpeed() string {
	return humanize.Bytes(uint64(s.Speed)) + "/s"
}

// FormattedETA renders the remaining time, "unknown" when no estimate
// is available.
func (s Snapshot) FormattedETA() string {
	if !s.HasETA {
		return "unknown"
	}
	d := time.Duration(s.ETASeconds * float64(time.Second))
	return d.Round(time.Second).String()
}

// FormattedDownloaded renders the bytes downloaded so far.
func (s Snapshot) FormattedDownloaded() string {
	return humanize.Bytes(uint64(s.DownloadedBytes))
}

// FormattedTotal renders the total bytes expected.
func (s Snapshot) FormattedTotal() string {
	return humanize.Bytes(uint64(s.TotalBytes))
}

// String summarizes the snapshot for logs.
func (s Snapshot) String() string {
	return fmt.Sprintf("%d/%d files (%.1f%%), %s/%s at %s, eta %s",
		s.DownloadedFiles, s.TotalFiles, s.FilePercentage(),
		s.FormattedDownloaded(), s.FormattedTotal(),
		s.FormattedSpeed(), s.FormattedETA())
}

type sample struct {
	at    time.Time
	bytes int64
}

// Tracker accumulates progress for one task. Safe for concurrent use.
type Tracker struct {
	taskID string

	mu              sync.Mutex
	downloadedFiles int
	totalFiles      int
	downloadedBytes int64
	totalBytes      int64
	currentFile     string
	status          domain.TaskStatus
	errorCount      int
	samples         []sample

	now func() time.Time
}

// NewTracker creates a tracker for the given task.
func NewTracker(taskID string) *Tracker {
	return &Tracker{
		taskID: taskID,
		status: domain.TaskPending,
		now:    time.Now,
	}
}

// SetTotal records the expected file and byte totals.
func (t *Tracker) SetTotal(files int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFiles = files
	t.totalBytes = bytes
}

// FileDone records a completed file.
func (t *Tracker) FileDone(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloadedFiles++
	if name != "" {
		t.currentFile = name
	}
	t.addSampleLocked()
}

// AddBytes adds to the byte counter and records a speed sample.
func (t *Tracker) AddBytes(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloadedBytes += n
	t.addSampleLocked()
}

// SetCurrentFile records the file currently transferring.
func (t *Tracker) SetCurrentFile(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentFile = name
}

// IncrementError bumps the error counter.
func (t *Tracker) IncrementError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorCount++
}

// SetStatus updates the task status.
func (t *Tracker) SetStatus(status domain.TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

func (t *Tracker) addSampleLocked() {
	now := t.now()
	t.samples = append(t.samples, sample{at: now, bytes: t.downloadedBytes})

	cutoff := now.Add(-speedWindow)
	i := 0
	for ; i < len(t.samples); i++ {
		if t.samples[i].at.After(cutoff) {
			break
		}
	}
	t.samples = t.samples[i:]
}

// speedLocked estimates bytes/sec over the most recent samples.
func (t *Tracker) speedLocked() float64 {
	samples := t.samples
	if len(samples) > maxSpeedSamples {
		samples = samples[len(samples)-maxSpeedSamples:]
	}
	if len(samples) < 2 {
		return 0.0
	}

	first, last := samples[0], samples[len(samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0.0
	}
	return float64(last.bytes-first.bytes) / elapsed
}

// etaLocked estimates seconds remaining. Byte totals win over file
// counts; returns false when there is nothing to estimate from.
func (t *Tracker) etaLocked(speed float64) (float64, bool) {
	if t.status != domain.TaskDownloading && t.status != domain.TaskPreparing {
		return 0, false
	}
	if speed <= 0 {
		return 0, false
	}

	if t.totalBytes > 0 {
		remaining := t.totalBytes - t.downloadedBytes
		if remaining < 0 {
			remaining = 0
		}
		return float64(remaining) / speed, true
	}

	if t.totalFiles > 0 && t.downloadedFiles > 0 && len(t.samples) > 0 {
		ratio := float64(t.downloadedFiles) / float64(t.totalFiles)
		elapsed := t.now().Sub(t.samples[0].at).Seconds()
		total := elapsed / ratio
		return total - elapsed, true
	}

	return 0, false
}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	speed := t.speedLocked()
	eta, hasETA := t.etaLocked(speed)

	return Snapshot{
		TaskID:          t.taskID,
		Timestamp:       t.now(),
		DownloadedFiles: t.downloadedFiles,
		TotalFiles:      t.totalFiles,
		DownloadedBytes: t.downloadedBytes,
		TotalBytes:      t.totalBytes,
		Speed:           speed,
		ETASeconds:      eta,
		HasETA:          hasETA,
		Status:          t.status,
		CurrentFile:     t.currentFile,
		ErrorCount:      t.errorCount,
	}
}
