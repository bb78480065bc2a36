// Package worker holds background maintenance loops.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/justin2061/drivefetch/internal/infra/storage"
)

// Pruner deletes old task history based on a retention period.
type Pruner struct {
	retention time.Duration
	repo      storage.TaskRepository
}

// NewPruner creates a new Pruner worker. A non-positive retention
// disables pruning.
func NewPruner(retention time.Duration, repo storage.TaskRepository) *Pruner {
	return &Pruner{retention: retention, repo: repo}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Calculate check interval (e.g., 10% of retention period, but max 1 hour)
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	removed, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("failed to prune task history", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("pruned old tasks", "removed", removed, "cutoff", cutoff)
	}
}
