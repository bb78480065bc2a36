// Package loader fetches folder listings from the Drive API one page at a
// time, accumulating items and listing state as it goes.
//
// Pages are requested strictly in order using the server's continuation
// tokens; transient failures are absorbed by the retry engine. A Loader is
// not safe for concurrent use: each instance must be driven by a single
// flow of control.
package loader

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/justin2061/drivefetch/internal/core/domain"
	"github.com/justin2061/drivefetch/internal/core/driveid"
	"github.com/justin2061/drivefetch/internal/core/retry"
	"github.com/justin2061/drivefetch/internal/infra/drive"
	"github.com/justin2061/drivefetch/internal/metrics"
)

const (
	minPageSize = 10
	maxPageSize = 100

	// defaultMaxPages is a hard safety ceiling against runaway pagination.
	defaultMaxPages = 100

	// pageDelay throttles consecutive page requests. This is a deliberate
	// rate bound against the API, not an error-driven backoff.
	pageDelay = 200 * time.Millisecond
)

// Service is the slice of the Drive API the loader consumes.
type Service interface {
	ListChildren(ctx context.Context, q domain.ListQuery) ([]*domain.File, string, error)
	GetFile(ctx context.Context, id, fields string) (*domain.File, error)
}

// Loader incrementally loads the children of one folder.
type Loader struct {
	svc      Service
	folderID string
	pageSize int
	fields   string
	orderBy  string
	trashed  bool
	engine   *retry.Engine

	state      State
	pageToken  string
	items      []*domain.File
	folderInfo *domain.File
	lastErr    error

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Loader.
type Option func(*Loader)

// WithPageSize sets the requested page size, clamped to [10, 100].
func WithPageSize(n int) Option {
	return func(l *Loader) { l.pageSize = n }
}

// WithFields sets the field selector for listed items.
func WithFields(fields string) Option {
	return func(l *Loader) { l.fields = fields }
}

// WithOrderBy sets the listing order.
func WithOrderBy(order string) Option {
	return func(l *Loader) { l.orderBy = order }
}

// WithTrashed includes trashed items in listings.
func WithTrashed(include bool) Option {
	return func(l *Loader) { l.trashed = include }
}

// WithEngine substitutes the retry engine.
func WithEngine(e *retry.Engine) Option {
	return func(l *Loader) { l.engine = e }
}

// New creates a Loader for the given folder. The identifier is validated
// up front; no network I/O happens until the first page load.
func New(svc Service, folderID string, opts ...Option) (*Loader, error) {
	if !driveid.Valid(folderID) {
		return nil, &drive.ValidationError{
			Field: "folder_id", Value: folderID, Message: "invalid folder ID format",
		}
	}

	l := &Loader{
		svc:      svc,
		folderID: folderID,
		pageSize: 50,
		fields:   domain.DefaultFields,
		orderBy:  "folder,name",
		state:    State{Status: StatusIdle, HasMore: true},
		sleep:    ctxSleep,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.pageSize < minPageSize {
		l.pageSize = minPageSize
	}
	if l.pageSize > maxPageSize {
		l.pageSize = maxPageSize
	}
	if l.engine == nil {
		l.engine = retry.New(retry.Policy{
			MaxRetries: 3,
			BaseDelay:  1 * time.Second,
			MaxDelay:   30 * time.Second,
			Strategy:   retry.StrategyExponential,
			Multiplier: 2.0,
			Jitter:     true,
		})
	}

	slog.Debug("loader created", "folder", folderID, "page_size", l.pageSize)
	return l, nil
}

// FolderID returns the loader's parent folder ID.
func (l *Loader) FolderID() string { return l.folderID }

// PageSize returns the effective (clamped) page size.
func (l *Loader) PageSize() int { return l.pageSize }

// State returns a copy of the current listing state.
func (l *Loader) State() State { return l.state }

// FolderInfo returns the parent folder's metadata, nil before the first
// successful page load.
func (l *Loader) FolderInfo() *domain.File { return l.folderInfo }

// Items returns a copy of all items loaded so far.
func (l *Loader) Items() []*domain.File {
	out := make([]*domain.File, len(l.items))
	copy(out, l.items)
	return out
}

// HasMore reports whether further pages remain.
func (l *Loader) HasMore() bool { return l.state.HasMore }

// IsLoading reports whether a page fetch is in flight.
func (l *Loader) IsLoading() bool { return l.state.Status == StatusLoading }

// IsCompleted reports whether the listing is exhausted.
func (l *Loader) IsCompleted() bool { return l.state.Status == StatusCompleted }

// LastError returns the error from the most recent failed page load, nil
// after a success or before any load.
func (l *Loader) LastError() error { return l.lastErr }

// Progress estimates completion in [0, 1]. The true total is unknowable
// until the listing is exhausted, so while pages remain this is a
// midpoint-biased guess capped below 1.0. Treat it as monotonically
// non-decreasing, not as an accurate percentage.
func (l *Loader) Progress() float64 {
	if l.state.Status == StatusCompleted {
		return 1.0
	}
	if l.state.TotalItems == 0 {
		return 0.0
	}
	if l.state.HasMore {
		p := 0.5 + float64(l.state.CurrentPage)*0.1
		if p > 0.9 {
			p = 0.9
		}
		return p
	}
	return 1.0
}

// LoadNextPage fetches the next page of children. Safe to call after
// completion: it returns an empty result without touching the network.
// Fetch failures are reported in the result's Err field, never raised.
func (l *Loader) LoadNextPage(ctx context.Context) PageResult {
	if !l.state.HasMore {
		return PageResult{
			PageNumber:  l.state.CurrentPage,
			HasMore:     false,
			TotalLoaded: l.state.TotalItems,
		}
	}

	l.state.Status = StatusLoading
	start := time.Now()

	// The folder itself is validated once, on the first page.
	if l.state.CurrentPage == 0 {
		if err := l.validateFolder(ctx); err != nil {
			return l.failPage(err)
		}
	}

	query := domain.ListQuery{
		FolderID:       l.folderID,
		PageSize:       l.pageSize,
		PageToken:      l.pageToken,
		Fields:         l.fields,
		OrderBy:        l.orderBy,
		IncludeTrashed: l.trashed,
	}

	type listPage struct {
		items []*domain.File
		token string
	}
	out := l.engine.Execute(ctx, func(ctx context.Context) (any, error) {
		items, token, err := l.svc.ListChildren(ctx, query)
		if err != nil {
			return nil, err
		}
		return listPage{items: items, token: token}, nil
	})
	if !out.OK {
		return l.failPage(out.Err)
	}

	page := out.Value.(listPage)
	l.pageToken = page.token

	l.state.CurrentPage++
	l.state.TotalItems += len(page.items)
	l.state.TotalPages = l.state.CurrentPage
	l.state.HasMore = page.token != ""
	l.state.LastPageTime = time.Since(start)
	l.state.ErrorMessage = ""
	l.lastErr = nil

	if l.state.HasMore {
		l.state.Status = StatusIdle
	} else {
		l.state.Status = StatusCompleted
	}

	l.items = append(l.items, page.items...)

	metrics.PagesLoadedTotal.Inc()
	metrics.ItemsListedTotal.Add(float64(len(page.items)))
	metrics.PageLoadDuration.Observe(l.state.LastPageTime.Seconds())

	slog.Info("page loaded",
		"folder", l.folderID, "page", l.state.CurrentPage,
		"items", len(page.items), "total", l.state.TotalItems,
		"elapsed", l.state.LastPageTime)

	return PageResult{
		Items:       page.items,
		PageNumber:  l.state.CurrentPage,
		HasMore:     l.state.HasMore,
		TotalLoaded: l.state.TotalItems,
	}
}

// failPage records a load failure and wraps it in a PageResult.
// The cursor is left untouched so a later call may try the page again.
func (l *Loader) failPage(err error) PageResult {
	l.state.Status = StatusError
	l.state.ErrorMessage = err.Error()
	l.lastErr = err
	slog.Error("page load failed", "folder", l.folderID, "error", err)

	return PageResult{
		PageNumber:  l.state.CurrentPage,
		HasMore:     false,
		TotalLoaded: l.state.TotalItems,
		Err:         err,
	}
}

// validateFolder confirms the parent exists and is a folder.
func (l *Loader) validateFolder(ctx context.Context) error {
	if l.folderInfo != nil {
		return nil
	}

	info, err := l.svc.GetFile(ctx, l.folderID, "id,name,mimeType")
	if err != nil {
		var apiErr *drive.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case 404:
				return &drive.NotFoundError{ID: l.folderID}
			case 403:
				return &drive.PermissionError{ID: l.folderID}
			}
		}
		return err
	}

	if !info.IsFolder() {
		return &drive.ValidationError{
			Field: "folder_id", Value: l.folderID, Message: "not a folder",
		}
	}

	l.folderInfo = info
	return nil
}

// LoadAll fetches pages until exhaustion or maxPages (default 100).
// progressFn, when set, is invoked with (page, cumulative total) after
// each successful page. Returns everything loaded so far.
func (l *Loader) LoadAll(ctx context.Context, maxPages int, progressFn func(page, total int)) []*domain.File {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	for l.HasMore() && l.state.CurrentPage < maxPages {
		result := l.LoadNextPage(ctx)
		if !result.OK() {
			slog.Error("load all stopped", "error", result.Err)
			break
		}

		if progressFn != nil {
			progressFn(l.state.CurrentPage, l.state.TotalItems)
		}

		if l.HasMore() {
			if err := l.sleep(ctx, pageDelay); err != nil {
				break
			}
		}
	}

	return l.Items()
}

// Pages returns a lazy sequence of page results with the same termination
// rules as LoadAll. The consumer can stop early; resuming after exhaustion
// requires Reset.
func (l *Loader) Pages(ctx context.Context, maxPages int) func(yield func(PageResult) bool) {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	return func(yield func(PageResult) bool) {
		for l.HasMore() && l.state.CurrentPage < maxPages {
			result := l.LoadNextPage(ctx)
			if !yield(result) {
				return
			}
			if !result.OK() || !result.HasMore {
				return
			}
			if err := l.sleep(ctx, pageDelay); err != nil {
				return
			}
		}
	}
}

// Reset returns the loader to its initial state. Folder metadata is kept;
// everything else starts over on the next page load.
func (l *Loader) Reset() {
	l.state = State{Status: StatusIdle, HasMore: true}
	l.pageToken = ""
	l.items = nil
	l.lastErr = nil
	slog.Debug("loader reset", "folder", l.folderID)
}

// Statistics is a read-only projection over the loaded items.
type Statistics struct {
	FolderID       string
	FolderName     string
	TotalItems     int
	TotalFolders   int
	TotalFiles     int
	TotalSizeBytes int64
	PagesLoaded    int
	Completed      bool
	HasMore        bool
}

// Statistics derives folder/file counts and total size from the items
// loaded so far. Missing or malformed sizes are skipped, not fatal.
func (l *Loader) Statistics() Statistics {
	stats := Statistics{
		FolderID:    l.folderID,
		TotalItems:  l.state.TotalItems,
		PagesLoaded: l.state.TotalPages,
		Completed:   l.state.Status == StatusCompleted,
		HasMore:     l.state.HasMore,
	}
	if l.folderInfo != nil {
		stats.FolderName = l.folderInfo.Name
	}

	for _, item := range l.items {
		if item.IsFolder() {
			stats.TotalFolders++
			continue
		}
		stats.TotalFiles++
		if n, ok := item.SizeBytes(); ok {
			stats.TotalSizeBytes += n
		}
	}

	return stats
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
