package loader

import (
	"time"

	"github.com/justin2061/drivefetch/internal/core/domain"
)

// Status is the loader's lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// State is the loader's cumulative listing state. Owned by exactly one
// Loader; callers get copies.
type State struct {
	Status       Status
	TotalItems   int
	TotalPages   int
	CurrentPage  int
	HasMore      bool
	ErrorMessage string
	LastPageTime time.Duration
}

// PageResult is the immutable outcome of one page fetch. Err is nil on
// success; a failed fetch carries the error here rather than panicking,
// so paging loops can inspect and stop.
type PageResult struct {
	Items       []*domain.File
	PageNumber  int
	HasMore     bool
	TotalLoaded int
	Err         error
}

// OK reports whether the page was fetched successfully.
func (r PageResult) OK() bool { return r.Err == nil }
