package drive

import (
	"fmt"
	"time"
)

// APIError is a status-coded error returned by the Drive API.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	RetryAfter time.Duration // server-suggested wait, zero when absent
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("drive api: http %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("drive api: http %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus implements the retry engine's status interface.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// RetryAfterHint implements the retry engine's hint interface.
func (e *APIError) RetryAfterHint() time.Duration { return e.RetryAfter }

// AuthError is a credential-level failure (missing or rejected token),
// distinct from a 401/403 response on a specific resource.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return "drive auth: " + e.Message }

// AuthError implements the retry engine's auth interface.
func (e *AuthError) AuthError() bool { return true }

// ValidationError reports a malformed identifier or wrong node kind.
// Never retried, never swallowed.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s=%q: %s", e.Field, e.Value, e.Message)
}

// NotFoundError reports a missing file or folder.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s", e.ID)
}

// PermissionError reports denied access to a file or folder.
type PermissionError struct {
	ID string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("no access to file: %s", e.ID)
}
