package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// Category groups errors for retry decisions and user messaging.
type Category int

const (
	CategoryNetwork Category = iota
	CategoryAuth
	CategoryRateLimit
	CategoryServer
	CategoryClient
	CategoryUnknown
)

func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryAuth:
		return "auth"
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryServer:
		return "server"
	case CategoryClient:
		return "client"
	default:
		return "unknown"
	}
}

// Status codes always worth retrying, even when classification falls
// through to unknown.
var retryableStatusCodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// statusCoder is implemented by errors carrying an HTTP status code.
type statusCoder interface {
	HTTPStatus() int
}

// authFailure is implemented by credential and token-refresh errors.
type authFailure interface {
	AuthError() bool
}

// retryAfterer is implemented by errors carrying a server-suggested wait.
type retryAfterer interface {
	RetryAfterHint() time.Duration
}

// Classify sorts an error into a Category.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		switch {
		case code == 429:
			return CategoryRateLimit
		case code == 401 || code == 403:
			return CategoryAuth
		case code >= 400 && code < 500:
			return CategoryClient
		case code >= 500 && code < 600:
			return CategoryServer
		}
	}

	var af authFailure
	if errors.As(err, &af) && af.AuthError() {
		return CategoryAuth
	}

	if isTransportError(err) {
		return CategoryNetwork
	}

	return CategoryUnknown
}

// IsRetryable reports whether an error is worth another attempt.
// Network, rate-limit and server errors are; auth and client errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch Classify(err) {
	case CategoryNetwork, CategoryRateLimit, CategoryServer:
		return true
	}

	// A status-coded error outside the transient categories is still
	// retried when its code is in the retryable set.
	var sc statusCoder
	if errors.As(err, &sc) {
		return retryableStatusCodes[sc.HTTPStatus()]
	}

	return isTransportError(err)
}

// isTransportError checks for connection and timeout failures at the
// transport level.
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ENETUNREACH) ||
			errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			return true
		}
		return true // other net.OpErrors are connection-level too
	}

	// Fallback on message patterns for errors wrapped beyond recognition.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"unexpected eof",
		"server closed the connection",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

func retryAfterHint(err error) time.Duration {
	var ra retryAfterer
	if errors.As(err, &ra) {
		return ra.RetryAfterHint()
	}
	return 0
}
