package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/justin2061/drivefetch/internal/metrics"
)

// Operation is a single attemptable unit of work.
type Operation func(ctx context.Context) (any, error)

// Outcome is the uniform result of an Execute call. OK distinguishes the
// success and failure variants; Err carries the last observed error.
type Outcome struct {
	OK       bool
	Value    any
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// CallOption overrides engine defaults for a single Execute call.
type CallOption func(*callConfig)

type callConfig struct {
	maxRetries     int
	extraRetryable func(error) bool
}

// WithMaxRetries overrides the policy's retry budget for one call.
func WithMaxRetries(n int) CallOption {
	return func(c *callConfig) { c.maxRetries = n }
}

// WithExtraRetryable marks additional errors as retryable regardless of
// classification. Used to retry domain-specific recoverable errors.
func WithExtraRetryable(pred func(error) bool) CallOption {
	return func(c *callConfig) { c.extraRetryable = pred }
}

// Engine executes operations under a retry Policy and accumulates
// call statistics over its lifetime.
type Engine struct {
	policy Policy

	// rnd and sleep are injection points for deterministic tests.
	rnd   func() float64
	sleep func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	calls       int
	successes   int
	failures    int
	retriesUsed int
	errorCounts map[string]int
}

// New creates an Engine with the given policy.
func New(policy Policy) *Engine {
	return &Engine{
		policy:      policy,
		rnd:         rand.Float64,
		sleep:       ctxSleep,
		errorCounts: make(map[string]int),
	}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy { return e.policy }

// Delay exposes the policy's delay computation for a zero-based attempt
// index, using the engine's randomness source.
func (e *Engine) Delay(attempt int, err error) time.Duration {
	return e.policy.delay(attempt, err, e.rnd)
}

// Execute runs op until it succeeds, exhausts the retry budget, or fails
// with a non-retryable error. The worst case makes MaxRetries+1 attempts.
// A non-retryable error surfaces unmodified after exactly one attempt;
// an exhausted budget surfaces the last observed error.
func (e *Engine) Execute(ctx context.Context, op Operation, opts ...CallOption) Outcome {
	cfg := callConfig{maxRetries: e.policy.MaxRetries}
	for _, opt := range opts {
		opt(&cfg)
	}

	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	start := time.Now()
	attempt := 0
	var lastErr error

	for attempt <= cfg.maxRetries {
		value, err := op(ctx)
		if err == nil {
			elapsed := time.Since(start)
			e.recordSuccess(attempt)
			if attempt > 0 {
				slog.Info("retry recovered",
					"attempts", attempt+1, "elapsed", elapsed)
			}
			return Outcome{OK: true, Value: value, Attempts: attempt + 1, Elapsed: elapsed}
		}

		lastErr = err
		attempt++

		category := Classify(err)
		e.recordError(err)
		metrics.RetryErrorsTotal.WithLabelValues(category.String()).Inc()

		retryable := IsRetryable(err)
		if !retryable && cfg.extraRetryable != nil {
			retryable = cfg.extraRetryable(err)
		}
		if !retryable || attempt > cfg.maxRetries {
			break
		}

		delay := e.policy.delay(attempt-1, err, e.rnd)
		slog.Warn("retrying",
			"attempt", attempt, "max_retries", cfg.maxRetries,
			"category", category.String(), "delay", delay, "error", err)
		metrics.RetryAttemptsTotal.WithLabelValues(category.String()).Inc()

		if delay > 0 {
			if werr := e.sleep(ctx, delay); werr != nil {
				lastErr = werr
				break
			}
		}
	}

	elapsed := time.Since(start)
	e.recordFailure(attempt)
	slog.Error("retries exhausted", "attempts", attempt, "elapsed", elapsed, "error", lastErr)
	return Outcome{Err: lastErr, Attempts: attempt, Elapsed: elapsed}
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	TotalCalls  int
	Successes   int
	Failures    int
	RetriesUsed int
	SuccessRate float64 // percentage
	ErrorCounts map[string]int
}

// GetStats returns a snapshot of the accumulated statistics.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	rate := 0.0
	if e.calls > 0 {
		rate = float64(e.successes) / float64(e.calls) * 100
	}

	counts := make(map[string]int, len(e.errorCounts))
	for k, v := range e.errorCounts {
		counts[k] = v
	}

	return Stats{
		TotalCalls:  e.calls,
		Successes:   e.successes,
		Failures:    e.failures,
		RetriesUsed: e.retriesUsed,
		SuccessRate: rate,
		ErrorCounts: counts,
	}
}

// ResetStats zeroes the accumulated statistics.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = 0
	e.successes = 0
	e.failures = 0
	e.retriesUsed = 0
	e.errorCounts = make(map[string]int)
}

func (e *Engine) recordSuccess(retries int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.successes++
	e.retriesUsed += retries
}

func (e *Engine) recordFailure(attempts int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures++
	if attempts > 1 {
		e.retriesUsed += attempts - 1
	}
}

func (e *Engine) recordError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorCounts[fmt.Sprintf("%T", err)]++
}

// Run executes op through the engine and unwraps the outcome, returning
// the value on success or the last error on failure.
func Run(ctx context.Context, e *Engine, op Operation, opts ...CallOption) (any, error) {
	out := e.Execute(ctx, op, opts...)
	if out.OK {
		return out.Value, nil
	}
	return nil, out.Err
}

// Quick runs op through a fresh engine with the default policy.
func Quick(ctx context.Context, op Operation) (any, error) {
	return Run(ctx, New(DefaultPolicy()), op)
}

// ctxSleep blocks for d or until ctx is cancelled.
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
