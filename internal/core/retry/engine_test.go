package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockOp counts invocations and fails until a given attempt.
type mockOp struct {
	invocations int
	failUntil   int // fail while invocations < failUntil
	err         error
}

func (m *mockOp) run(ctx context.Context) (any, error) {
	m.invocations++
	if m.invocations < m.failUntil {
		return nil, m.err
	}
	return "ok", nil
}

// newTestEngine disables real sleeping and records requested delays.
func newTestEngine(p Policy) (*Engine, *[]time.Duration) {
	e := New(p)
	e.rnd = func() float64 { return 0.5 }
	waits := &[]time.Duration{}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return e, waits
}

func testPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		Strategy:   StrategyExponential,
		Multiplier: 2.0,
	}
}

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	e, waits := newTestEngine(testPolicy())
	op := &mockOp{failUntil: 1}

	out := e.Execute(context.Background(), op.run)

	if !out.OK {
		t.Fatalf("expected success, got error: %v", out.Err)
	}
	if out.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", out.Attempts)
	}
	if out.Value != "ok" {
		t.Errorf("value = %v, want ok", out.Value)
	}
	if len(*waits) != 0 {
		t.Errorf("waited %d times, want 0", len(*waits))
	}
}

func TestExecute_RetryBudgetExactness(t *testing.T) {
	e, _ := newTestEngine(testPolicy())
	op := &mockOp{failUntil: 999, err: &statusErr{code: 503}}

	out := e.Execute(context.Background(), op.run)

	if out.OK {
		t.Fatal("expected failure")
	}
	if op.invocations != 4 {
		t.Errorf("invocations = %d, want max_retries+1 = 4", op.invocations)
	}
	if out.Attempts != 4 {
		t.Errorf("attempts = %d, want 4", out.Attempts)
	}
	var se *statusErr
	if !errors.As(out.Err, &se) || se.code != 503 {
		t.Errorf("err = %v, want last observed 503", out.Err)
	}
}

func TestExecute_NonRetryableShortCircuit(t *testing.T) {
	e, waits := newTestEngine(testPolicy())
	op := &mockOp{failUntil: 999, err: &statusErr{code: 404}}

	out := e.Execute(context.Background(), op.run)

	if out.OK {
		t.Fatal("expected failure")
	}
	if op.invocations != 1 {
		t.Errorf("invocations = %d, want exactly 1 for non-retryable error", op.invocations)
	}
	if out.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", out.Attempts)
	}
	if len(*waits) != 0 {
		t.Errorf("waited %d times, want 0 (no delay before surfacing)", len(*waits))
	}
}

func TestExecute_RateLimitRecoveryHonorsServerHint(t *testing.T) {
	e, waits := newTestEngine(testPolicy())
	op := &mockOp{failUntil: 2, err: &statusErr{code: 429, retryAfter: 5 * time.Second}}

	out := e.Execute(context.Background(), op.run)

	if !out.OK {
		t.Fatalf("expected recovery, got %v", out.Err)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", out.Attempts)
	}
	if len(*waits) != 1 {
		t.Fatalf("waited %d times, want 1", len(*waits))
	}
	// Strategy says 1s; the server said 5s. The server wins.
	if (*waits)[0] < 5*time.Second {
		t.Errorf("waited %v, want >= 5s server hint", (*waits)[0])
	}
}

func TestExecute_ExtraRetryablePredicate(t *testing.T) {
	e, _ := newTestEngine(testPolicy())
	domainErr := errors.New("transient lock contention")
	op := &mockOp{failUntil: 3, err: domainErr}

	out := e.Execute(context.Background(), op.run,
		WithExtraRetryable(func(err error) bool { return errors.Is(err, domainErr) }))

	if !out.OK {
		t.Fatalf("expected recovery via extra-retryable, got %v", out.Err)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
}

func TestExecute_MaxRetriesOverride(t *testing.T) {
	e, _ := newTestEngine(testPolicy())
	op := &mockOp{failUntil: 999, err: &statusErr{code: 500}}

	out := e.Execute(context.Background(), op.run, WithMaxRetries(1))

	if op.invocations != 2 {
		t.Errorf("invocations = %d, want 2 with override", op.invocations)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", out.Attempts)
	}
}

func TestExecute_ContextCancelledDuringWait(t *testing.T) {
	e := New(testPolicy())
	e.rnd = func() float64 { return 0.5 }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := &mockOp{failUntil: 999, err: &statusErr{code: 503}}
	out := e.Execute(ctx, op.run)

	if out.OK {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", out.Err)
	}
	if op.invocations != 1 {
		t.Errorf("invocations = %d, want 1 (no attempt after cancellation)", op.invocations)
	}
}

func TestStats(t *testing.T) {
	e, _ := newTestEngine(testPolicy())

	// One clean success, one recovery after 2 failures, one hard failure.
	e.Execute(context.Background(), (&mockOp{failUntil: 1}).run)
	e.Execute(context.Background(), (&mockOp{failUntil: 3, err: &statusErr{code: 503}}).run)
	e.Execute(context.Background(), (&mockOp{failUntil: 999, err: &statusErr{code: 404}}).run)

	stats := e.GetStats()
	if stats.TotalCalls != 3 {
		t.Errorf("TotalCalls = %d, want 3", stats.TotalCalls)
	}
	if stats.Successes != 2 {
		t.Errorf("Successes = %d, want 2", stats.Successes)
	}
	if stats.Failures != 1 {
		t.Errorf("Failures = %d, want 1", stats.Failures)
	}
	if stats.RetriesUsed != 2 {
		t.Errorf("RetriesUsed = %d, want 2", stats.RetriesUsed)
	}
	if stats.SuccessRate < 66 || stats.SuccessRate > 67 {
		t.Errorf("SuccessRate = %.2f, want ~66.67", stats.SuccessRate)
	}

	e.ResetStats()
	if got := e.GetStats(); got.TotalCalls != 0 || len(got.ErrorCounts) != 0 {
		t.Errorf("after reset: %+v, want zeroed", got)
	}
}

func TestRun_UnwrapsOutcome(t *testing.T) {
	e, _ := newTestEngine(testPolicy())

	v, err := Run(context.Background(), e, (&mockOp{failUntil: 1}).run)
	if err != nil || v != "ok" {
		t.Errorf("Run = (%v, %v), want (ok, nil)", v, err)
	}

	wantErr := &statusErr{code: 400}
	_, err = Run(context.Background(), e, (&mockOp{failUntil: 999, err: wantErr}).run)
	if !errors.Is(err, wantErr) {
		t.Errorf("Run err = %v, want the last error verbatim", err)
	}
}
