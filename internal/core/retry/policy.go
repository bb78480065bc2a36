package retry

import (
	"time"
)

// Strategy selects how the inter-attempt delay grows.
type Strategy int

const (
	StrategyFixed Strategy = iota
	StrategyExponential
	StrategyLinear
	StrategyRandom
)

func (s Strategy) String() string {
	switch s {
	case StrategyFixed:
		return "fixed"
	case StrategyExponential:
		return "exponential"
	case StrategyLinear:
		return "linear"
	case StrategyRandom:
		return "random"
	default:
		return "unknown"
	}
}

// Policy holds the retry knobs. Immutable once handed to an Engine.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Strategy selects the backoff curve.
	Strategy Strategy

	// Multiplier is the exponential growth factor (typically 2.0).
	Multiplier float64

	// Jitter applies +/-10% randomness to computed delays.
	Jitter bool
}

// DefaultPolicy mirrors the defaults used throughout the system:
// 3 retries, 1s base, 60s cap, exponential with jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		Strategy:   StrategyExponential,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// baseDelay computes the strategy delay for a zero-based attempt index,
// before the Retry-After hint, cap and jitter are applied.
func (p Policy) baseDelay(attempt int, rnd func() float64) float64 {
	base := p.BaseDelay.Seconds()

	switch p.Strategy {
	case StrategyFixed:
		return base
	case StrategyExponential:
		d := base
		for i := 0; i < attempt; i++ {
			d *= p.Multiplier
		}
		return d
	case StrategyLinear:
		return base + float64(attempt)*base
	case StrategyRandom:
		// Uniform in [base, base*3].
		return base + rnd()*base*2
	default:
		return base
	}
}

// delay computes the full wait before the next attempt. A rate-limit error
// carrying a server-suggested wait is never shortened below that hint.
func (p Policy) delay(attempt int, err error, rnd func() float64) time.Duration {
	d := p.baseDelay(attempt, rnd)

	if hint := retryAfterHint(err); hint > 0 {
		if h := hint.Seconds(); h > d {
			d = h
		}
	}

	if m := p.MaxDelay.Seconds(); d > m {
		d = m
	}

	if p.Jitter {
		// +/-10% noise.
		d += (rnd()*2 - 1) * d * 0.1
	}

	if d < 0 {
		d = 0
	}
	return time.Duration(d * float64(time.Second))
}
