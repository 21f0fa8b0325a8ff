package plan

import (
	"context"
	"math"
	"time"

	"github.com/hupe1980/cognimesh/core"
)

// RetryPolicy controls step retries. MaxAttempts counts retries after the
// first try, so a step runs at most MaxAttempts+1 times.
type RetryPolicy struct {
	MaxAttempts  int           `json:"maxAttempts" yaml:"max_attempts"`
	InitialDelay time.Duration `json:"initialDelay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"maxDelay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
}

// DefaultRetryPolicy retries three times after 1s, 2s and 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

// Backoff returns the delay before retry n (1-based):
// min(InitialDelay * Multiplier^(n-1), MaxDelay). A multiplier below one
// keeps the delay constant and a zero MaxDelay leaves it uncapped.
func (r RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || r.InitialDelay <= 0 {
		return 0
	}

	mult := r.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(r.InitialDelay) * math.Pow(mult, float64(n-1))

	if r.MaxDelay > 0 && d > float64(r.MaxDelay) {
		return r.MaxDelay
	}

	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(d)
}

// retryable reports whether err may succeed on another attempt. Invalid
// input, unknown capabilities and parameter validation failures cannot.
func retryable(err error) bool {
	switch core.CodeOf(err) {
	case core.CodeInvalidInput, core.CodeNotFound, core.CodeValidation:
		return false
	default:
		return true
	}
}

// SleepContext waits for d or until ctx is done, returning the cause then.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return context.Cause(ctx)
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
