package core

import (
	"sync"
)

// CallLimiter enforces a maximum number of calls (model calls per turn,
// re-plans per plan).
type CallLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallLimiter creates a new limiter with a max number of calls.
// If max == 0, unlimited calls are allowed. A negative max allows none.
func NewCallLimiter(max int) *CallLimiter {
	return &CallLimiter{max: max}
}

// Acquire consumes one call. It returns false without consuming when the
// limit is reached.
func (l *CallLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max < 0 || (l.max > 0 && l.count >= l.max) {
		return false
	}

	l.count++

	return true
}

// Increment increases the call counter and returns an error if the limit is exceeded.
func (l *CallLimiter) Increment() error {
	if !l.Acquire() {
		return Errorf(CodeReplanLimit, "exceeded max calls: %d", l.max)
	}

	return nil
}

// Count returns the current number of calls made.
func (l *CallLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many calls are left before hitting the limit.
func (l *CallLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.max == 0:
		return -1 // unlimited
	case l.max < 0:
		return 0
	}

	return l.max - l.count
}
