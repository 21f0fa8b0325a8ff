package session

import "context"

// Counter tracks per-room message counts and evaluator run markers.
type Counter interface {
	// Increment atomically adds one message to the room and returns the new count.
	Increment(ctx context.Context, roomID string) (int64, error)
	// Count returns the current message count of the room.
	Count(ctx context.Context, roomID string) (int64, error)
	// ClaimRun atomically checks Due for the evaluator key and, when due,
	// records count as its last run. Exactly one caller wins per window.
	ClaimRun(ctx context.Context, roomID, key string, count, threshold, interval int64) (bool, error)
	// LastRun returns the count at which key last ran in the room (0 = never).
	LastRun(ctx context.Context, roomID, key string) (int64, error)
}

// Due reports whether a gated evaluator should run at count given the count
// of its last run (0 = never). It first fires once count reaches threshold,
// then again whenever at least interval messages arrived since the last run.
// An interval below one behaves like one.
func Due(count, last, threshold, interval int64) bool {
	if count < threshold || count <= last {
		return false
	}

	if last == 0 {
		return true
	}

	if interval < 1 {
		interval = 1
	}

	return count-last >= interval
}
