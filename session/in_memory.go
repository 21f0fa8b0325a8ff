package session

import (
	"context"
	"sync"
)

type roomProgress struct {
	count int64
	runs  map[string]int64
}

// InMemoryCounter is a volatile Counter storing progress in a process local
// map. It is safe for concurrent access and suited for single-process
// deployments and tests.
type InMemoryCounter struct {
	mu    sync.Mutex
	rooms map[string]*roomProgress
}

// NewInMemoryCounter constructs an empty counter.
func NewInMemoryCounter() *InMemoryCounter {
	return &InMemoryCounter{rooms: make(map[string]*roomProgress)}
}

// Increment implements Counter.
func (c *InMemoryCounter) Increment(_ context.Context, roomID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.roomLocked(roomID)
	r.count++

	return r.count, nil
}

// Count implements Counter.
func (c *InMemoryCounter) Count(_ context.Context, roomID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.rooms[roomID]; ok {
		return r.count, nil
	}

	return 0, nil
}

// ClaimRun implements Counter.
func (c *InMemoryCounter) ClaimRun(_ context.Context, roomID, key string, count, threshold, interval int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.roomLocked(roomID)
	if !Due(count, r.runs[key], threshold, interval) {
		return false, nil
	}

	r.runs[key] = count

	return true, nil
}

// LastRun implements Counter.
func (c *InMemoryCounter) LastRun(_ context.Context, roomID, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.rooms[roomID]; ok {
		return r.runs[key], nil
	}

	return 0, nil
}

// roomLocked returns the room entry, creating it lazily; caller must hold the lock.
func (c *InMemoryCounter) roomLocked(roomID string) *roomProgress {
	r, ok := c.rooms[roomID]
	if !ok {
		r = &roomProgress{runs: make(map[string]int64)}
		c.rooms[roomID] = r
	}

	return r
}

var _ Counter = (*InMemoryCounter)(nil)
