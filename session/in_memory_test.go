package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDue(t *testing.T) {
	tests := []struct {
		name                            string
		count, last, threshold, interval int64
		want                            bool
	}{
		{"below threshold", 15, 0, 16, 10, false},
		{"first fire at threshold", 16, 0, 16, 10, true},
		{"too soon after last", 25, 16, 16, 10, false},
		{"interval reached", 26, 16, 16, 10, true},
		{"never twice at the same count", 16, 16, 16, 10, false},
		{"zero interval behaves like one", 17, 16, 16, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Due(tt.count, tt.last, tt.threshold, tt.interval))
		})
	}
}

func TestInMemoryCounter_IncrementPerRoom(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCounter()

	n, err := c.Increment(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, _ = c.Increment(ctx, "a")
	_, _ = c.Increment(ctx, "b")

	n, _ = c.Count(ctx, "a")
	assert.Equal(t, int64(2), n)

	n, _ = c.Count(ctx, "missing")
	assert.Equal(t, int64(0), n)
}

func TestInMemoryCounter_ConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCounter()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_, _ = c.Increment(ctx, "room")
		}()
	}

	wg.Wait()

	n, _ := c.Count(ctx, "room")
	assert.Equal(t, int64(100), n)
}

func TestInMemoryCounter_ClaimRunExactlyOnce(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCounter()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ok, err := c.ClaimRun(ctx, "room", "summary", 16, 16, 10)
			if err == nil && ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, won)

	last, _ := c.LastRun(ctx, "room", "summary")
	assert.Equal(t, int64(16), last)

	ok, _ := c.ClaimRun(ctx, "room", "facts", 16, 16, 10)
	assert.True(t, ok, "markers are per evaluator key")
}
