package session

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCounter(t *testing.T) *RedisCounter {
	t.Helper()

	addr := os.Getenv("COGNIMESH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("COGNIMESH_TEST_REDIS_ADDR not set")
	}

	c, err := NewRedisCounter(context.Background(), RedisConfig{Address: addr, Prefix: "cognimesh-test-" + uuid.NewString()})
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestRedisCounter_IncrementAndClaim(t *testing.T) {
	ctx := context.Background()
	c := newTestRedisCounter(t)

	for i := 0; i < 16; i++ {
		_, err := c.Increment(ctx, "room")
		require.NoError(t, err)
	}

	n, err := c.Count(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, int64(16), n)

	ok, err := c.ClaimRun(ctx, "room", "summary", n, 16, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ClaimRun(ctx, "room", "summary", n, 16, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	last, err := c.LastRun(ctx, "room", "summary")
	require.NoError(t, err)
	assert.Equal(t, int64(16), last)
}

func TestNewRedisCounter_RequiresAddress(t *testing.T) {
	_, err := NewRedisCounter(context.Background(), RedisConfig{})
	assert.Error(t, err)
}
