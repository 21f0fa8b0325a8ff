package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/cognimesh/core"
)

// RedisConfig configures a RedisCounter.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// claimScript mirrors Due so the check and the marker update are atomic.
var claimScript = redis.NewScript(`
local count = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local last = tonumber(redis.call('HGET', KEYS[1], ARGV[4]) or '0')
if count < threshold or count <= last then
  return 0
end
if last > 0 then
  if interval < 1 then interval = 1 end
  if count - last < interval then
    return 0
  end
end
redis.call('HSET', KEYS[1], ARGV[4], count)
return 1
`)

// RedisCounter is a Counter backed by Redis, shareable between processes.
// Counts live in "<prefix>:room:<id>:count", run markers in the hash
// "<prefix>:room:<id>:runs".
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter connects to Redis and verifies the connection.
func NewRedisCounter(ctx context.Context, cfg RedisConfig) (*RedisCounter, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, core.NewError(core.CodeInvalidInput, "redis address must not be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.Wrap(core.CodeStorage, "redis", fmt.Errorf("connect %s: %w", cfg.Address, err))
	}

	return NewRedisCounterFromClient(client, cfg.Prefix), nil
}

// NewRedisCounterFromClient wraps an existing client.
func NewRedisCounterFromClient(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "cognimesh"
	}

	return &RedisCounter{client: client, prefix: prefix}
}

// Increment implements Counter.
func (c *RedisCounter) Increment(ctx context.Context, roomID string) (int64, error) {
	n, err := c.client.Incr(ctx, c.countKey(roomID)).Result()
	if err != nil {
		return 0, core.Wrap(core.CodeStorage, "redis", err)
	}

	return n, nil
}

// Count implements Counter.
func (c *RedisCounter) Count(ctx context.Context, roomID string) (int64, error) {
	n, err := c.client.Get(ctx, c.countKey(roomID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, core.Wrap(core.CodeStorage, "redis", err)
	}

	return n, nil
}

// ClaimRun implements Counter.
func (c *RedisCounter) ClaimRun(ctx context.Context, roomID, key string, count, threshold, interval int64) (bool, error) {
	won, err := claimScript.Run(ctx, c.client, []string{c.runsKey(roomID)}, count, threshold, interval, key).Int()
	if err != nil {
		return false, core.Wrap(core.CodeStorage, "redis", err)
	}

	return won == 1, nil
}

// LastRun implements Counter.
func (c *RedisCounter) LastRun(ctx context.Context, roomID, key string) (int64, error) {
	n, err := c.client.HGet(ctx, c.runsKey(roomID), key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, core.Wrap(core.CodeStorage, "redis", err)
	}

	return n, nil
}

// Close closes the underlying client.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}

func (c *RedisCounter) countKey(roomID string) string {
	return c.prefix + ":room:" + roomID + ":count"
}

func (c *RedisCounter) runsKey(roomID string) string {
	return c.prefix + ":room:" + roomID + ":runs"
}

var _ Counter = (*RedisCounter)(nil)
