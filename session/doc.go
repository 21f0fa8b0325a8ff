// Package session tracks per-room conversation progress: a monotonically
// increasing message count and, per evaluator, the count at which it last
// ran. The counter is the only shared mutable resource between concurrent
// turns of the same room, so every operation is atomic per room.
//
// Implementations:
//   - InMemoryCounter: process local, mutex protected
//   - RedisCounter: INCR plus a Lua claim script, safe across processes
package session
