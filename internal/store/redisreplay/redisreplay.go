// Package redisreplay is the optional shared-state backend for
// `balance`'s round-robin counter and `auth_server`'s replay-guard
// "last seen" timestamp (SPEC_FULL.md §4.7), letting several sopipe
// processes behind the same script coordinate through one Redis
// instance instead of each keeping its own in-process atomic.
//
// Grounded on the teacher's own go-redis usage in
// shared/redis/resilient_client.go, but deliberately not porting that
// file's full reconnect/circuit-breaker/local-cache machinery: sopipe's
// use of redis here is a single optional counter and a single optional
// compare-and-set, not a general-purpose resilient cache client, so the
// direct github.com/redis/go-redis/v9 calls the teacher's own
// ResilientClient wraps are used here without that wrapper.
package redisreplay

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Counter is a distributed INCR-backed sequence, used by `balance` to
// pick the next round-robin output index across processes.
type Counter struct {
	client *redis.Client
	key    string
}

func NewCounter(addr, key string) *Counter {
	return &Counter{client: redis.NewClient(&redis.Options{Addr: addr}), key: key}
}

// Next returns a monotonically increasing value starting at 0.
func (c *Counter) Next(ctx context.Context) (uint64, error) {
	n, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, err
	}
	return uint64(n - 1), nil
}

// ReplayGuard is a distributed compare-and-set over a per-auth-key
// "last accepted timestamp", used by `auth_server` so several sopipe
// processes sharing one auth key reject replays consistently.
type ReplayGuard struct {
	client *redis.Client
	prefix string
}

func NewReplayGuard(addr, prefix string) *ReplayGuard {
	return &ReplayGuard{client: redis.NewClient(&redis.Options{Addr: addr}), prefix: prefix}
}

// guardScript accepts the candidate timestamp only if it is strictly
// greater than the stored value, atomically updating it when accepted
// — the same "last seen" semantics as the in-process guard, just
// shared across processes via a Lua script so the read-compare-write
// is atomic.
const guardScript = `
local prev = redis.call("GET", KEYS[1])
if prev and tonumber(prev) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
return 1
`

// Accept reports whether ts is strictly greater than the last
// timestamp accepted for key, atomically recording it when accepted.
func (g *ReplayGuard) Accept(ctx context.Context, key string, ts int64) (bool, error) {
	res, err := g.client.Eval(ctx, guardScript, []string{g.prefix + ":" + key}, ts).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}
