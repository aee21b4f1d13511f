package store

import (
	"context"
	"time"
)

// ScoredMember represents a member with its score in sorted set operations
type ScoredMember struct {
	Member string
	Score  float64
}

// ScoreRange defines range parameters for sorted set queries
type ScoreRange struct {
	Min    *float64 // nil = -inf
	Max    *float64 // nil = +inf
	Offset int64    // 0 = start from beginning
	Count  int64    // 0 = all (default), positive = limit
}

// Store is the command surface of the backplane: the explicit set of
// key-value commands it issues outside of pub/sub. Lookups of a missing key
// or field return ErrNil.
type Store interface {
	// Connection
	Ping(ctx context.Context) error
	Connected(ctx context.Context) bool

	// String Operations - for presence, session metadata, etc.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Set Operations - for channel membership, client sets, etc.
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// Hash Operations - for per-client state
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// Sorted Set Operations - for message queues ordered by time
	ZAdd(ctx context.Context, key string, members ...ScoredMember) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRangeByScore(ctx context.Context, key string, scoreRange ScoreRange) ([]ScoredMember, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZIncrBy(ctx context.Context, key, member string, increment float64) (float64, error)

	// Resource management
	Close() error
}

// Score returns a pointer to f, for building a ScoreRange.
func Score(f float64) *float64 {
	return &f
}
