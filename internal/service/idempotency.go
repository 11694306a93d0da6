package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// inProgressMarker is the value stored while a purchase with the key
// is still running.  Purchase results are JSON objects, so a bare
// string cannot collide with one.
const inProgressMarker = "IN_PROGRESS"

// BeginState is the outcome of IdempotencyStore.Begin.
type BeginState int

const (
	// BeginFresh means the key was unseen; the caller owns it and must
	// Complete or Abandon it.
	BeginFresh BeginState = iota
	// BeginInProgress means another request with the key is running.
	BeginInProgress
	// BeginDone means the key finished earlier; the stored result is
	// returned alongside.
	BeginDone
)

// IdempotencyStore deduplicates purchase requests by client-supplied
// key, backed by Redis.  SETNX makes Begin a single atomic claim, so
// two concurrent requests with the same key cannot both run the saga.
// Keys expire after the retention TTL to bound storage.
type IdempotencyStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewIdempotencyStore builds an IdempotencyStore with the given
// retention window.
func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl, prefix: "idem:"}
}

// Begin claims the key.  Exactly one of three things happens: the
// caller gets BeginFresh and proceeds, gets BeginInProgress because a
// concurrent run holds the claim, or gets BeginDone with the stored
// result bytes of the finished run.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (BeginState, []byte, error) {
	k := s.prefix + key
	ok, err := s.rdb.SetNX(ctx, k, inProgressMarker, s.ttl).Result()
	if err != nil {
		return 0, nil, err
	}
	if ok {
		return BeginFresh, nil, nil
	}
	val, err := s.rdb.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// claim expired between SETNX and GET; treat as contended
			// and let the client retry rather than looping here
			return BeginInProgress, nil, nil
		}
		return 0, nil, err
	}
	if val == inProgressMarker {
		return BeginInProgress, nil, nil
	}
	return BeginDone, []byte(val), nil
}

// Complete stores the terminal result under the key.  Permanent: any
// later Begin with the key replays these bytes until retention runs
// out.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, result []byte) error {
	return s.rdb.Set(ctx, s.prefix+key, result, s.ttl).Err()
}

// Abandon drops the claim so the client may retry the key from
// scratch.  Used when the purchase failed before any saga step
// committed.
func (s *IdempotencyStore) Abandon(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}
