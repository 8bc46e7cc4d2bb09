package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLockValue    = "LOCK"
	idemResultPrefix = "RES:"
)

// IdemState is the outcome of claiming an idempotency key.
type IdemState int

const (
	// IdemAcquired means the caller owns the key and must Save or Release it.
	IdemAcquired IdemState = iota
	// IdemReplay means a stored result exists and must be returned as is.
	IdemReplay
	// IdemInFlight means another request holds the key right now.
	IdemInFlight
)

type IdempotencyStore struct {
	rdb     *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl, lockTTL time.Duration) *IdempotencyStore {
	if lockTTL <= 0 {
		lockTTL = 60 * time.Second
	}
	return &IdempotencyStore{rdb: rdb, ttl: ttl, lockTTL: lockTTL}
}

// Begin claims key. On IdemReplay the stored JSON payload is returned.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (IdemState, string, error) {
	if payload, ok, err := s.result(ctx, key); err != nil {
		return 0, "", err
	} else if ok {
		return IdemReplay, payload, nil
	}

	acquired, err := s.rdb.SetNX(ctx, key, idemLockValue, s.lockTTL).Result()
	if err != nil {
		return 0, "", err
	}
	if acquired {
		return IdemAcquired, "", nil
	}

	// lost the race: the winner may have finished in between
	if payload, ok, err := s.result(ctx, key); err == nil && ok {
		return IdemReplay, payload, nil
	}

	return IdemInFlight, "", nil
}

// Save stores the final JSON payload for replays.
func (s *IdempotencyStore) Save(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemResultPrefix+jsonPayload, s.ttl).Err()
}

// Release frees the key so a failed request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *IdempotencyStore) result(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if strings.HasPrefix(v, idemResultPrefix) {
		return strings.TrimPrefix(v, idemResultPrefix), true, nil
	}

	return "", false, nil
}
