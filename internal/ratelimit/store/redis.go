package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"circulation/internal/ratelimit/models"
)

const (
	failuresPrefix = "login_failures:"
	lockedPrefix   = "login_locked:"
)

// Redis keeps the failure counter and the lock as separate keys, each
// expiring on its own.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (s *Redis) RecordFailure(ctx context.Context, key string, now time.Time, window time.Duration) (*models.Lockout, error) {
	counter := failuresPrefix + key
	n, err := s.client.Incr(ctx, counter).Result()
	if err != nil {
		return nil, fmt.Errorf("increment login failures: %w", err)
	}
	if n == 1 {
		if err := s.client.PExpire(ctx, counter, window).Err(); err != nil {
			return nil, fmt.Errorf("expire login failures: %w", err)
		}
	}
	ttl, err := s.client.PTTL(ctx, counter).Result()
	if err != nil {
		return nil, fmt.Errorf("read login failure window: %w", err)
	}
	lockedUntil, err := s.lockedUntil(ctx, key)
	if err != nil {
		return nil, err
	}
	return &models.Lockout{
		Key:         key,
		Failures:    int(n),
		WindowEnds:  now.Add(max(ttl, 0)),
		LockedUntil: lockedUntil,
	}, nil
}

// Lock stores the deadline under a key that expires at that deadline.
func (s *Redis) Lock(ctx context.Context, key string, now, until time.Time) error {
	ttl := until.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, lockedPrefix+key, until.UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("lock login: %w", err)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, key string, now time.Time) (*models.Lockout, error) {
	lockedUntil, err := s.lockedUntil(ctx, key)
	if err != nil {
		return nil, err
	}
	n, err := s.client.Get(ctx, failuresPrefix+key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read login failures: %w", err)
	}
	if n == 0 && lockedUntil == nil {
		return nil, nil
	}
	rec := &models.Lockout{Key: key, Failures: n, LockedUntil: lockedUntil}
	if n > 0 {
		ttl, err := s.client.PTTL(ctx, failuresPrefix+key).Result()
		if err != nil {
			return nil, fmt.Errorf("read login failure window: %w", err)
		}
		rec.WindowEnds = now.Add(max(ttl, 0))
	}
	return rec, nil
}

func (s *Redis) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, failuresPrefix+key, lockedPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}
	return nil
}

func (s *Redis) lockedUntil(ctx context.Context, key string) (*time.Time, error) {
	raw, err := s.client.Get(ctx, lockedPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read login lock: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse login lock: %w", err)
	}
	until := time.UnixMilli(ms).UTC()
	return &until, nil
}
