package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/courseforge/courseforge-backend/pkg/instance"
)

// lockSlack keeps the sweep lock alive past one interval so a slow cycle on
// one worker is never overlapped by the next tick on another.
const lockSlack = time.Hour

// Lock coordinates exclusive sweep cycles across cron-worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// LockName is the per-environment name of the sweep lock. Staging and
// production share a redis instance, so the env keeps their workers apart.
func LockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "courseforge-sweep:" + env
}

// LockTTL returns the configured TTL, or the cron interval plus slack.
func LockTTL(configured, interval time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return interval + lockSlack
}

// RedisLock is a SETNX lease owned by one worker at a time.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("sweep lock requires a redis client")
	}
	if key == "" {
		return nil, errors.New("sweep lock key is required")
	}
	return &RedisLock{client: client, key: key, ttl: LockTTL(ttl, 0)}, nil
}

// Owner reports the lease value held by this worker, empty when not held.
func (l *RedisLock) Owner() string {
	return l.owner
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := fmt.Sprintf("%s/%s", instance.GetID(), uuid.NewString())
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire sweep lock %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release drops the lease only while this worker still owns it; an expired
// lease taken over by another replica is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	current, err := l.client.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("read sweep lock %s: %w", l.key, err)
	case current != owner:
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release sweep lock %s: %w", l.key, err)
	}
	return nil
}
