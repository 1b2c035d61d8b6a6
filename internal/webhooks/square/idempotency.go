package squarewebhook

import (
	"errors"
	"time"

	"github.com/courseforge/courseforge-backend/pkg/outbox/idempotency"
	"github.com/courseforge/courseforge-backend/pkg/redis"
)

// IdempotencyGuard remembers processed Square event ids so redeliveries are acknowledged without reprocessing.
type IdempotencyGuard = idempotency.ConsumerGuard

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, consumer string) (*IdempotencyGuard, error) {
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	manager, err := idempotency.NewManager(store, ttl)
	if err != nil {
		return nil, err
	}
	return manager.ForConsumer(consumer), nil
}
