// Package webhooks holds what the provider webhook handlers share.
package webhooks

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/freshcart-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/freshcart-backend/pkg/redis"
)

// IdempotencyGuard remembers provider event ids so a redelivered event is
// acknowledged without being handled twice.
type IdempotencyGuard struct {
	marks *idempotency.Manager
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	marks, err := idempotency.NewManager(store, ttl)
	if err != nil {
		return nil, err
	}
	return &IdempotencyGuard{marks: marks, scope: scope}, nil
}

// CheckAndMark reports true when the event was seen before.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	return g.marks.Mark(ctx, g.scope, eventID)
}

// Forget drops the mark after a failed attempt so the provider retry is handled.
func (g *IdempotencyGuard) Forget(ctx context.Context, eventID string) error {
	return g.marks.Release(ctx, g.scope, eventID)
}
