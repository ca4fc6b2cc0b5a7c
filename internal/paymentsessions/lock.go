package paymentsessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	lockScope      = "payment_session"
	defaultLockTTL = 30 * time.Second
)

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// KeyedLock serializes work on one id across API instances.
type KeyedLock struct {
	store lockStore
	scope string
	ttl   time.Duration
}

// NewConfirmLock guards payment token confirmations.
func NewConfirmLock(store lockStore, ttl time.Duration) (*KeyedLock, error) {
	return NewKeyedLock(store, lockScope, ttl)
}

func NewKeyedLock(store lockStore, scope string, ttl time.Duration) (*KeyedLock, error) {
	if store == nil {
		return nil, errors.New("redis store required for lock")
	}
	if scope == "" {
		return nil, errors.New("lock scope required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &KeyedLock{store: store, scope: scope, ttl: ttl}, nil
}

// Acquire returns a release func when the lock was obtained.
func (l *KeyedLock) Acquire(ctx context.Context, id uuid.UUID) (func(context.Context) error, bool, error) {
	key := l.store.LockKey(l.scope, id.String())
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if _, err := l.store.ReleaseIfOwner(ctx, key, owner); err != nil {
			return fmt.Errorf("release %s lock: %w", l.scope, err)
		}
		return nil
	}
	return release, true, nil
}
