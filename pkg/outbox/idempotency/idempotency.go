// Package idempotency dedupes event handling across consumers and replicas.
// Marks live in Redis under fc:idempotency:<consumer>:<id>.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/freshcart-backend/pkg/redis"
)

const (
	markPending = "pending"
	markDone    = "done"

	// DefaultLease bounds how long a crashed consumer can block redelivery.
	DefaultLease = 5 * time.Minute
)

// Outcome is the result of Claim.
type Outcome int

const (
	// Claimed: the caller owns the event and must Complete or Release it.
	Claimed Outcome = iota
	// InFlight: another consumer holds an unexpired claim.
	InFlight
	// Done: the event was already handled inside the TTL.
	Done
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case InFlight:
		return "in_flight"
	case Done:
		return "done"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	lease time.Duration
}

type Option func(*Manager)

// WithLease overrides DefaultLease.
func WithLease(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lease = d
		}
	}
}

// NewManager keeps completed marks for ttl. A zero ttl keeps them forever.
func NewManager(store redis.IdempotencyStore, ttl time.Duration, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	m := &Manager{store: store, ttl: ttl, lease: DefaultLease}
	for _, opt := range opts {
		opt(m)
	}
	if m.ttl > 0 && m.lease > m.ttl {
		m.lease = m.ttl
	}
	return m, nil
}

// Claim takes a short lease on (consumer, id). The lease expires on its own
// if the caller dies before Complete or Release.
func (m *Manager) Claim(ctx context.Context, consumer, id string) (Outcome, error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return 0, err
	}
	set, err := m.store.SetNX(ctx, key, markPending, m.lease)
	if err != nil {
		return 0, fmt.Errorf("claim %s: %w", key, err)
	}
	if set {
		return Claimed, nil
	}
	current, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.ErrNil):
		// Lease lapsed between the two calls; report busy and let redelivery retry.
		return InFlight, nil
	case err != nil:
		return 0, fmt.Errorf("read %s: %w", key, err)
	case current == markDone:
		return Done, nil
	}
	return InFlight, nil
}

// Complete turns a claim into a done mark that lasts for the full ttl.
func (m *Manager) Complete(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markDone, m.ttl)
}

// Mark is the single-step form: it records id as done and reports whether
// it already was. Use it when the handler is cheap to repeat.
func (m *Manager) Mark(ctx context.Context, consumer, id string) (bool, error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, markDone, m.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return !set, nil
}

// Release drops any mark so the next delivery is handled.
func (m *Manager) Release(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, id string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	id = strings.TrimSpace(id)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if id == "" {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(consumer, id), nil
}
