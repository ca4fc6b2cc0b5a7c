package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgredis "github.com/angelmondragon/freshcart-backend/pkg/redis"
)

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(userID string) string
}

// SessionStore keeps the live cart of each user in Redis.
type SessionStore struct {
	kv  kvStore
	ttl time.Duration
}

func NewSessionStore(kv kvStore, ttl time.Duration) (*SessionStore, error) {
	if kv == nil {
		return nil, errors.New("cart session store requires redis")
	}
	return &SessionStore{kv: kv, ttl: ttl}, nil
}

// Load returns the session lines. found is false when no session cart exists.
func (s *SessionStore) Load(ctx context.Context, userID uuid.UUID) (lines []CartLine, found bool, err error) {
	raw, err := s.kv.Get(ctx, s.kv.CartKey(userID.String()))
	if err != nil {
		if errors.Is(err, pkgredis.ErrNil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load session cart: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, false, fmt.Errorf("decode session cart: %w", err)
	}
	return lines, true, nil
}

func (s *SessionStore) Save(ctx context.Context, userID uuid.UUID, lines []CartLine) error {
	if lines == nil {
		lines = []CartLine{}
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode session cart: %w", err)
	}
	return s.kv.Set(ctx, s.kv.CartKey(userID.String()), string(payload), s.ttl)
}

func (s *SessionStore) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.kv.Del(ctx, s.kv.CartKey(userID.String()))
}
