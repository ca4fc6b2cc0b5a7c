package cron

import (
	"context"
	"testing"
	"time"
)

type memLockStore struct {
	keys map[string]string
}

func (m *memLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	return true, nil
}

func (m *memLockStore) ExtendIfOwner(_ context.Context, key, owner string, _ time.Duration) (bool, error) {
	return m.keys[key] == owner, nil
}

func (m *memLockStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	if m.keys[key] != owner {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func TestRedisLockIsExclusiveAndOwnerReleased(t *testing.T) {
	ctx := context.Background()
	store := &memLockStore{}
	first, _ := NewRedisLock(store, "fc:cron:lock", time.Minute)
	second, _ := NewRedisLock(store, "fc:cron:lock", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second replica must not acquire a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release without ownership: %v", err)
	}
	if _, held := store.keys["fc:cron:lock"]; !held {
		t.Fatal("non-owner release must not free the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("lock should be free after owner release")
	}
}

func TestRedisLockExtendDetectsLostOwnership(t *testing.T) {
	ctx := context.Background()
	store := &memLockStore{}
	lock, _ := NewRedisLock(store, "fc:cron:lock", time.Minute)

	if ok, _ := lock.Extend(ctx); ok {
		t.Fatal("extend without acquiring must fail")
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	if ok, err := lock.Extend(ctx); err != nil || !ok {
		t.Fatalf("owner extend: ok=%v err=%v", ok, err)
	}

	// The TTL lapsed and another replica took over.
	store.keys["fc:cron:lock"] = "someone-else"
	if ok, _ := lock.Extend(ctx); ok {
		t.Fatal("extend must report the lost lease")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release after loss: %v", err)
	}
	if store.keys["fc:cron:lock"] != "someone-else" {
		t.Fatal("a lost lock must not be released")
	}
}
