package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	product "github.com/angelmondragon/freshcart-backend/internal/products"
	"github.com/angelmondragon/freshcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	pkgredis "github.com/angelmondragon/freshcart-backend/pkg/redis"
)

type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string]string{}}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", pkgredis.ErrNil
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	return nil
}

func (m *memoryKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryKV) CartKey(userID string) string { return "fc:cart:" + userID }

func newTestService(t *testing.T) (Service, *memoryKV, Repository, product.Repository) {
	t.Helper()
	db := dbtest.Open(t)
	kv := newMemoryKV()
	sessions, err := NewSessionStore(kv, time.Hour)
	require.NoError(t, err)
	repo := NewRepository(db)
	products := product.NewRepository(db)
	svc, err := NewService(sessions, repo, products, nil)
	require.NoError(t, err)
	return svc, kv, repo, products
}

func TestServiceSetItemWritesSessionAndMirror(t *testing.T) {
	ctx := context.Background()
	svc, _, repo, products := newTestService(t)
	user := uuid.New()
	apples, err := products.Create(ctx, &models.Product{Name: "Apples", PriceCents: 1000, Quantity: 10})
	require.NoError(t, err)

	_, err = svc.SetItem(ctx, user, SetItemInput{ProductID: apples.ID, Quantity: 2, Add: true})
	require.NoError(t, err)
	view, err := svc.SetItem(ctx, user, SetItemInput{ProductID: apples.ID, Quantity: 1, Add: true})
	require.NoError(t, err)

	require.Len(t, view.Lines, 1)
	require.Equal(t, 3, view.Lines[0].Quantity)
	require.Equal(t, int64(3000), view.Totals.SubtotalCents)
	require.Equal(t, int64(499), view.Totals.ShippingFeeCents)
	require.Equal(t, int64(3499), view.Totals.GrandTotalCents)

	mirror, err := repo.List(ctx, user)
	require.NoError(t, err)
	require.Len(t, mirror, 1)
	require.Equal(t, 3, mirror[0].Quantity)
}

func TestServiceRestoresExpiredSessionFromMirror(t *testing.T) {
	ctx := context.Background()
	svc, kv, repo, products := newTestService(t)
	user := uuid.New()
	bread, err := products.Create(ctx, &models.Product{Name: "Bread", PriceCents: 420, Quantity: 5})
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, user, bread.ID, 2))

	lines, err := svc.Lines(ctx, user)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, bread.ID.String(), lines[0].ProductID)

	_, stored := kv.data[kv.CartKey(user.String())]
	require.True(t, stored, "restored cart should be written back to the session")
}

func TestServiceRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	svc, _, repo, products := newTestService(t)
	user := uuid.New()
	a, err := products.Create(ctx, &models.Product{Name: "A", PriceCents: 100, Quantity: 5})
	require.NoError(t, err)
	b, err := products.Create(ctx, &models.Product{Name: "B", PriceCents: 200, Quantity: 5})
	require.NoError(t, err)

	_, err = svc.SetItem(ctx, user, SetItemInput{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.SetItem(ctx, user, SetItemInput{ProductID: b.ID, Quantity: 4})
	require.NoError(t, err)

	view, err := svc.RemoveItem(ctx, user, a.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	require.Equal(t, b.ID, view.Lines[0].ProductID)

	require.NoError(t, svc.Clear(ctx, user))
	lines, err := svc.Lines(ctx, user)
	require.NoError(t, err)
	require.Empty(t, lines)
	mirror, err := repo.List(ctx, user)
	require.NoError(t, err)
	require.Empty(t, mirror)
}

func TestServiceRejectsArchivedProduct(t *testing.T) {
	ctx := context.Background()
	svc, _, _, products := newTestService(t)
	p, err := products.Create(ctx, &models.Product{Name: "Old", PriceCents: 100, Quantity: 5})
	require.NoError(t, err)
	require.NoError(t, products.Archive(ctx, p.ID))

	_, err = svc.SetItem(ctx, uuid.New(), SetItemInput{ProductID: p.ID, Quantity: 1})
	require.Error(t, err)
}
