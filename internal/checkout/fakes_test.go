package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/orders"
	"github.com/angelmondragon/freshcart-backend/internal/payments"
	"github.com/angelmondragon/freshcart-backend/internal/paymentsessions"
	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	product "github.com/angelmondragon/freshcart-backend/internal/products"
	"github.com/angelmondragon/freshcart-backend/internal/stock"
	"github.com/angelmondragon/freshcart-backend/pkg/db"
	"github.com/angelmondragon/freshcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
)

// fakeRail replays scripted confirmations in order; the last one repeats.
type fakeRail struct {
	mu            sync.Mutex
	provider      enums.PaymentProvider
	pollTimeout   time.Duration
	confirmations []payments.Confirmation
	confirmCalls  int
	refunds       []string
	refundErr     error
	initiated     []payments.InitiateRequest
}

func (f *fakeRail) Provider() enums.PaymentProvider { return f.provider }

func (f *fakeRail) Quote(totals pricing.Totals) payments.Quote {
	return payments.Quote{
		Provider:    f.provider,
		Currency:    "SGD",
		AmountCents: totals.GrandTotalCents,
		Amount:      money.Format(totals.GrandTotalCents),
	}
}

func (f *fakeRail) Initiate(_ context.Context, req payments.InitiateRequest) (payments.ExternalRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated = append(f.initiated, req)
	return payments.ExternalRef{
		Provider:    f.provider,
		Ref:         "ref-" + req.Reference,
		RedirectURL: req.SuccessURL,
		PollTimeout: f.pollTimeout,
	}, nil
}

func (f *fakeRail) Confirm(_ context.Context, _ string) (payments.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.confirmations) == 0 {
		return payments.Confirmation{}, errors.New("no scripted confirmation")
	}
	idx := f.confirmCalls
	if idx >= len(f.confirmations) {
		idx = len(f.confirmations) - 1
	}
	f.confirmCalls++
	return f.confirmations[idx], nil
}

func (f *fakeRail) Refund(_ context.Context, paymentID string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refunds = append(f.refunds, paymentID)
	return nil
}

func (f *fakeRail) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmCalls
}

type memoryLockStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] != owner {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func (m *memoryLockStore) LockKey(scope, id string) string {
	return "fc:lock:" + scope + ":" + id
}

type recordingSessionCarts struct {
	mu      sync.Mutex
	cleared []uuid.UUID
}

func (r *recordingSessionCarts) Clear(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, userID)
	return nil
}

type harness struct {
	svc      Service
	conn     *gorm.DB
	rail     *fakeRail
	sessions paymentsessions.Service
	lock     *memoryLockStore
	carts    *recordingSessionCarts
}

func newHarness(t *testing.T, provider enums.PaymentProvider, compensate bool) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	rail := &fakeRail{provider: provider}
	if provider == enums.PaymentProviderNetsQR {
		rail.pollTimeout = 300 * time.Second
	}
	sessions, err := paymentsessions.NewService(paymentsessions.NewRepository(conn))
	require.NoError(t, err)
	lockStore := &memoryLockStore{}
	lock, err := paymentsessions.NewConfirmLock(lockStore, time.Minute)
	require.NoError(t, err)
	carts := &recordingSessionCarts{}

	svc, err := NewService(ServiceParams{
		Tx:                 db.FromConn(conn),
		Orders:             orders.NewRepository(conn),
		Catalog:            product.NewRepository(conn),
		Stock:              stock.NewLedger(conn),
		Rails:              payments.NewRegistry(rail),
		Sessions:           sessions,
		Lock:               lock,
		SessionCarts:       carts,
		DurableCarts:       cart.NewRepository(conn),
		Outbox:             outbox.NewService(outbox.NewRepository(conn), nil),
		CompensateOrphaned: compensate,
	})
	require.NoError(t, err)
	return &harness{svc: svc, conn: conn, rail: rail, sessions: sessions, lock: lockStore, carts: carts}
}

func (h *harness) seedProduct(t *testing.T, name string, priceCents int64, quantity int) models.Product {
	t.Helper()
	p := models.Product{Name: name, PriceCents: priceCents, Quantity: quantity, Status: enums.RecordStatusActive}
	require.NoError(t, h.conn.Create(&p).Error)
	return p
}

func (h *harness) stockOf(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, h.conn.Where("id = ?", id).First(&p).Error)
	return p.Quantity
}

func (h *harness) count(t *testing.T, model any, where ...any) int64 {
	t.Helper()
	var n int64
	query := h.conn.Model(model)
	if len(where) > 0 {
		query = query.Where(where[0], where[1:]...)
	}
	require.NoError(t, query.Count(&n).Error)
	return n
}

func shopper() *User {
	return &User{ID: uuid.New(), Role: enums.RoleUser}
}

func lineFor(p models.Product, qty int) cart.CartLine {
	return cart.NewCartLine(p.ID, p.Name, p.PriceCents, qty, "")
}

func snapshotFor(p models.Product, qty int) cart.Snapshot {
	return cart.NewSnapshot([]cart.Line{{
		ProductID:      p.ID,
		ProductName:    p.Name,
		UnitPriceCents: p.PriceCents,
		Quantity:       qty,
	}})
}
