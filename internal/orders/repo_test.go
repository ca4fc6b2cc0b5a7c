package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/pagination"
)

func seedOrder(t *testing.T, db *gorm.DB, userID uuid.UUID, createdAt time.Time, items ...models.OrderItem) *models.Order {
	t.Helper()
	repo := NewRepository(db)
	var subtotal int64
	for _, it := range items {
		subtotal += it.LineTotalCents()
	}
	order := &models.Order{
		UserID:           userID,
		SubtotalCents:    subtotal,
		ShippingFeeCents: 499,
		TotalCents:       subtotal + 499,
		CreatedAt:        createdAt,
	}
	require.NoError(t, repo.CreateOrder(context.Background(), order))
	for i := range items {
		items[i].OrderID = order.ID
		items[i].Position = i
		require.NoError(t, repo.AddOrderItem(context.Background(), &items[i]))
	}
	return order
}

func TestFindDetailsReturnsItemsInCartOrder(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	user := uuid.New()
	order := seedOrder(t, db, user, time.Now().UTC(),
		models.OrderItem{ProductID: uuid.New(), ProductName: "Tomatoes", UnitPriceCents: 250, Quantity: 2},
		models.OrderItem{ProductID: uuid.New(), ProductName: "Basil", UnitPriceCents: 199, Quantity: 1},
	)

	found, err := repo.FindDetails(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, found.Items, 2)
	require.Equal(t, "Tomatoes", found.Items[0].ProductName)
	require.Equal(t, "Basil", found.Items[1].ProductName)
	require.Equal(t, enums.OrderStatusPending, found.Status)
	require.Nil(t, found.RefundStatus)

	_, err = repo.FindDetails(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdatePaymentInfoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	order := seedOrder(t, db, uuid.New(), time.Now().UTC())

	info := PaymentInfo{Provider: enums.PaymentProviderPayPal, PaymentID: "CAP-1", AmountCents: order.TotalCents}
	wrote, err := repo.UpdatePaymentInfo(ctx, order.ID, info)
	require.NoError(t, err)
	require.True(t, wrote)

	wrote, err = repo.UpdatePaymentInfo(ctx, order.ID, info)
	require.NoError(t, err, "identical redelivery must be a no-op success")
	require.False(t, wrote)

	_, err = repo.UpdatePaymentInfo(ctx, order.ID, PaymentInfo{Provider: enums.PaymentProviderPayPal, PaymentID: "CAP-2"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, "CAP-1", *stored.PaymentID)
	require.True(t, stored.HasPayment())
}

func TestUpdateRefundStatus(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	order := seedOrder(t, db, uuid.New(), time.Now().UTC())

	amount := int64(250)
	require.NoError(t, repo.UpdateRefundStatus(ctx, order.ID, enums.RefundStatusPartial, &amount))
	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.RefundStatusPartial, *stored.RefundStatus)
	require.Equal(t, int64(250), stored.RefundedAmountCents)

	err = repo.UpdateRefundStatus(ctx, uuid.New(), enums.RefundStatusDenied, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListByUserPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	user := uuid.New()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	oldest := seedOrder(t, db, user, base)
	middle := seedOrder(t, db, user, base.Add(time.Hour))
	newest := seedOrder(t, db, user, base.Add(2*time.Hour))
	seedOrder(t, db, uuid.New(), base.Add(3*time.Hour))

	rows, err := repo.ListByUser(ctx, user, pagination.Params{Limit: 2})
	require.NoError(t, err)
	page := summaries(rows, 2)
	require.Len(t, page.Items, 2)
	require.Equal(t, newest.ID, page.Items[0].ID)
	require.Equal(t, middle.ID, page.Items[1].ID)
	require.NotEmpty(t, page.NextCursor)

	rows, err = repo.ListByUser(ctx, user, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, oldest.ID, rows[0].ID)
}
