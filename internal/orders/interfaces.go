package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	"github.com/angelmondragon/freshcart-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	AddOrderItem(ctx context.Context, item *models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindDetails(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error)
	ListAll(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Order, error)
	UpdatePaymentInfo(ctx context.Context, orderID uuid.UUID, info PaymentInfo) (bool, error)
	UpdateRefundStatus(ctx context.Context, orderID uuid.UUID, status enums.RefundStatus, refundedAmountCents *int64) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
}
