package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/enums"
)

// Order is created once per successful checkout. Totals are frozen at
// creation; payment and refund columns are written by their subsystems only.
type Order struct {
	ID                  uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID              uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Status              enums.OrderStatus      `gorm:"column:status;type:order_status;not null;default:'pending'"`
	SubtotalCents       int64                  `gorm:"column:subtotal_cents;not null"`
	ShippingFeeCents    int64                  `gorm:"column:shipping_fee_cents;not null"`
	TotalCents          int64                  `gorm:"column:total_cents;not null"`
	PaymentProvider     *enums.PaymentProvider `gorm:"column:payment_provider;type:payment_provider"`
	PaymentID           *string                `gorm:"column:payment_id"`
	PaidAmountCents     *int64                 `gorm:"column:paid_amount_cents"`
	PaidAt              *time.Time             `gorm:"column:paid_at"`
	RefundStatus        *enums.RefundStatus    `gorm:"column:refund_status;type:refund_status"`
	RefundedAmountCents int64                  `gorm:"column:refunded_amount_cents;not null;default:0"`
	Items               []OrderItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(_ *gorm.DB) error {
	assignID(&o.ID)
	if o.Status == "" {
		o.Status = enums.OrderStatusPending
	}
	return nil
}

// HasPayment reports whether captured payment metadata is present.
func (o Order) HasPayment() bool {
	return o.PaymentProvider != nil && o.PaymentID != nil && *o.PaymentID != ""
}
