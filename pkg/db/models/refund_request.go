package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/enums"
)

// RefundRequest is created by the order owner and resolved once by an admin.
// At most one pending request exists per order (partial unique index).
type RefundRequest struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	UserID      uuid.UUID                 `gorm:"column:user_id;type:uuid;not null"`
	Provider    enums.PaymentProvider     `gorm:"column:provider;type:payment_provider;not null"`
	PaymentID   string                    `gorm:"column:payment_id;not null"`
	AmountCents int64                     `gorm:"column:amount_cents;not null"`
	Reason      *string                   `gorm:"column:reason"`
	Status      enums.RefundRequestStatus `gorm:"column:status;type:refund_request_status;not null;default:'pending'"`
	AdminID     *uuid.UUID                `gorm:"column:admin_id;type:uuid"`
	AdminNote   *string                   `gorm:"column:admin_note"`
	LastError   *string                   `gorm:"column:last_error"`
	Attempts    int                       `gorm:"column:attempts;not null;default:0"`
	ResolvedAt  *time.Time                `gorm:"column:resolved_at"`
	CreatedAt   time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *RefundRequest) BeforeCreate(_ *gorm.DB) error {
	assignID(&r.ID)
	if r.Status == "" {
		r.Status = enums.RefundRequestPending
	}
	return nil
}
