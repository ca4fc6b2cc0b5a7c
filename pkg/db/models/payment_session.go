package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/enums"
)

// PaymentSession correlates an in-flight external payment with the frozen
// cart that produced it. ID is the token handed to the client.
type PaymentSession struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index"`
	Provider         enums.PaymentProvider      `gorm:"column:provider;type:payment_provider;not null"`
	ExternalRef      string                     `gorm:"column:external_ref;not null;uniqueIndex:payment_sessions_provider_ref"`
	Snapshot         json.RawMessage            `gorm:"column:snapshot;type:jsonb;not null"`
	SubtotalCents    int64                      `gorm:"column:subtotal_cents;not null"`
	ShippingFeeCents int64                      `gorm:"column:shipping_fee_cents;not null"`
	TotalCents       int64                      `gorm:"column:total_cents;not null"`
	Status           enums.PaymentSessionStatus `gorm:"column:status;type:payment_session_status;not null;default:'pending'"`
	OrderID          *uuid.UUID                 `gorm:"column:order_id;type:uuid"`
	PaymentID        *string                    `gorm:"column:payment_id"`
	LastError        *string                    `gorm:"column:last_error"`
	ExpiresAt        time.Time                  `gorm:"column:expires_at;not null"`
	ResolvedAt       *time.Time                 `gorm:"column:resolved_at"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *PaymentSession) BeforeCreate(_ *gorm.DB) error {
	assignID(&s.ID)
	if s.Status == "" {
		s.Status = enums.PaymentSessionPending
	}
	return nil
}
