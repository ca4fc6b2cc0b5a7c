package subscriptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/internal/stock"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
)

// StartInput asks for a subscription checkout session.
type StartInput struct {
	UserID     uuid.UUID
	Email      string
	SuccessURL string
	CancelURL  string
}

// StartResult points the shopper at the hosted Stripe page.
type StartResult struct {
	SessionID   string         `json:"session_id"`
	RedirectURL string         `json:"redirect_url"`
	Totals      pricing.Totals `json:"totals"`
}

// CheckoutCompleted is the subscription-mode checkout.session.completed payload.
type CheckoutCompleted struct {
	UserID         uuid.UUID
	SubscriptionID string
	CustomerID     string
}

// InvoicePaid is the part of a Stripe invoice the biller needs. UserID is
// read from the subscription metadata when Stripe sends it.
type InvoicePaid struct {
	InvoiceID       string
	SubscriptionID  string
	CustomerID      string
	PaymentIntentID string
	AmountPaidCents int64
	UserID          uuid.UUID
}

type InvoiceFailed struct {
	InvoiceID      string
	SubscriptionID string
}

// SubscriptionChanged is Stripe's view of a subscription after an update or deletion.
type SubscriptionChanged struct {
	SubscriptionID    string
	StripeStatus      string
	CancelAtPeriodEnd bool
}

// BillingOutcome says what a paid invoice turned into.
type BillingOutcome string

const (
	BillingOrdered   BillingOutcome = "ordered"
	BillingDuplicate BillingOutcome = "duplicate"
	BillingSkipped   BillingOutcome = "skipped"
	BillingUnmapped  BillingOutcome = "unmapped"
)

type BillingResult struct {
	Outcome   BillingOutcome
	OrderID   *uuid.UUID
	Shortfall *stock.Shortfall
	Reason    string
}

// SubscriptionDTO is the shopper view of their subscription.
type SubscriptionDTO struct {
	ID                   uuid.UUID                `json:"id"`
	StripeSubscriptionID string                   `json:"stripe_subscription_id"`
	Status               enums.SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd    bool                     `json:"cancel_at_period_end"`
	LastOrderID          *uuid.UUID               `json:"last_order_id,omitempty"`
	UpdatedAt            time.Time                `json:"updated_at"`
}

func newDTO(sub models.Subscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:                   sub.ID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		Status:               sub.Status,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		LastOrderID:          sub.LastOrderID,
		UpdatedAt:            sub.UpdatedAt,
	}
}
