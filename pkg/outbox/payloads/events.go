package payloads

import (
	"time"

	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderSource tells consumers how an order entered the pipeline.
type OrderSource string

const (
	OrderSourceCheckout     OrderSource = "checkout"
	OrderSourceSubscription OrderSource = "subscription"
)

// OrderLine is one frozen line of a created order.
type OrderLine struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

// OrderCreatedEvent is emitted in the order creation transaction.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID   `json:"order_id"`
	UserID           uuid.UUID   `json:"user_id"`
	Source           OrderSource `json:"source"`
	Lines            []OrderLine `json:"lines"`
	SubtotalCents    int64       `json:"subtotal_cents"`
	ShippingFeeCents int64       `json:"shipping_fee_cents"`
	TotalCents       int64       `json:"total_cents"`
}

// OrderPaidEvent is emitted once per order when payment metadata is recorded.
type OrderPaidEvent struct {
	OrderID     uuid.UUID             `json:"order_id"`
	UserID      uuid.UUID             `json:"user_id"`
	Provider    enums.PaymentProvider `json:"provider"`
	PaymentID   string                `json:"payment_id"`
	AmountCents int64                 `json:"amount_cents"`
	PaidAt      time.Time             `json:"paid_at"`
}

// OrderStatusChangedEvent reports an admin fulfilment update.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// RefundRequestedEvent is emitted when an owner asks for a refund.
type RefundRequestedEvent struct {
	RefundID    uuid.UUID `json:"refund_id"`
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
}

// RefundResolvedEvent covers both approval and denial.
type RefundResolvedEvent struct {
	RefundID     uuid.UUID                 `json:"refund_id"`
	OrderID      uuid.UUID                 `json:"order_id"`
	AdminID      uuid.UUID                 `json:"admin_id"`
	Status       enums.RefundRequestStatus `json:"status"`
	AmountCents  int64                     `json:"amount_cents"`
	RefundStatus enums.RefundStatus        `json:"order_refund_status"`
	Note         string                    `json:"note,omitempty"`
}

// SubscriptionBillingSkippedEvent flags a paid invoice that produced no order.
type SubscriptionBillingSkippedEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	InvoiceID      string    `json:"invoice_id"`
	ProductID      uuid.UUID `json:"product_id,omitempty"`
	Requested      int       `json:"requested,omitempty"`
	Available      int       `json:"available,omitempty"`
	Reason         string    `json:"reason"`
}

// PaymentCompensatedEvent records an automatic refund of a capture that lost its order.
type PaymentCompensatedEvent struct {
	SessionID   uuid.UUID             `json:"session_id"`
	UserID      uuid.UUID             `json:"user_id"`
	Provider    enums.PaymentProvider `json:"provider"`
	PaymentID   string                `json:"payment_id"`
	AmountCents int64                 `json:"amount_cents"`
	Reason      string                `json:"reason"`
}
