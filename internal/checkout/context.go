package checkout

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/payments"
	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/internal/stock"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/payloads"
)

// TokenPlaceholder is replaced with the payment token in redirect URLs.
const TokenPlaceholder = "{token}"

const invoicePathFormat = "/api/v1/orders/%s/invoice"

// InvoicePath is where the owner can read the invoice of an order.
func InvoicePath(orderID uuid.UUID) string {
	return fmt.Sprintf(invoicePathFormat, orderID)
}

// User is the authenticated shopper behind a checkout attempt.
type User struct {
	ID   uuid.UUID
	Role enums.Role
}

// CheckoutContext is assembled at the HTTP boundary for one attempt.
type CheckoutContext struct {
	User         *User
	Cart         []cart.CartLine
	PaymentToken uuid.UUID
}

func (cc CheckoutContext) userID() uuid.UUID {
	if cc.User == nil {
		return uuid.Nil
	}
	return cc.User.ID
}

// Plan is a validated, priced cart ready to be paid.
type Plan struct {
	Snapshot cart.Snapshot    `json:"-"`
	Lines    []cart.Line      `json:"lines"`
	Totals   pricing.Totals   `json:"totals"`
	Quotes   []payments.Quote `json:"quotes"`
}

// StartPaymentInput selects the rail and the redirect targets. Both URLs may
// carry TokenPlaceholder.
type StartPaymentInput struct {
	Provider   enums.PaymentProvider
	SuccessURL string
	CancelURL  string
}

// PaymentStart is what the client needs to complete the payment.
type PaymentStart struct {
	Token              uuid.UUID             `json:"token"`
	Provider           enums.PaymentProvider `json:"provider"`
	RedirectURL        string                `json:"redirect_url,omitempty"`
	QRCode             string                `json:"qr_code,omitempty"`
	PollTimeoutSeconds int                   `json:"poll_timeout_seconds,omitempty"`
	ExpiresAt          time.Time             `json:"expires_at"`
	Totals             pricing.Totals        `json:"totals"`
	Quote              payments.Quote        `json:"quote"`
}

// OrderInput is a frozen cart about to become an order.
type OrderInput struct {
	UserID   uuid.UUID
	Snapshot cart.Snapshot
	Totals   pricing.Totals
	Source   payloads.OrderSource
}

// ConfirmInput identifies the token to confirm. UserID is set for
// shopper-initiated polls and left empty for webhooks and sweeps.
type ConfirmInput struct {
	Token  uuid.UUID
	UserID uuid.UUID
}

// ConfirmStatus is the client-facing confirmation outcome.
type ConfirmStatus string

const (
	ConfirmSuccess ConfirmStatus = "success"
	ConfirmPending ConfirmStatus = "pending"
	ConfirmFailed  ConfirmStatus = "failed"
)

// ConfirmResult maps onto {status, invoiceUrl} for polling clients.
type ConfirmResult struct {
	Status      ConfirmStatus    `json:"status"`
	Token       uuid.UUID        `json:"token"`
	OrderID     *uuid.UUID       `json:"order_id,omitempty"`
	InvoiceURL  string           `json:"invoice_url,omitempty"`
	Duplicate   bool             `json:"duplicate,omitempty"`
	Compensated bool             `json:"compensated,omitempty"`
	Shortfall   *stock.Shortfall `json:"shortfall,omitempty"`
	Message     string           `json:"message,omitempty"`
}

func successResult(token, orderID uuid.UUID, duplicate bool) *ConfirmResult {
	id := orderID
	return &ConfirmResult{
		Status:     ConfirmSuccess,
		Token:      token,
		OrderID:    &id,
		InvoiceURL: InvoicePath(orderID),
		Duplicate:  duplicate,
	}
}

func pendingResult(token uuid.UUID, message string) *ConfirmResult {
	return &ConfirmResult{Status: ConfirmPending, Token: token, Message: message}
}

func failedResult(token uuid.UUID, message string) *ConfirmResult {
	return &ConfirmResult{Status: ConfirmFailed, Token: token, Message: message}
}
