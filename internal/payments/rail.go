// Package payments adapts the three external payment providers to a single
// rail contract. Provider payloads are decoded here and never leave the package.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
)

// Status is the provider-agnostic outcome of a confirmation.
type Status string

const (
	StatusPaid    Status = "paid"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// Rail is one payment provider.
type Rail interface {
	Provider() enums.PaymentProvider
	Quote(totals pricing.Totals) Quote
	Initiate(ctx context.Context, req InitiateRequest) (ExternalRef, error)
	Confirm(ctx context.Context, ref string) (Confirmation, error)
	Refund(ctx context.Context, paymentID string, amountCents int64) error
}

// InitiateRequest carries everything a rail needs to open a payment.
type InitiateRequest struct {
	Reference  string
	UserID     uuid.UUID
	Snapshot   cart.Snapshot
	Totals     pricing.Totals
	SuccessURL string
	CancelURL  string
}

// ExternalRef identifies an opened payment at the provider. Ref is the
// Stripe session id, the PayPal order id or the NETS retrieval ref.
type ExternalRef struct {
	Provider    enums.PaymentProvider `json:"provider"`
	Ref         string                `json:"ref"`
	RedirectURL string                `json:"redirect_url,omitempty"`
	QRCode      string                `json:"qr_code,omitempty"`
	PollTimeout time.Duration         `json:"-"`
}

// Confirmation is what a rail reports after asking the provider.
type Confirmation struct {
	Status      Status
	PaymentID   string
	AmountCents int64
	Message     string
}

func (c Confirmation) IsPaid() bool { return c.Status == StatusPaid }

// Quote is the amount a rail will charge, formatted for display.
type Quote struct {
	Provider    enums.PaymentProvider `json:"provider"`
	Currency    string                `json:"currency"`
	AmountCents int64                 `json:"amount_cents"`
	Amount      string                `json:"amount"`
}

func newQuote(provider enums.PaymentProvider, currency string, totals pricing.Totals) Quote {
	return Quote{
		Provider:    provider,
		Currency:    currency,
		AmountCents: totals.GrandTotalCents,
		Amount:      money.Format(totals.GrandTotalCents),
	}
}

func providerUnavailable(provider enums.PaymentProvider, err error, op string) error {
	return pkgerrors.Wrap(pkgerrors.CodePaymentProviderUnavailable, err, fmt.Sprintf("%s %s failed", provider, op))
}

func validateInitiate(req InitiateRequest) error {
	if req.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if req.Totals.GrandTotalCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	return nil
}
