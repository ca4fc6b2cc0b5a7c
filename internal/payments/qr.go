package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
	"github.com/angelmondragon/freshcart-backend/pkg/nets"
)

// DefaultQRPollTimeout is the client countdown shown next to a QR code.
const DefaultQRPollTimeout = 300 * time.Second

// NetsAPI is implemented by *nets.Client.
type NetsAPI interface {
	RequestQR(ctx context.Context, amountCents int64) (*nets.QRResult, error)
	QueryStatus(ctx context.Context, txnRetrievalRef string) (*nets.StatusResult, error)
	Reverse(ctx context.Context, txnRetrievalRef string, amountCents int64) (*nets.ReversalResult, error)
}

// QRRail charges through NETS QR. The retrieval ref doubles as payment id.
type QRRail struct {
	api         NetsAPI
	currency    string
	pollTimeout time.Duration
}

func NewQRRail(api NetsAPI, currency string, pollTimeout time.Duration) (*QRRail, error) {
	if api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "nets api required")
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultQRPollTimeout
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "SGD"
	}
	return &QRRail{api: api, currency: currency, pollTimeout: pollTimeout}, nil
}

func (r *QRRail) Provider() enums.PaymentProvider { return enums.PaymentProviderNetsQR }

func (r *QRRail) Quote(totals pricing.Totals) Quote {
	return newQuote(r.Provider(), r.currency, totals)
}

// PollTimeout only drives the client countdown; confirmation stays possible afterwards.
func (r *QRRail) PollTimeout() time.Duration { return r.pollTimeout }

func (r *QRRail) Initiate(ctx context.Context, req InitiateRequest) (ExternalRef, error) {
	if err := validateInitiate(req); err != nil {
		return ExternalRef{}, err
	}
	result, err := r.api.RequestQR(ctx, req.Totals.GrandTotalCents)
	if err != nil {
		return ExternalRef{}, providerUnavailable(r.Provider(), err, "request qr")
	}
	if !result.OK() {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "qr code not issued"
		}
		return ExternalRef{}, pkgerrors.New(pkgerrors.CodePaymentProviderUnavailable, fmt.Sprintf("netsqr response %s: %s", result.ResponseCode, msg)).
			WithDetails(map[string]any{"response_code": result.ResponseCode, "instruction": result.Instruction})
	}
	return ExternalRef{
		Provider:    r.Provider(),
		Ref:         result.TxnRetrievalRef,
		QRCode:      result.QRCode,
		PollTimeout: r.pollTimeout,
	}, nil
}

func (r *QRRail) Confirm(ctx context.Context, ref string) (Confirmation, error) {
	status, err := r.api.QueryStatus(ctx, ref)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			return Confirmation{}, err
		}
		return Confirmation{}, providerUnavailable(r.Provider(), err, "query status")
	}
	switch {
	case status.Succeeded():
		var amount int64
		if status.Amount != "" {
			if cents, parseErr := money.FromDecimalString(status.Amount); parseErr == nil {
				amount = cents
			}
		}
		return Confirmation{Status: StatusPaid, PaymentID: ref, AmountCents: amount}, nil
	case status.Failed():
		msg := status.ErrorMessage
		if msg == "" {
			msg = "Payment failed. Please try again."
		}
		return Confirmation{Status: StatusFailed, Message: msg}, nil
	default:
		return Confirmation{Status: StatusPending}, nil
	}
}

func (r *QRRail) Refund(ctx context.Context, paymentID string, amountCents int64) error {
	result, err := r.api.Reverse(ctx, paymentID, amountCents)
	if err != nil {
		return providerUnavailable(r.Provider(), err, "reverse")
	}
	if !result.Succeeded() {
		return providerUnavailable(r.Provider(), fmt.Errorf("response code %s: %s", result.ResponseCode, result.ErrorMessage), "reverse")
	}
	return nil
}
