package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/plutov/paypal/v4"

	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/pkg/config"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
)

const (
	paypalStatusCompleted = "COMPLETED"
	paypalStatusDeclined  = "DECLINED"

	issueOrderNotApproved     = "ORDER_NOT_APPROVED"
	issueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"
)

// PayPalAPI is the subset of the PayPal Orders v2 client used by the wallet rail.
type PayPalAPI interface {
	CreateOrder(ctx context.Context, intent string, purchaseUnits []paypal.PurchaseUnitRequest, paymentSource *paypal.PaymentSource, appContext *paypal.ApplicationContext) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, captureOrderRequest paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
	GetOrder(ctx context.Context, orderID string) (*paypal.Order, error)
	RefundCapture(ctx context.Context, captureID string, refundCaptureRequest paypal.RefundCaptureRequest) (*paypal.RefundResponse, error)
}

var _ PayPalAPI = (*paypal.Client)(nil)

// NewPayPalAPI builds a client that exchanges its credentials for a bearer
// token on first use and refreshes it before expiry.
func NewPayPalAPI(cfg config.PayPalConfig) (PayPalAPI, error) {
	base := paypal.APIBaseSandBox
	if cfg.IsLive() {
		base = paypal.APIBaseLive
	}
	client, err := paypal.NewClient(cfg.ClientID, cfg.ClientSecret, base)
	if err != nil {
		return nil, fmt.Errorf("paypal client: %w", err)
	}
	return client, nil
}

// WalletRail charges PayPal accounts through Orders v2.
type WalletRail struct {
	api      PayPalAPI
	currency string
}

func NewWalletRail(api PayPalAPI, currency string) (*WalletRail, error) {
	if api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "paypal api required")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "SGD"
	}
	return &WalletRail{api: api, currency: currency}, nil
}

func (r *WalletRail) Provider() enums.PaymentProvider { return enums.PaymentProviderPayPal }

func (r *WalletRail) Quote(totals pricing.Totals) Quote {
	return newQuote(r.Provider(), r.currency, totals)
}

// Initiate creates a CAPTURE order for the grand total and returns its approve link.
func (r *WalletRail) Initiate(ctx context.Context, req InitiateRequest) (ExternalRef, error) {
	if err := validateInitiate(req); err != nil {
		return ExternalRef{}, err
	}
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.Reference,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: r.currency,
			Value:    money.Format(req.Totals.GrandTotalCents),
		},
	}}
	appCtx := &paypal.ApplicationContext{
		ReturnURL: req.SuccessURL,
		CancelURL: req.CancelURL,
	}

	order, err := r.api.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return ExternalRef{}, providerUnavailable(r.Provider(), err, "create order")
	}
	return ExternalRef{Provider: r.Provider(), Ref: order.ID, RedirectURL: approveLink(order.Links)}, nil
}

// Confirm captures the approved order. The first capture id is the payment id.
func (r *WalletRail) Confirm(ctx context.Context, ref string) (Confirmation, error) {
	if strings.TrimSpace(ref) == "" {
		return Confirmation{}, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}

	resp, err := r.api.CaptureOrder(ctx, ref, paypal.CaptureOrderRequest{})
	if err != nil {
		return r.confirmFromError(ctx, ref, err)
	}
	if resp.Status != paypalStatusCompleted {
		return Confirmation{Status: StatusPending}, nil
	}
	for _, unit := range resp.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		if conf, ok := confirmationFromCaptures(unit.Payments.Captures); ok {
			return conf, nil
		}
	}
	return Confirmation{Status: StatusFailed, Message: "capture completed without a capture id"}, nil
}

func (r *WalletRail) confirmFromError(ctx context.Context, ref string, err error) (Confirmation, error) {
	var apiErr *paypal.ErrorResponse
	if !errors.As(err, &apiErr) {
		return Confirmation{}, providerUnavailable(r.Provider(), err, "capture order")
	}

	switch {
	case hasIssue(apiErr, issueOrderNotApproved):
		return Confirmation{Status: StatusPending}, nil
	case hasIssue(apiErr, issueOrderAlreadyCaptured):
		order, getErr := r.api.GetOrder(ctx, ref)
		if getErr != nil {
			return Confirmation{}, providerUnavailable(r.Provider(), getErr, "get order")
		}
		for _, unit := range order.PurchaseUnits {
			if unit.Payments == nil {
				continue
			}
			if conf, ok := confirmationFromCaptures(unit.Payments.Captures); ok {
				return conf, nil
			}
		}
		return Confirmation{Status: StatusFailed, Message: "order captured without a capture id"}, nil
	case apiErr.Response != nil && apiErr.Response.StatusCode >= http.StatusBadRequest && apiErr.Response.StatusCode < http.StatusInternalServerError:
		return Confirmation{Status: StatusFailed, Message: apiErr.Message}, nil
	default:
		return Confirmation{}, providerUnavailable(r.Provider(), err, "capture order")
	}
}

// Refund refunds amountCents of a capture.
func (r *WalletRail) Refund(ctx context.Context, paymentID string, amountCents int64) error {
	if strings.TrimSpace(paymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "capture id is required")
	}
	req := paypal.RefundCaptureRequest{
		Amount: &paypal.Money{Currency: r.currency, Value: money.Format(amountCents)},
	}
	if _, err := r.api.RefundCapture(ctx, paymentID, req); err != nil {
		return providerUnavailable(r.Provider(), err, "refund capture")
	}
	return nil
}

func confirmationFromCaptures(captures []paypal.CaptureAmount) (Confirmation, bool) {
	if len(captures) == 0 || captures[0].ID == "" {
		return Confirmation{}, false
	}
	capture := captures[0]
	if capture.Status == paypalStatusDeclined {
		return Confirmation{Status: StatusFailed, Message: "capture declined"}, true
	}
	var amount int64
	if capture.Amount != nil {
		if cents, err := money.FromDecimalString(capture.Amount.Value); err == nil {
			amount = cents
		}
	}
	return Confirmation{Status: StatusPaid, PaymentID: capture.ID, AmountCents: amount}, true
}

func approveLink(links []paypal.Link) string {
	for _, link := range links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

func hasIssue(apiErr *paypal.ErrorResponse, issue string) bool {
	for _, detail := range apiErr.Details {
		if detail.Issue == issue {
			return true
		}
	}
	return false
}
