package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
)

const (
	deliveryLineName          = "Delivery"
	subscriptionDeliveryName  = "Delivery (Biweekly)"
	subscriptionIntervalWeeks = 2
	subscriptionType          = "biweekly_all_products"

	// MetadataUserID and MetadataPaymentToken are read back by the Stripe webhook.
	MetadataUserID       = "userId"
	MetadataPaymentToken = "paymentToken"
)

// CardRail charges cards through Stripe Checkout.
type CardRail struct {
	api      StripeAPI
	currency string
}

func NewCardRail(api StripeAPI, currency string) (*CardRail, error) {
	if api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe api required")
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "sgd"
	}
	return &CardRail{api: api, currency: currency}, nil
}

func (r *CardRail) Provider() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (r *CardRail) Quote(totals pricing.Totals) Quote {
	return newQuote(r.Provider(), strings.ToUpper(r.currency), totals)
}

// Initiate opens a hosted checkout session in payment mode.
func (r *CardRail) Initiate(ctx context.Context, req InitiateRequest) (ExternalRef, error) {
	if err := validateInitiate(req); err != nil {
		return ExternalRef{}, err
	}

	items := r.lineItems(req.Snapshot, req.Totals.ShippingFeeCents, deliveryLineName, nil)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         items,
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		Metadata: map[string]string{
			MetadataPaymentToken: req.Reference,
			MetadataUserID:       req.UserID.String(),
		},
	}

	sess, err := r.api.NewCheckoutSession(ctx, params)
	if err != nil {
		return ExternalRef{}, providerUnavailable(r.Provider(), err, "create checkout session")
	}
	return ExternalRef{Provider: r.Provider(), Ref: sess.ID, RedirectURL: sess.URL}, nil
}

// Confirm re-reads the session server-side; only payment_status=paid counts.
func (r *CardRail) Confirm(ctx context.Context, ref string) (Confirmation, error) {
	if strings.TrimSpace(ref) == "" {
		return Confirmation{}, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id is required")
	}
	sess, err := r.api.GetCheckoutSession(ctx, ref)
	if err != nil {
		return Confirmation{}, providerUnavailable(r.Provider(), err, "retrieve checkout session")
	}

	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		paymentID := sess.ID
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			paymentID = sess.PaymentIntent.ID
		}
		return Confirmation{Status: StatusPaid, PaymentID: paymentID, AmountCents: sess.AmountTotal}, nil
	}
	if sess.Status == stripe.CheckoutSessionStatusExpired {
		return Confirmation{Status: StatusFailed, Message: "checkout session expired"}, nil
	}
	return Confirmation{Status: StatusPending}, nil
}

// Refund refunds a payment intent, or a charge for legacy ids.
func (r *CardRail) Refund(ctx context.Context, paymentID string, amountCents int64) error {
	if strings.TrimSpace(paymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	params := &stripe.RefundParams{Amount: stripe.Int64(amountCents)}
	if strings.HasPrefix(paymentID, "ch_") {
		params.Charge = stripe.String(paymentID)
	} else {
		params.PaymentIntent = stripe.String(paymentID)
	}
	if _, err := r.api.NewRefund(ctx, params); err != nil {
		return providerUnavailable(r.Provider(), err, "refund")
	}
	return nil
}

// SubscriptionRequest opens a recurring checkout for a synthesized cart.
type SubscriptionRequest struct {
	UserID     uuid.UUID
	Email      string
	Snapshot   cart.Snapshot
	SuccessURL string
	CancelURL  string
}

// StartSubscription opens a subscription-mode session billed every two weeks.
func (r *CardRail) StartSubscription(ctx context.Context, req SubscriptionRequest) (ExternalRef, error) {
	if req.UserID == uuid.Nil {
		return ExternalRef{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if req.Snapshot.IsEmpty() {
		return ExternalRef{}, pkgerrors.New(pkgerrors.CodeEmptyCart, "no products available for subscription")
	}

	totals := pricing.ComputeTotals(req.Snapshot)
	recurring := &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
		Interval:      stripe.String("week"),
		IntervalCount: stripe.Int64(subscriptionIntervalWeeks),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems:  r.lineItems(req.Snapshot, totals.ShippingFeeCents, subscriptionDeliveryName, recurring),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata: map[string]string{
			MetadataUserID:     req.UserID.String(),
			"subscriptionType": subscriptionType,
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserID: req.UserID.String()},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := r.api.NewCheckoutSession(ctx, params)
	if err != nil {
		return ExternalRef{}, providerUnavailable(r.Provider(), err, "create subscription session")
	}
	return ExternalRef{Provider: r.Provider(), Ref: sess.ID, RedirectURL: sess.URL}, nil
}

// CancelAtPeriodEnd stops renewal while keeping the current period active.
func (r *CardRail) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	if _, err := r.api.UpdateSubscription(ctx, subscriptionID, params); err != nil {
		return providerUnavailable(r.Provider(), err, "cancel subscription")
	}
	return nil
}

func (r *CardRail) lineItems(snapshot cart.Snapshot, feeCents int64, feeName string, recurring *stripe.CheckoutSessionLineItemPriceDataRecurringParams) []*stripe.CheckoutSessionLineItemParams {
	lines := snapshot.Lines()
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(lines)+1)
	for _, line := range lines {
		if line.IsZeroEffect() {
			continue
		}
		name := line.ProductName
		if recurring != nil {
			name = fmt.Sprintf("%s (x%d)", line.ProductName, line.Quantity)
		}
		items = append(items, r.lineItem(name, line.UnitPriceCents, int64(line.Quantity), recurring))
	}
	if feeCents > 0 {
		items = append(items, r.lineItem(feeName, feeCents, 1, recurring))
	}
	return items
}

func (r *CardRail) lineItem(name string, unitCents, qty int64, recurring *stripe.CheckoutSessionLineItemPriceDataRecurringParams) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:    stripe.String(r.currency),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(name)},
			UnitAmount:  stripe.Int64(unitCents),
			Recurring:   recurring,
		},
		Quantity: stripe.Int64(qty),
	}
}
