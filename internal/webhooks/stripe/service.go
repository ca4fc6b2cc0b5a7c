package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/freshcart-backend/internal/checkout"
	"github.com/angelmondragon/freshcart-backend/internal/payments"
	"github.com/angelmondragon/freshcart-backend/internal/subscriptions"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

const eventInvoicePaymentSucceeded stripe.EventType = "invoice.payment_succeeded"

type confirmer interface {
	ConfirmByExternalRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*checkout.ConfirmResult, error)
}

type biller interface {
	HandleCheckoutCompleted(ctx context.Context, event subscriptions.CheckoutCompleted) error
	HandleInvoicePaid(ctx context.Context, invoice subscriptions.InvoicePaid) (*subscriptions.BillingResult, error)
	HandleInvoiceFailed(ctx context.Context, invoice subscriptions.InvoiceFailed) error
	HandleSubscriptionChanged(ctx context.Context, change subscriptions.SubscriptionChanged) error
}

type ServiceParams struct {
	Checkout      confirmer
	Subscriptions biller
	Logger        *logger.Logger
}

// Service routes verified Stripe events to checkout and billing.
type Service struct {
	checkout confirmer
	subs     biller
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription service required")
	}
	return &Service{checkout: params.Checkout, subs: params.Subscriptions, logg: params.Logger}, nil
}

// HandleEvent expects an event whose signature was already verified.
// Unknown event types are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		return s.checkoutCompleted(ctx, &session)
	case stripe.EventTypeInvoicePaid, eventInvoicePaymentSucceeded:
		invoice, err := decodeInvoice(event.Data.Raw)
		if err != nil {
			return err
		}
		if invoice.subscriptionID() == "" {
			return nil
		}
		res, err := s.subs.HandleInvoicePaid(ctx, subscriptions.InvoicePaid{
			InvoiceID:       invoice.ID,
			SubscriptionID:  invoice.subscriptionID(),
			CustomerID:      invoice.Customer,
			PaymentIntentID: invoice.paymentIntentID(),
			AmountPaidCents: invoice.AmountPaid,
			UserID:          invoice.userID(),
		})
		if err != nil {
			return err
		}
		s.logg.Info(s.logg.WithField(ctx, "billing_outcome", string(res.Outcome)), "stripe.invoice_paid_handled")
		return nil
	case stripe.EventTypeInvoicePaymentFailed:
		invoice, err := decodeInvoice(event.Data.Raw)
		if err != nil {
			return err
		}
		return s.subs.HandleInvoiceFailed(ctx, subscriptions.InvoiceFailed{
			InvoiceID:      invoice.ID,
			SubscriptionID: invoice.subscriptionID(),
		})
	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		return s.subs.HandleSubscriptionChanged(ctx, subscriptions.SubscriptionChanged{
			SubscriptionID:    sub.ID,
			StripeStatus:      string(sub.Status),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		})
	default:
		return nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.Mode == stripe.CheckoutSessionModeSubscription {
		if session.Subscription == nil || session.Metadata[payments.MetadataUserID] == "" {
			s.logg.Warn(ctx, "stripe.subscription_checkout_unmapped")
			return nil
		}
		userID, err := uuid.Parse(session.Metadata[payments.MetadataUserID])
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid userId metadata")
		}
		completed := subscriptions.CheckoutCompleted{UserID: userID, SubscriptionID: session.Subscription.ID}
		if session.Customer != nil {
			completed.CustomerID = session.Customer.ID
		}
		return s.subs.HandleCheckoutCompleted(ctx, completed)
	}

	// Payment mode: the shopper may never come back from the hosted page,
	// so the webhook confirms the token on their behalf.
	res, err := s.checkout.ConfirmByExternalRef(ctx, enums.PaymentProviderStripe, session.ID)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.logg.Warn(ctx, "stripe.checkout_session_unknown")
		return nil
	}
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "confirm_status", string(res.Status)), "stripe.checkout_session_confirmed")
	return nil
}

// invoicePayload covers both the legacy invoice shape (top-level
// subscription and payment_intent) and the parent/payments shape of newer
// API versions.
type invoicePayload struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	AmountPaid    int64  `json:"amount_paid"`
	Subscription  string `json:"subscription"`
	PaymentIntent string `json:"payment_intent"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	SubscriptionDetails *struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
	Payments *struct {
		Data []struct {
			Payment struct {
				PaymentIntent string `json:"payment_intent"`
			} `json:"payment"`
		} `json:"data"`
	} `json:"payments"`
}

func decodeInvoice(raw json.RawMessage) (*invoicePayload, error) {
	var invoice invoicePayload
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
	}
	if invoice.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id missing")
	}
	return &invoice, nil
}

func (i *invoicePayload) subscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

func (i *invoicePayload) paymentIntentID() string {
	if i.PaymentIntent != "" {
		return i.PaymentIntent
	}
	if i.Payments != nil {
		for _, p := range i.Payments.Data {
			if p.Payment.PaymentIntent != "" {
				return p.Payment.PaymentIntent
			}
		}
	}
	return ""
}

func (i *invoicePayload) userID() uuid.UUID {
	var metadata map[string]string
	switch {
	case i.Parent != nil && i.Parent.SubscriptionDetails != nil:
		metadata = i.Parent.SubscriptionDetails.Metadata
	case i.SubscriptionDetails != nil:
		metadata = i.SubscriptionDetails.Metadata
	}
	id, err := uuid.Parse(metadata[payments.MetadataUserID])
	if err != nil {
		return uuid.Nil
	}
	return id
}
