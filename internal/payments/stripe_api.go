package payments

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/subscription"

	pkgstripe "github.com/angelmondragon/freshcart-backend/pkg/stripe"
)

// StripeAPI exposes the subset of Stripe operations the card rail needs.
type StripeAPI interface {
	NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	NewRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

type stripeResources struct {
	sessions      session.Client
	refunds       refund.Client
	subscriptions subscription.Client
}

// NewStripeAPI binds the resource clients to the configured backend and key.
func NewStripeAPI(client *pkgstripe.Client) StripeAPI {
	if client == nil {
		return nil
	}
	b, key := client.Backend(), client.Key()
	return &stripeResources{
		sessions:      session.Client{B: b, Key: key},
		refunds:       refund.Client{B: b, Key: key},
		subscriptions: subscription.Client{B: b, Key: key},
	}
}

func (s *stripeResources) NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return s.sessions.New(params)
}

func (s *stripeResources) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return s.sessions.Get(id, params)
}

func (s *stripeResources) NewRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if params != nil {
		params.Context = ctx
	}
	return s.refunds.New(params)
}

func (s *stripeResources) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return s.subscriptions.Update(id, params)
}
