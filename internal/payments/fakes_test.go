package payments

import (
	"context"
	"errors"

	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v84"
)

type fakeStripe struct {
	created     []*stripe.CheckoutSessionParams
	session     *stripe.CheckoutSession
	refunds     []*stripe.RefundParams
	updated     map[string]*stripe.SubscriptionParams
	err         error
	getRequests []string
}

func (f *fakeStripe) NewCheckoutSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, params)
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeStripe) GetCheckoutSession(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	f.getRequests = append(f.getRequests, id)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeStripe) NewRefund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.refunds = append(f.refunds, params)
	return &stripe.Refund{ID: "re_1"}, nil
}

func (f *fakeStripe) UpdateSubscription(_ context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.updated == nil {
		f.updated = map[string]*stripe.SubscriptionParams{}
	}
	f.updated[id] = params
	return &stripe.Subscription{ID: id, CancelAtPeriodEnd: true}, nil
}

type fakePayPal struct {
	createdUnits []paypal.PurchaseUnitRequest
	appCtx       *paypal.ApplicationContext
	captureResp  *paypal.CaptureOrderResponse
	captureErr   error
	order        *paypal.Order
	refundReqs   map[string]paypal.RefundCaptureRequest
	refundErr    error
}

func (f *fakePayPal) CreateOrder(_ context.Context, intent string, units []paypal.PurchaseUnitRequest, _ *paypal.PaymentSource, appCtx *paypal.ApplicationContext) (*paypal.Order, error) {
	if intent != paypal.OrderIntentCapture {
		return nil, errors.New("unexpected intent " + intent)
	}
	f.createdUnits = units
	f.appCtx = appCtx
	return &paypal.Order{
		ID: "PP-ORDER-1",
		Links: []paypal.Link{
			{Rel: "self", Href: "https://api.paypal.test/v2/checkout/orders/PP-ORDER-1"},
			{Rel: "approve", Href: "https://paypal.test/approve?token=PP-ORDER-1"},
		},
	}, nil
}

func (f *fakePayPal) CaptureOrder(_ context.Context, _ string, _ paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error) {
	return f.captureResp, f.captureErr
}

func (f *fakePayPal) GetOrder(_ context.Context, _ string) (*paypal.Order, error) {
	if f.order == nil {
		return nil, errors.New("order not found")
	}
	return f.order, nil
}

func (f *fakePayPal) RefundCapture(_ context.Context, captureID string, req paypal.RefundCaptureRequest) (*paypal.RefundResponse, error) {
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	if f.refundReqs == nil {
		f.refundReqs = map[string]paypal.RefundCaptureRequest{}
	}
	f.refundReqs[captureID] = req
	return &paypal.RefundResponse{ID: "REF-1", Status: "COMPLETED"}, nil
}
