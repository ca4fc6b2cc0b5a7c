// Package subscriptions bills the biweekly grocery box: every active product
// at a fixed quantity, charged through Stripe and turned into an order on
// each paid invoice.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/checkout"
	"github.com/angelmondragon/freshcart-backend/internal/orders"
	"github.com/angelmondragon/freshcart-backend/internal/payments"
	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/internal/stock"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/metrics"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/payloads"
)

const defaultQuantity = 2

var errAlreadyBilled = errors.New("invoice already billed")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type catalog interface {
	ListActive(ctx context.Context) ([]models.Product, error)
}

type stockValidator interface {
	Validate(ctx context.Context, lines []cart.Line) error
}

type orderPlacer interface {
	PlacePaidOrder(ctx context.Context, input checkout.OrderInput, payment orders.PaymentInfo, within func(tx *gorm.DB, orderID uuid.UUID) error) (uuid.UUID, error)
}

type emailLookup interface {
	EmailFor(ctx context.Context, userID uuid.UUID) (string, error)
}

type subscriptionRail interface {
	StartSubscription(ctx context.Context, req payments.SubscriptionRequest) (payments.ExternalRef, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
}

// Service is the subscription lifecycle surface.
type Service interface {
	StartSubscription(ctx context.Context, input StartInput) (*StartResult, error)
	Get(ctx context.Context, userID uuid.UUID) (*SubscriptionDTO, error)
	Cancel(ctx context.Context, userID uuid.UUID) (*SubscriptionDTO, error)
	HandleCheckoutCompleted(ctx context.Context, event CheckoutCompleted) error
	HandleInvoicePaid(ctx context.Context, invoice InvoicePaid) (*BillingResult, error)
	HandleInvoiceFailed(ctx context.Context, invoice InvoiceFailed) error
	HandleSubscriptionChanged(ctx context.Context, change SubscriptionChanged) error
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Catalog  catalog
	Stock    stockValidator
	Orders   orderPlacer
	Rail     subscriptionRail
	// Users is optional; it supplies the Stripe customer email when the
	// request carries none.
	Users    emailLookup
	Outbox   outbox.Emitter
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
	Quantity int
}

type service struct {
	repo     Repository
	tx       txRunner
	catalog  catalog
	stock    stockValidator
	orders   orderPlacer
	rail     subscriptionRail
	users    emailLookup
	outbox   outbox.Emitter
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	quantity int
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("subscription repo required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock validator required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order placer required")
	case params.Rail == nil:
		return nil, fmt.Errorf("subscription rail required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	qty := params.Quantity
	if qty < 1 {
		qty = defaultQuantity
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		catalog:  params.Catalog,
		stock:    params.Stock,
		orders:   params.Orders,
		rail:     params.Rail,
		users:    params.Users,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		quantity: qty,
	}, nil
}

// StartSubscription opens a Stripe subscription checkout for the box as it
// is priced right now.
func (s *service) StartSubscription(ctx context.Context, input StartInput) (*StartResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(input.SuccessURL) == "" || strings.TrimSpace(input.CancelURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "success_url and cancel_url are required")
	}
	existing, err := s.repo.FindByUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status.IsBillable() && !existing.CancelAtPeriodEnd {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription already active")
	}

	email := strings.TrimSpace(input.Email)
	if email == "" && s.users != nil {
		if email, err = s.users.EmailFor(ctx, input.UserID); err != nil {
			return nil, err
		}
	}

	snapshot, err := s.box(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := s.rail.StartSubscription(ctx, payments.SubscriptionRequest{
		UserID:     input.UserID,
		Email:      email,
		Snapshot:   snapshot,
		SuccessURL: input.SuccessURL,
		CancelURL:  input.CancelURL,
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(s.withUser(ctx, input.UserID), "subscription.checkout_started")
	return &StartResult{
		SessionID:   ref.Ref,
		RedirectURL: ref.RedirectURL,
		Totals:      pricing.ComputeTotals(snapshot),
	}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*SubscriptionDTO, error) {
	sub, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription")
	}
	dto := newDTO(*sub)
	return &dto, nil
}

// Cancel stops renewal at the end of the paid period.
func (s *service) Cancel(ctx context.Context, userID uuid.UUID) (*SubscriptionDTO, error) {
	sub, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil || !sub.Status.IsBillable() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
	}
	if !sub.CancelAtPeriodEnd {
		if err := s.rail.CancelAtPeriodEnd(ctx, sub.StripeSubscriptionID); err != nil {
			return nil, err
		}
		if err := s.repo.MarkCanceling(ctx, sub.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark subscription canceling")
		}
		s.logInfo(s.withUser(ctx, userID), "subscription.canceling")
	}
	return s.Get(ctx, userID)
}

func (s *service) HandleCheckoutCompleted(ctx context.Context, event CheckoutCompleted) error {
	if event.UserID == uuid.Nil || strings.TrimSpace(event.SubscriptionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription checkout is missing user or subscription id")
	}
	sub := &models.Subscription{
		UserID:               event.UserID,
		StripeSubscriptionID: event.SubscriptionID,
		Status:               enums.SubscriptionStatusActive,
	}
	if event.CustomerID != "" {
		sub.StripeCustomerID = &event.CustomerID
	}
	if err := s.repo.Upsert(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert subscription")
	}
	s.logInfo(s.withUser(ctx, event.UserID), "subscription.activated")
	return nil
}

// HandleInvoicePaid turns one paid invoice into at most one order. A stock
// shortfall skips the cycle without retry and without canceling.
func (s *service) HandleInvoicePaid(ctx context.Context, invoice InvoicePaid) (*BillingResult, error) {
	if strings.TrimSpace(invoice.InvoiceID) == "" || strings.TrimSpace(invoice.SubscriptionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id and subscription id are required")
	}
	sub, err := s.resolve(ctx, invoice)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		s.logWarn(s.logg.WithField(ctx, "invoice_id", invoice.InvoiceID), "subscription.invoice_unmapped")
		return &BillingResult{Outcome: BillingUnmapped}, nil
	}
	ctx = s.withUser(ctx, sub.UserID)
	if sub.LastInvoiceID != nil && *sub.LastInvoiceID == invoice.InvoiceID {
		return &BillingResult{Outcome: BillingDuplicate, OrderID: sub.LastOrderID}, nil
	}

	snapshot, err := s.box(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.stock.Validate(ctx, snapshot.Lines()); err != nil {
		if shortfall, ok := stock.ShortfallFrom(err); ok {
			return s.skip(ctx, sub, invoice, shortfall)
		}
		return nil, err
	}

	paymentID := invoice.PaymentIntentID
	if paymentID == "" {
		paymentID = invoice.InvoiceID
	}
	orderID, err := s.orders.PlacePaidOrder(ctx, checkout.OrderInput{
		UserID:   sub.UserID,
		Snapshot: snapshot,
		Totals:   pricing.ComputeTotals(snapshot),
		Source:   payloads.OrderSourceSubscription,
	}, orders.PaymentInfo{
		Provider:    enums.PaymentProviderStripe,
		PaymentID:   paymentID,
		AmountCents: invoice.AmountPaidCents,
	}, func(tx *gorm.DB, orderID uuid.UUID) error {
		recorded, err := s.repo.WithTx(tx).RecordInvoice(ctx, sub.ID, invoice.InvoiceID, &orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record invoice")
		}
		if !recorded {
			return errAlreadyBilled
		}
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyBilled):
		return &BillingResult{Outcome: BillingDuplicate}, nil
	case err != nil:
		if shortfall, ok := stock.ShortfallFrom(err); ok {
			return s.skip(ctx, sub, invoice, shortfall)
		}
		return nil, err
	}
	s.logInfo(s.logg.WithOrderID(ctx, orderID.String()), "subscription.order_created")
	return &BillingResult{Outcome: BillingOrdered, OrderID: &orderID}, nil
}

func (s *service) HandleInvoiceFailed(ctx context.Context, invoice InvoiceFailed) error {
	if strings.TrimSpace(invoice.SubscriptionID) == "" {
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, invoice.SubscriptionID, enums.SubscriptionStatusPastDue); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark subscription past due")
	}
	s.logWarn(s.logg.WithFields(ctx, map[string]any{
		"subscription_id": invoice.SubscriptionID,
		"invoice_id":      invoice.InvoiceID,
	}), "subscription.past_due")
	return nil
}

// HandleSubscriptionChanged mirrors Stripe's status onto the local row.
// Unknown subscriptions and unmapped Stripe states are ignored, and a
// canceled row never moves again.
func (s *service) HandleSubscriptionChanged(ctx context.Context, change SubscriptionChanged) error {
	if strings.TrimSpace(change.SubscriptionID) == "" {
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"subscription_id": change.SubscriptionID,
		"stripe_status":   change.StripeStatus,
	})
	next, ok := enums.SubscriptionStatusFromStripe(change.StripeStatus, change.CancelAtPeriodEnd)
	if !ok {
		s.logInfo(ctx, "subscription.status_ignored")
		return nil
	}
	sub, err := s.repo.FindByStripeID(ctx, change.SubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		s.logWarn(ctx, "subscription.status_unmapped")
		return nil
	}
	if sub.Status == next || sub.Status.Terminal() {
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, change.SubscriptionID, next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync subscription status")
	}
	s.logInfo(s.logg.WithFields(ctx, map[string]any{
		"from_status": string(sub.Status),
		"to_status":   string(next),
	}), "subscription.status_synced")
	return nil
}

// resolve finds the subscription of an invoice. The first invoice can race
// the checkout webhook, so a userId in the invoice metadata creates the
// mapping on the spot.
func (s *service) resolve(ctx context.Context, invoice InvoicePaid) (*models.Subscription, error) {
	sub, err := s.repo.FindByStripeID(ctx, invoice.SubscriptionID)
	if err != nil || sub != nil || invoice.UserID == uuid.Nil {
		return sub, err
	}
	if err := s.HandleCheckoutCompleted(ctx, CheckoutCompleted{
		UserID:         invoice.UserID,
		SubscriptionID: invoice.SubscriptionID,
		CustomerID:     invoice.CustomerID,
	}); err != nil {
		return nil, err
	}
	return s.repo.FindByStripeID(ctx, invoice.SubscriptionID)
}

// skip records the invoice as handled so redeliveries stay quiet, and makes
// the missed cycle visible to operators.
func (s *service) skip(ctx context.Context, sub *models.Subscription, invoice InvoicePaid, shortfall stock.Shortfall) (*BillingResult, error) {
	reason := fmt.Sprintf("insufficient stock for %s (requested %d, available %d)",
		shortfall.ProductName, shortfall.Requested, shortfall.Available)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		recorded, err := s.repo.WithTx(tx).RecordInvoice(ctx, sub.ID, invoice.InvoiceID, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record skipped invoice")
		}
		if !recorded {
			return errAlreadyBilled
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionBillingSkipped,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.ID,
			Data: payloads.SubscriptionBillingSkippedEvent{
				SubscriptionID: sub.ID,
				UserID:         sub.UserID,
				InvoiceID:      invoice.InvoiceID,
				ProductID:      shortfall.ProductID,
				Requested:      shortfall.Requested,
				Available:      shortfall.Available,
				Reason:         reason,
			},
		})
	})
	if errors.Is(err, errAlreadyBilled) {
		return &BillingResult{Outcome: BillingDuplicate}, nil
	}
	if err != nil {
		return nil, err
	}
	s.metrics.IncSubscriptionBillingSkipped("insufficient_stock")
	if s.logg != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"invoice_id":      invoice.InvoiceID,
			"subscription_id": invoice.SubscriptionID,
			"amount_paid":     invoice.AmountPaidCents,
		}), "subscription.billing_skipped", errors.New(reason))
	}
	return &BillingResult{Outcome: BillingSkipped, Shortfall: &shortfall, Reason: reason}, nil
}

func (s *service) box(ctx context.Context) (cart.Snapshot, error) {
	products, err := s.catalog.ListActive(ctx)
	if err != nil {
		return cart.Snapshot{}, err
	}
	snapshot := cart.SnapshotOf(products, s.quantity)
	if snapshot.IsEmpty() {
		return cart.Snapshot{}, pkgerrors.New(pkgerrors.CodeEmptyCart, "no products available for subscription")
	}
	return snapshot, nil
}

func (s *service) withUser(ctx context.Context, userID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithUserID(ctx, userID.String())
}

func (s *service) logInfo(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *service) logWarn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}
