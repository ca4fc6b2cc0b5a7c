// Package checkout turns a shopper's cart into a paid, stock-consistent order
// across the card, wallet and QR payment rails.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/orders"
	"github.com/angelmondragon/freshcart-backend/internal/payments"
	"github.com/angelmondragon/freshcart-backend/internal/paymentsessions"
	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/internal/stock"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/metrics"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
)

const defaultSessionTTL = time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockLedger interface {
	Validate(ctx context.Context, lines []cart.Line) error
	Debit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (stock.Outcome, error)
}

type railResolver interface {
	Rail(provider enums.PaymentProvider) (payments.Rail, error)
	Providers() []enums.PaymentProvider
}

type confirmLocker interface {
	Acquire(ctx context.Context, token uuid.UUID) (func(context.Context) error, bool, error)
}

type sessionCarts interface {
	Clear(ctx context.Context, userID uuid.UUID) error
}

// Service executes checkout orchestration.
type Service interface {
	BeginCheckout(ctx context.Context, cc CheckoutContext) (*Plan, error)
	StartPayment(ctx context.Context, cc CheckoutContext, input StartPaymentInput) (*PaymentStart, error)
	CreateOrder(ctx context.Context, input OrderInput) (uuid.UUID, error)
	FinalizeOnPayment(ctx context.Context, orderID uuid.UUID, payment orders.PaymentInfo) error
	PlacePaidOrder(ctx context.Context, input OrderInput, payment orders.PaymentInfo, within func(tx *gorm.DB, orderID uuid.UUID) error) (uuid.UUID, error)
	ConfirmPayment(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
	ConfirmByExternalRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*ConfirmResult, error)
}

// ServiceParams wires the orchestrator.
type ServiceParams struct {
	Tx                 txRunner
	Orders             orders.Repository
	Catalog            cart.Catalog
	Stock              stockLedger
	Rails              railResolver
	Sessions           paymentsessions.Service
	Lock               confirmLocker
	SessionCarts       sessionCarts
	DurableCarts       cart.Repository
	Outbox             outbox.Emitter
	Metrics            *metrics.CheckoutMetrics
	Logger             *logger.Logger
	SessionTTL         time.Duration
	CompensateOrphaned bool
}

type service struct {
	tx                 txRunner
	orders             orders.Repository
	catalog            cart.Catalog
	stock              stockLedger
	rails              railResolver
	sessions           paymentsessions.Service
	lock               confirmLocker
	sessionCarts       sessionCarts
	durableCarts       cart.Repository
	outbox             outbox.Emitter
	metrics            *metrics.CheckoutMetrics
	logg               *logger.Logger
	sessionTTL         time.Duration
	compensateOrphaned bool
	now                func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Rails == nil {
		return nil, fmt.Errorf("payment rails required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("payment session service required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("confirm lock required")
	}
	if params.SessionCarts == nil || params.DurableCarts == nil {
		return nil, fmt.Errorf("cart stores required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	ttl := params.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &service{
		tx:                 params.Tx,
		orders:             params.Orders,
		catalog:            params.Catalog,
		stock:              params.Stock,
		rails:              params.Rails,
		sessions:           params.Sessions,
		lock:               params.Lock,
		sessionCarts:       params.SessionCarts,
		durableCarts:       params.DurableCarts,
		outbox:             params.Outbox,
		metrics:            params.Metrics,
		logg:               params.Logger,
		sessionTTL:         ttl,
		compensateOrphaned: params.CompensateOrphaned,
		now:                time.Now,
	}, nil
}

func (s *service) BeginCheckout(ctx context.Context, cc CheckoutContext) (*Plan, error) {
	run := newAttempt(s.logg, StateIdle)
	return s.begin(ctx, cc, run)
}

func (s *service) begin(ctx context.Context, cc CheckoutContext, run *attempt) (*Plan, error) {
	if cc.userID() == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to check out")
	}
	ctx = s.withFields(ctx, map[string]any{"user_id": cc.userID().String()})
	run.moveTo(ctx, StateValidating)

	if len(cc.Cart) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	snapshot, err := cart.Freeze(ctx, cc.Cart, s.catalog)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog prices")
	}
	if len(snapshot.ProductIDs()) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart has no purchasable items")
	}
	if err := s.stock.Validate(ctx, snapshot.Lines()); err != nil {
		if _, ok := stock.ShortfallFrom(err); ok {
			run.moveTo(ctx, StateInsufficientStock)
		}
		return nil, err
	}

	totals := pricing.ComputeTotals(snapshot)
	plan := &Plan{
		Snapshot: snapshot,
		Lines:    snapshot.Lines(),
		Totals:   totals,
	}
	for _, provider := range s.rails.Providers() {
		rail, err := s.rails.Rail(provider)
		if err != nil {
			continue
		}
		plan.Quotes = append(plan.Quotes, rail.Quote(totals))
	}
	return plan, nil
}

func (s *service) StartPayment(ctx context.Context, cc CheckoutContext, input StartPaymentInput) (*PaymentStart, error) {
	run := newAttempt(s.logg, StateIdle)
	plan, err := s.begin(ctx, cc, run)
	if err != nil {
		return nil, err
	}
	rail, err := s.rails.Rail(input.Provider)
	if err != nil {
		return nil, err
	}

	token := cc.PaymentToken
	if token == uuid.Nil {
		token = uuid.New()
	}
	ctx = s.withFields(ctx, map[string]any{
		"user_id":         cc.userID().String(),
		"payment_session": token.String(),
		"provider":        string(input.Provider),
	})

	ref, err := rail.Initiate(ctx, payments.InitiateRequest{
		Reference:  token.String(),
		UserID:     cc.userID(),
		Snapshot:   plan.Snapshot,
		Totals:     plan.Totals,
		SuccessURL: withToken(input.SuccessURL, token),
		CancelURL:  withToken(input.CancelURL, token),
	})
	if err != nil {
		s.logError(ctx, "checkout.initiate_failed", err)
		return nil, err
	}

	ttl := s.sessionTTL
	if ref.PollTimeout > 0 {
		ttl = ref.PollTimeout
	}
	expiresAt := s.now().UTC().Add(ttl)
	if _, err := s.sessions.Create(ctx, paymentsessions.CreateInput{
		UserID:      cc.userID(),
		Token:       token,
		Provider:    input.Provider,
		ExternalRef: ref.Ref,
		Snapshot:    plan.Snapshot,
		Totals:      plan.Totals,
		ExpiresAt:   expiresAt,
	}); err != nil {
		return nil, err
	}
	run.moveTo(ctx, StatePaymentPending)

	return &PaymentStart{
		Token:              token,
		Provider:           input.Provider,
		RedirectURL:        ref.RedirectURL,
		QRCode:             ref.QRCode,
		PollTimeoutSeconds: int(ref.PollTimeout / time.Second),
		ExpiresAt:          expiresAt,
		Totals:             plan.Totals,
		Quote:              rail.Quote(plan.Totals),
	}, nil
}

func withToken(url string, token uuid.UUID) string {
	return strings.ReplaceAll(url, TokenPlaceholder, token.String())
}

func (s *service) withFields(ctx context.Context, fields map[string]any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
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

func (s *service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}
