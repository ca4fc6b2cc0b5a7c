// Package refunds runs the owner-request, admin-approval refund saga. Money
// moves at the provider before any local state says so.
package refunds

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/internal/orders"
	"github.com/angelmondragon/freshcart-backend/internal/payments"
	"github.com/angelmondragon/freshcart-backend/pkg/db"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/metrics"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/freshcart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type railResolver interface {
	Rail(provider enums.PaymentProvider) (payments.Rail, error)
}

type refundLocker interface {
	Acquire(ctx context.Context, id uuid.UUID) (func(context.Context) error, bool, error)
}

// Service coordinates refund requests.
type Service interface {
	RequestRefund(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (*RefundDTO, error)
	Approve(ctx context.Context, actor orders.Actor, input ApproveInput) (*RefundDTO, error)
	Deny(ctx context.Context, actor orders.Actor, refundID uuid.UUID, note string) (*RefundDTO, error)
	ListPending(ctx context.Context, actor orders.Actor, params pagination.Params) (*pagination.Page[RefundDTO], error)
	ListForOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) ([]RefundDTO, error)
}

// ServiceParams wires the refund coordinator.
type ServiceParams struct {
	Repo    Repository
	Orders  orders.Repository
	Tx      txRunner
	Rails   railResolver
	Lock    refundLocker
	Outbox  outbox.Emitter
	Metrics *metrics.CheckoutMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	orders  orders.Repository
	tx      txRunner
	rails   railResolver
	lock    refundLocker
	outbox  outbox.Emitter
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("refund repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Rails == nil:
		return nil, fmt.Errorf("payment rails required")
	case params.Lock == nil:
		return nil, fmt.Errorf("refund lock required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    params.Repo,
		orders:  params.Orders,
		tx:      params.Tx,
		rails:   params.Rails,
		lock:    params.Lock,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

func (s *service) RequestRefund(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (*RefundDTO, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !order.HasPayment() {
		return nil, pkgerrors.New(pkgerrors.CodeRefundMissingPaymentInfo, "order has no captured payment to refund")
	}
	refundable := order.TotalCents - order.RefundedAmountCents
	if refundable <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already fully refunded")
	}
	pending, err := s.repo.FindPendingByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, pkgerrors.New(pkgerrors.CodeRefundAlreadyPending, "a refund request is already pending for this order")
	}

	request := &models.RefundRequest{
		OrderID:     order.ID,
		UserID:      actor.UserID,
		Provider:    *order.PaymentProvider,
		PaymentID:   *order.PaymentID,
		AmountCents: refundable,
		Status:      enums.RefundRequestPending,
	}
	if reason != "" {
		request.Reason = &reason
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeRefundAlreadyPending, "a refund request is already pending for this order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund request")
		}
		if err := s.orders.WithTx(tx).UpdateRefundStatus(ctx, order.ID, enums.RefundStatusPending, nil); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundRequested,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   request.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.RefundRequestedEvent{
				RefundID:    request.ID,
				OrderID:     order.ID,
				UserID:      actor.UserID,
				AmountCents: request.AmountCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, order.ID, "refund.requested")
	dto := newDTO(*request)
	return &dto, nil
}

func (s *service) Approve(ctx context.Context, actor orders.Actor, input ApproveInput) (*RefundDTO, error) {
	if !actor.Role.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	release, acquired, err := s.lock.Acquire(ctx, input.RefundID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire refund lock")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "refund is already being processed")
	}
	defer func() { _ = release(context.WithoutCancel(ctx)) }()

	request, order, err := s.loadPending(ctx, input.RefundID)
	if err != nil {
		return nil, err
	}
	amount := input.AmountCents
	if amount == 0 {
		amount = request.AmountCents
	}
	refundable := order.TotalCents - order.RefundedAmountCents
	if amount > refundable {
		return nil, pkgerrors.New(pkgerrors.CodeRefundExceedsTotal, "refund amount exceeds the order total").
			WithDetails(map[string]int64{"requested_cents": amount, "refundable_cents": refundable})
	}

	rail, err := s.rails.Rail(request.Provider)
	if err != nil {
		return nil, err
	}
	if err := rail.Refund(ctx, request.PaymentID, amount); err != nil {
		s.metrics.IncRefund("adapter_failed")
		if recordErr := s.repo.RecordFailure(ctx, request.ID, err.Error()); recordErr != nil {
			s.logError(ctx, order.ID, "refund.record_failure_failed", recordErr)
		}
		s.logError(ctx, order.ID, "refund.adapter_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeAdapterRefundFailed, err, "payment provider refused the refund; the request stays pending").
			WithDetails(map[string]string{"refund_id": request.ID.String(), "provider_error": err.Error()})
	}

	refunded := order.RefundedAmountCents + amount
	orderStatus := enums.SettledRefundStatus(refunded, order.TotalCents)
	note := optional(input.Note)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resolved, err := s.repo.WithTx(tx).Resolve(ctx, request.ID, Resolution{
			Status:      enums.RefundRequestApproved,
			AdminID:     actor.UserID,
			Note:        note,
			AmountCents: &amount,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve refund request")
		}
		if !resolved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund request already resolved")
		}
		if err := s.orders.WithTx(tx).UpdateRefundStatus(ctx, order.ID, orderStatus, &refunded); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, resolvedEvent(enums.EventRefundApproved, request, actor, amount, orderStatus, input.Note))
	})
	if err != nil {
		// the provider already paid out; operators must reconcile by hand
		s.logError(ctx, order.ID, "refund.approved_but_not_recorded", err)
		return nil, err
	}
	s.metrics.IncRefund("approved")
	s.logInfo(ctx, order.ID, "refund.approved")
	return s.reload(ctx, request.ID)
}

func (s *service) Deny(ctx context.Context, actor orders.Actor, refundID uuid.UUID, note string) (*RefundDTO, error) {
	if !actor.Role.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	request, order, err := s.loadPending(ctx, refundID)
	if err != nil {
		return nil, err
	}
	orderStatus := enums.SettledRefundStatus(order.RefundedAmountCents, order.TotalCents)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resolved, err := s.repo.WithTx(tx).Resolve(ctx, request.ID, Resolution{
			Status:  enums.RefundRequestDenied,
			AdminID: actor.UserID,
			Note:    optional(note),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deny refund request")
		}
		if !resolved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund request already resolved")
		}
		if err := s.orders.WithTx(tx).UpdateRefundStatus(ctx, order.ID, orderStatus, nil); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, resolvedEvent(enums.EventRefundDenied, request, actor, 0, orderStatus, note))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRefund("denied")
	s.logInfo(ctx, order.ID, "refund.denied")
	return s.reload(ctx, request.ID)
}

func (s *service) ListPending(ctx context.Context, actor orders.Actor, params pagination.Params) (*pagination.Page[RefundDTO], error) {
	if !actor.Role.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	rows, err := s.repo.ListPending(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending refunds")
	}
	page := pagination.Paginate(rows, params.Limit, func(r models.RefundRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	out := pagination.Page[RefundDTO]{Items: make([]RefundDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, r := range page.Items {
		out.Items = append(out.Items, newDTO(r))
	}
	return &out, nil
}

func (s *service) ListForOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) ([]RefundDTO, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID && !actor.Role.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refunds")
	}
	out := make([]RefundDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, newDTO(r))
	}
	return out, nil
}

func (s *service) loadPending(ctx context.Context, refundID uuid.UUID) (*models.RefundRequest, *models.Order, error) {
	request, err := s.repo.FindByID(ctx, refundID)
	if err != nil {
		return nil, nil, err
	}
	if request.Status.IsTerminal() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "refund request already resolved")
	}
	order, err := s.orders.FindByID(ctx, request.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return request, order, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*RefundDTO, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := newDTO(*request)
	return &dto, nil
}

func resolvedEvent(
	eventType enums.OutboxEventType,
	request *models.RefundRequest,
	actor orders.Actor,
	amount int64,
	orderStatus enums.RefundStatus,
	note string,
) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRefundRequest,
		AggregateID:   request.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
		Data: payloads.RefundResolvedEvent{
			RefundID:     request.ID,
			OrderID:      request.OrderID,
			AdminID:      actor.UserID,
			Status:       statusFor(eventType),
			AmountCents:  amount,
			RefundStatus: orderStatus,
			Note:         note,
		},
	}
}

func statusFor(eventType enums.OutboxEventType) enums.RefundRequestStatus {
	if eventType == enums.EventRefundApproved {
		return enums.RefundRequestApproved
	}
	return enums.RefundRequestDenied
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *service) logInfo(ctx context.Context, orderID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), msg)
}

func (s *service) logError(ctx context.Context, orderID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), msg, err)
}
