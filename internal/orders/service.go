package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/freshcart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service covers order history, detail, invoice and admin fulfilment.
type Service interface {
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[OrderSummary], error)
	Detail(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDetail, error)
	Invoice(ctx context.Context, actor Actor, orderID uuid.UUID) (*Invoice, error)
	AdminList(ctx context.Context, actor Actor, params pagination.Params, filters ListFilters) (*pagination.Page[OrderSummary], error)
	AdminUpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, status enums.OrderStatus) (*OrderSummary, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	currency string
	logg     *logger.Logger
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, currency string, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if currency == "" {
		currency = "SGD"
	}
	return &service{repo: repo, tx: tx, outbox: outbox, currency: currency, logg: logg}, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[OrderSummary], error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := summaries(rows, params.Limit)
	return &page, nil
}

func (s *service) Detail(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.loadVisible(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	detail := newDetail(*order)
	return &detail, nil
}

func (s *service) Invoice(ctx context.Context, actor Actor, orderID uuid.UUID) (*Invoice, error) {
	detail, err := s.Detail(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	return &Invoice{
		OrderDetail: *detail,
		Subtotal:    money.Format(detail.Totals.SubtotalCents),
		ShippingFee: money.Format(detail.Totals.ShippingFeeCents),
		GrandTotal:  money.Format(detail.Totals.GrandTotalCents),
		Currency:    s.currency,
	}, nil
}

func (s *service) AdminList(ctx context.Context, actor Actor, params pagination.Params, filters ListFilters) (*pagination.Page[OrderSummary], error) {
	if !actor.Role.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	rows, err := s.repo.ListAll(ctx, params, filters)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := summaries(rows, params.Limit)
	return &page, nil
}

// AdminUpdateStatus moves an order forward through pending, delivery and
// delivered. Setting the current status again is a no-op.
func (s *service) AdminUpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, status enums.OrderStatus) (*OrderSummary, error) {
	if !actor.Role.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", status))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == status {
			updated = order
			return nil
		}
		if !order.Status.CanAdvanceTo(status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", order.Status, status))
		}
		if err := repo.UpdateStatus(ctx, orderID, status); err != nil {
			return err
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: payloads.OrderStatusChangedEvent{
				OrderID: orderID,
				From:    order.Status,
				To:      status,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit status change")
		}
		order.Status = status
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Info(s.logg.WithField(logCtx, "status", status), "order status updated")
	}
	summary := newSummary(*updated)
	return &summary, nil
}

func (s *service) loadVisible(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.repo.FindDetails(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID && !actor.Role.IsAdmin() {
		// foreign orders look missing rather than forbidden
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func summaries(rows []models.Order, limit int) pagination.Page[OrderSummary] {
	page := pagination.Paginate(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	out := pagination.Page[OrderSummary]{Items: make([]OrderSummary, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, o := range page.Items {
		out.Items = append(out.Items, newSummary(o))
	}
	return out
}
