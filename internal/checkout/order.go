package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/orders"
	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/internal/stock"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/payloads"
)

// CreateOrder persists the header, items and stock debits in one transaction.
// The first lost debit rolls everything back and surfaces STOCK_RACE.
func (s *service) CreateOrder(ctx context.Context, input OrderInput) (uuid.UUID, error) {
	run := newAttempt(s.logg, StateValidating)
	var orderID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		id, err := s.createOrderTx(ctx, tx, input, run)
		if err != nil {
			return err
		}
		orderID = id
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	s.metrics.IncOrderCreated(string(input.Source))
	return orderID, nil
}

// FinalizeOnPayment records the captured payment on an order. Repeating it
// with the same payment is a no-op.
func (s *service) FinalizeOnPayment(ctx context.Context, orderID uuid.UUID, payment orders.PaymentInfo) error {
	var userID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		id, err := s.finalizeTx(ctx, tx, orderID, payment, true)
		userID = id
		return err
	})
	if err != nil {
		return err
	}
	s.clearSessionCart(ctx, userID)
	return nil
}

// PlacePaidOrder creates the order and records its payment atomically. within
// runs last in the same transaction; returning an error from it rolls the
// order back.
func (s *service) PlacePaidOrder(
	ctx context.Context,
	input OrderInput,
	payment orders.PaymentInfo,
	within func(tx *gorm.DB, orderID uuid.UUID) error,
) (uuid.UUID, error) {
	run := newAttempt(s.logg, StateValidating)
	// A subscription order is billed in the background and must leave the
	// shopper's carts alone.
	clearCarts := input.Source != payloads.OrderSourceSubscription
	var orderID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		id, err := s.createOrderTx(ctx, tx, input, run)
		if err != nil {
			return err
		}
		if _, err := s.finalizeTx(ctx, tx, id, payment, clearCarts); err != nil {
			return err
		}
		if within != nil {
			if err := within(tx, id); err != nil {
				return err
			}
		}
		orderID = id
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	run.moveTo(s.withFields(ctx, map[string]any{"order_id": orderID.String()}), StatePaid)
	s.metrics.IncOrderCreated(string(input.Source))
	if clearCarts {
		s.clearSessionCart(ctx, input.UserID)
	}
	return orderID, nil
}

func (s *service) createOrderTx(ctx context.Context, tx *gorm.DB, input OrderInput, run *attempt) (uuid.UUID, error) {
	if input.UserID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if len(input.Snapshot.ProductIDs()) == 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart has no purchasable items")
	}
	totals := pricing.ComputeTotals(input.Snapshot)
	if input.Totals != (pricing.Totals{}) && input.Totals != totals {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "totals do not match the frozen cart")
	}
	if input.Source == "" {
		input.Source = payloads.OrderSourceCheckout
	}
	ctx = s.withFields(ctx, map[string]any{"user_id": input.UserID.String()})
	run.moveTo(ctx, StateCreating)

	repo := s.orders.WithTx(tx)
	order := &models.Order{
		UserID:           input.UserID,
		Status:           enums.OrderStatusPending,
		SubtotalCents:    totals.SubtotalCents,
		ShippingFeeCents: totals.ShippingFeeCents,
		TotalCents:       totals.GrandTotalCents,
	}
	if err := repo.CreateOrder(ctx, order); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	ctx = s.withFields(ctx, map[string]any{"order_id": order.ID.String()})

	lines := make([]payloads.OrderLine, 0, input.Snapshot.Len())
	position := 0
	for _, line := range input.Snapshot.Lines() {
		if line.IsZeroEffect() {
			continue
		}
		position++
		item := &models.OrderItem{
			OrderID:        order.ID,
			Position:       position,
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
		}
		if line.ImageRef != "" {
			ref := line.ImageRef
			item.ImageRef = &ref
		}
		if err := repo.AddOrderItem(ctx, item); err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order item")
		}

		outcome, err := s.stock.Debit(ctx, tx, line.ProductID, line.Quantity)
		if err != nil {
			return uuid.Nil, err
		}
		if outcome == stock.OutcomeConflict {
			run.moveTo(ctx, StateConflict)
			s.metrics.IncStockRace()
			return uuid.Nil, stockRace(ctx, tx, line)
		}
		lines = append(lines, payloads.OrderLine{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(enums.RoleUser)},
		Data: payloads.OrderCreatedEvent{
			OrderID:          order.ID,
			UserID:           input.UserID,
			Source:           input.Source,
			Lines:            lines,
			SubtotalCents:    totals.SubtotalCents,
			ShippingFeeCents: totals.ShippingFeeCents,
			TotalCents:       totals.GrandTotalCents,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created event")
	}
	run.moveTo(ctx, StatePersisted)
	return order.ID, nil
}

// stockRace reads what is left of the contested product so the shopper sees
// a concrete shortfall.
func stockRace(ctx context.Context, tx *gorm.DB, line cart.Line) error {
	shortfall := stock.Shortfall{
		ProductID:   line.ProductID,
		ProductName: line.ProductName,
		Requested:   line.Quantity,
	}
	var product models.Product
	if err := tx.WithContext(ctx).Select("id", "quantity").Where("id = ?", line.ProductID).First(&product).Error; err == nil {
		shortfall.Available = product.Quantity
	}
	msg := fmt.Sprintf("%q sold out while the order was placed", line.ProductName)
	return pkgerrors.New(pkgerrors.CodeStockRace, msg).WithDetails(shortfall)
}

func (s *service) finalizeTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, payment orders.PaymentInfo, clearCart bool) (uuid.UUID, error) {
	if !payment.Provider.IsValid() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider")
	}
	if payment.PaymentID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = s.now().UTC()
	}

	repo := s.orders.WithTx(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return uuid.Nil, err
	}
	written, err := repo.UpdatePaymentInfo(ctx, orderID, payment)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return uuid.Nil, err
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order payment")
	}
	if !written {
		return order.UserID, nil
	}
	if payment.AmountCents != order.TotalCents {
		s.logWarn(s.withFields(ctx, map[string]any{
			"order_id":      orderID.String(),
			"paid_cents":    payment.AmountCents,
			"expected_cents": order.TotalCents,
		}), "checkout.paid_amount_mismatch")
	}

	if clearCart {
		if err := s.durableCarts.WithTx(tx).Clear(ctx, order.UserID); err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear saved cart")
		}
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data: payloads.OrderPaidEvent{
			OrderID:     orderID,
			UserID:      order.UserID,
			Provider:    payment.Provider,
			PaymentID:   payment.PaymentID,
			AmountCents: payment.AmountCents,
			PaidAt:      payment.PaidAt.UTC(),
		},
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid event")
	}
	return order.UserID, nil
}

func (s *service) clearSessionCart(ctx context.Context, userID uuid.UUID) {
	if userID == uuid.Nil {
		return
	}
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.sessionCarts.Clear(clearCtx, userID); err != nil {
		s.logError(ctx, "checkout.clear_session_cart_failed", err)
	}
}
