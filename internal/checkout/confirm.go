package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/internal/orders"
	"github.com/angelmondragon/freshcart-backend/internal/payments"
	"github.com/angelmondragon/freshcart-backend/internal/paymentsessions"
	"github.com/angelmondragon/freshcart-backend/internal/stock"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/payloads"
)

var errAlreadyResolved = errors.New("payment session already resolved")

var openSessionStatuses = []enums.PaymentSessionStatus{
	enums.PaymentSessionPending,
	enums.PaymentSessionAbandoned,
}

// ConfirmByExternalRef confirms the token opened under a provider reference.
// Webhooks and the QR sweep enter here.
func (s *service) ConfirmByExternalRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*ConfirmResult, error) {
	session, err := s.sessions.FindByExternalRef(ctx, provider, ref)
	if err != nil {
		return nil, err
	}
	return s.ConfirmPayment(ctx, ConfirmInput{Token: session.ID})
}

// ConfirmPayment asks the rail about a token and, once the provider reports
// the money captured, turns the frozen cart into exactly one order.
func (s *service) ConfirmPayment(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	session, err := s.sessions.FindByToken(ctx, input.Token)
	if err != nil {
		return nil, err
	}
	if input.UserID != uuid.Nil && session.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment session not found")
	}
	ctx = s.withFields(ctx, map[string]any{
		"payment_session": session.ID.String(),
		"provider":        string(session.Provider),
		"user_id":         session.UserID.String(),
	})
	if result, done := settled(session); done {
		return result, nil
	}

	release, acquired, err := s.lock.Acquire(ctx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire confirmation lock")
	}
	if !acquired {
		return pendingResult(session.ID, "confirmation already in progress"), nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logWarn(ctx, "checkout.confirm_lock_release_failed: "+err.Error())
		}
	}()

	// Another instance may have resolved the token while we waited.
	session, err = s.sessions.FindByToken(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if result, done := settled(session); done {
		return result, nil
	}

	run := newAttempt(s.logg, StatePaymentPending)
	rail, err := s.rails.Rail(session.Provider)
	if err != nil {
		return nil, err
	}
	confirmation, err := rail.Confirm(ctx, session.ExternalRef)
	if err != nil {
		s.metrics.ObserveConfirmation(string(session.Provider), "error")
		s.logError(ctx, "checkout.confirm_provider_failed", err)
		return nil, err
	}
	s.metrics.ObserveConfirmation(string(session.Provider), string(confirmation.Status))

	switch confirmation.Status {
	case payments.StatusPending:
		if session.Status == enums.PaymentSessionAbandoned || s.now().After(session.ExpiresAt) {
			run.moveTo(ctx, StateAbandoned)
		}
		return pendingResult(session.ID, confirmation.Message), nil
	case payments.StatusFailed:
		return s.fail(ctx, session, confirmation, run)
	}
	return s.completePaid(ctx, session, rail, confirmation, run)
}

// settled answers from the stored token when it can no longer change.
func settled(session *models.PaymentSession) (*ConfirmResult, bool) {
	if session.OrderID != nil {
		return successResult(session.ID, *session.OrderID, true), true
	}
	switch session.Status {
	case enums.PaymentSessionCompensated:
		result := failedResult(session.ID, "Your payment has been refunded because an item sold out.")
		result.Compensated = true
		return result, true
	case enums.PaymentSessionFailed:
		message := "Payment was not completed."
		if session.LastError != nil && *session.LastError != "" {
			message = *session.LastError
		}
		return failedResult(session.ID, message), true
	case enums.PaymentSessionPaid:
		return failedResult(session.ID, "Payment was received but the order could not be placed. Our team will contact you."), true
	}
	return nil, false
}

func (s *service) fail(ctx context.Context, session *models.PaymentSession, confirmation payments.Confirmation, run *attempt) (*ConfirmResult, error) {
	message := confirmation.Message
	if message == "" {
		message = "Payment was not completed."
	}
	if _, err := s.sessions.MarkStatus(ctx, nil, session.ID, paymentsessions.StatusUpdate{
		From:      openSessionStatuses,
		Status:    enums.PaymentSessionFailed,
		LastError: &message,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment session failed")
	}
	run.moveTo(ctx, StateFailed)
	return failedResult(session.ID, message), nil
}

func (s *service) completePaid(
	ctx context.Context,
	session *models.PaymentSession,
	rail payments.Rail,
	confirmation payments.Confirmation,
	run *attempt,
) (*ConfirmResult, error) {
	snapshot, err := paymentsessions.DecodeSnapshot(session)
	if err != nil {
		return nil, err
	}
	totals := paymentsessions.Totals(session)
	payment := orders.PaymentInfo{
		Provider:    session.Provider,
		PaymentID:   confirmation.PaymentID,
		AmountCents: confirmation.AmountCents,
		PaidAt:      s.now().UTC(),
	}
	if payment.AmountCents == 0 {
		payment.AmountCents = totals.GrandTotalCents
	}
	if payment.PaymentID == "" {
		payment.PaymentID = session.ExternalRef
	}
	run.moveTo(ctx, StatePaid)

	orderID, err := s.PlacePaidOrder(ctx, OrderInput{
		UserID:   session.UserID,
		Snapshot: snapshot,
		Totals:   totals,
		Source:   payloads.OrderSourceCheckout,
	}, payment, func(tx *gorm.DB, orderID uuid.UUID) error {
		resolved, err := s.sessions.MarkResolved(ctx, tx, session.ID, orderID, payment.PaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve payment session")
		}
		if !resolved {
			return errAlreadyResolved
		}
		return nil
	})
	switch {
	case err == nil:
		s.logInfo(s.withFields(ctx, map[string]any{"order_id": orderID.String()}), "checkout.order_paid")
		return successResult(session.ID, orderID, false), nil
	case errors.Is(err, errAlreadyResolved):
		latest, findErr := s.sessions.FindByToken(ctx, session.ID)
		if findErr != nil {
			return nil, findErr
		}
		if result, done := settled(latest); done {
			return result, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment session changed during confirmation")
	case pkgerrors.IsCode(err, pkgerrors.CodeStockRace), pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		run.moveTo(ctx, StateConflict)
		return s.compensate(ctx, session, rail, payment, err)
	default:
		s.logError(ctx, "checkout.order_creation_failed", err)
		return nil, err
	}
}

// compensate handles a capture that lost its order to a stock race: the money
// goes back through the same rail, or the token is parked as paid for
// operators when that is impossible.
func (s *service) compensate(
	ctx context.Context,
	session *models.PaymentSession,
	rail payments.Rail,
	payment orders.PaymentInfo,
	cause error,
) (*ConfirmResult, error) {
	reason := "stock ran out after payment was captured"
	var shortfall *stock.Shortfall
	if found, ok := stock.ShortfallFrom(cause); ok {
		shortfall = &found
		reason = fmt.Sprintf("%s sold out after payment was captured (available: %d)", found.ProductName, found.Available)
	}
	provider := string(session.Provider)
	s.logError(ctx, "checkout.orphaned_capture", cause)

	if !s.compensateOrphaned {
		s.metrics.IncCompensation(provider, "disabled")
		return s.parkOrphan(ctx, session, payment, reason, shortfall)
	}
	if err := rail.Refund(ctx, payment.PaymentID, payment.AmountCents); err != nil {
		s.metrics.IncCompensation(provider, "failed")
		s.logError(ctx, "checkout.compensation_refund_failed", err)
		return s.parkOrphan(ctx, session, payment, reason+"; automatic refund failed: "+err.Error(), shortfall)
	}
	s.metrics.IncCompensation(provider, "refunded")

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.sessions.MarkStatus(ctx, tx, session.ID, paymentsessions.StatusUpdate{
			From:      openSessionStatuses,
			Status:    enums.PaymentSessionCompensated,
			PaymentID: &payment.PaymentID,
			LastError: &reason,
		})
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCompensated,
			AggregateType: enums.AggregatePaymentSession,
			AggregateID:   session.ID,
			Data: payloads.PaymentCompensatedEvent{
				SessionID:   session.ID,
				UserID:      session.UserID,
				Provider:    session.Provider,
				PaymentID:   payment.PaymentID,
				AmountCents: payment.AmountCents,
				Reason:      reason,
			},
		})
	})
	if err != nil {
		s.logError(ctx, "checkout.compensation_record_failed", err)
	}

	message := "An item sold out while your order was placed. Your payment has been refunded."
	if shortfall != nil {
		message = fmt.Sprintf("Not enough stock for %s (available: %d). Your payment has been refunded.", shortfall.ProductName, shortfall.Available)
	}
	result := failedResult(session.ID, message)
	result.Compensated = true
	result.Shortfall = shortfall
	return result, nil
}

func (s *service) parkOrphan(
	ctx context.Context,
	session *models.PaymentSession,
	payment orders.PaymentInfo,
	reason string,
	shortfall *stock.Shortfall,
) (*ConfirmResult, error) {
	if _, err := s.sessions.MarkStatus(ctx, nil, session.ID, paymentsessions.StatusUpdate{
		From:      openSessionStatuses,
		Status:    enums.PaymentSessionPaid,
		PaymentID: &payment.PaymentID,
		LastError: &reason,
	}); err != nil {
		s.logError(ctx, "checkout.orphan_record_failed", err)
	}
	result := failedResult(session.ID, "Payment was received but an item sold out. Our team will refund you.")
	result.Shortfall = shortfall
	return result, nil
}
