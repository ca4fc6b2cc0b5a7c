// Package paymentsessions stores the durable tokens that correlate an
// external payment with the frozen cart that produced it.
package paymentsessions

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
)

// Service exposes token lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.PaymentSession, error)
	FindByToken(ctx context.Context, token uuid.UUID) (*models.PaymentSession, error)
	FindByExternalRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.PaymentSession, error)
	MarkResolved(ctx context.Context, tx *gorm.DB, token, orderID uuid.UUID, paymentID string) (bool, error)
	MarkStatus(ctx context.Context, tx *gorm.DB, token uuid.UUID, update StatusUpdate) (bool, error)
	ListStale(ctx context.Context, query StaleQuery) ([]models.PaymentSession, error)
	AbandonExpired(ctx context.Context, provider enums.PaymentProvider, createdBefore time.Time) (int64, error)
}

// CreateInput describes a freshly initiated payment.
type CreateInput struct {
	UserID      uuid.UUID
	Token       uuid.UUID
	Provider    enums.PaymentProvider
	ExternalRef string
	Snapshot    cart.Snapshot
	Totals      pricing.Totals
	ExpiresAt   time.Time
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment session repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.PaymentSession, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if !input.Provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider")
	}
	if strings.TrimSpace(input.ExternalRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	payload, err := json.Marshal(input.Snapshot)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart snapshot")
	}
	expiresAt := input.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(time.Hour)
	}

	session := &models.PaymentSession{
		ID:               input.Token,
		UserID:           input.UserID,
		Provider:         input.Provider,
		ExternalRef:      input.ExternalRef,
		Snapshot:         payload,
		SubtotalCents:    input.Totals.SubtotalCents,
		ShippingFeeCents: input.Totals.ShippingFeeCents,
		TotalCents:       input.Totals.GrandTotalCents,
		Status:           enums.PaymentSessionPending,
		ExpiresAt:        expiresAt.UTC(),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment session")
	}
	return session, nil
}

func (s *service) FindByToken(ctx context.Context, token uuid.UUID) (*models.PaymentSession, error) {
	if token == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment token is required")
	}
	return s.repo.FindByID(ctx, token)
}

func (s *service) FindByExternalRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.PaymentSession, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	return s.repo.FindByExternalRef(ctx, provider, ref)
}

// MarkResolved must run inside the order creation transaction.
func (s *service) MarkResolved(ctx context.Context, tx *gorm.DB, token, orderID uuid.UUID, paymentID string) (bool, error) {
	return s.repo.WithTx(tx).MarkResolved(ctx, token, orderID, paymentID)
}

// MarkStatus moves an unresolved session. tx may be nil.
func (s *service) MarkStatus(ctx context.Context, tx *gorm.DB, token uuid.UUID, update StatusUpdate) (bool, error) {
	if !update.Status.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment session status")
	}
	return s.repo.WithTx(tx).MarkStatus(ctx, token, update)
}

func (s *service) ListStale(ctx context.Context, query StaleQuery) ([]models.PaymentSession, error) {
	if query.ExpiredBefore.IsZero() {
		query.ExpiredBefore = s.now()
	}
	return s.repo.ListStale(ctx, query)
}

func (s *service) AbandonExpired(ctx context.Context, provider enums.PaymentProvider, createdBefore time.Time) (int64, error) {
	return s.repo.AbandonExpired(ctx, provider, createdBefore)
}

// DecodeSnapshot restores the frozen cart stored on a session.
func DecodeSnapshot(session *models.PaymentSession) (cart.Snapshot, error) {
	var snapshot cart.Snapshot
	if session == nil || len(session.Snapshot) == 0 {
		return snapshot, nil
	}
	if err := json.Unmarshal(session.Snapshot, &snapshot); err != nil {
		return cart.Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cart snapshot")
	}
	return snapshot, nil
}

// Totals re-derives the frozen totals of a session.
func Totals(session *models.PaymentSession) pricing.Totals {
	return pricing.Totals{
		SubtotalCents:    session.SubtotalCents,
		ShippingFeeCents: session.ShippingFeeCents,
		GrandTotalCents:  session.TotalCents,
	}
}
