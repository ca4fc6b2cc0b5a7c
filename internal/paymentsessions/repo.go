package paymentsessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
)

// Repository persists payment session tokens.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.PaymentSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error)
	FindByExternalRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.PaymentSession, error)
	MarkResolved(ctx context.Context, id, orderID uuid.UUID, paymentID string) (bool, error)
	MarkStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (bool, error)
	ListStale(ctx context.Context, query StaleQuery) ([]models.PaymentSession, error)
	AbandonExpired(ctx context.Context, provider enums.PaymentProvider, createdBefore time.Time) (int64, error)
}

// StatusUpdate moves an unresolved session out of one of From into Status.
type StatusUpdate struct {
	From      []enums.PaymentSessionStatus
	Status    enums.PaymentSessionStatus
	PaymentID *string
	LastError *string
}

// StaleQuery selects unresolved sessions whose countdown ran out.
type StaleQuery struct {
	Provider      enums.PaymentProvider
	ExpiredBefore time.Time
	CreatedAfter  time.Time
	Limit         int
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.PaymentSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

func (r *repository) FindByExternalRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_ref = ?", provider, ref).
		First(&session).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// MarkResolved binds the session to its order exactly once.
func (r *repository) MarkResolved(ctx context.Context, id, orderID uuid.UUID, paymentID string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ? AND order_id IS NULL", id).
		Updates(map[string]any{
			"status":      enums.PaymentSessionPaid,
			"order_id":    orderID,
			"payment_id":  paymentID,
			"resolved_at": now,
			"last_error":  nil,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (bool, error) {
	now := time.Now().UTC()
	values := map[string]any{
		"status":     update.Status,
		"updated_at": now,
	}
	if update.PaymentID != nil {
		values["payment_id"] = *update.PaymentID
	}
	if update.LastError != nil {
		values["last_error"] = *update.LastError
	}
	if update.Status == enums.PaymentSessionCompensated || update.Status == enums.PaymentSessionFailed {
		values["resolved_at"] = now
	}

	query := r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ? AND order_id IS NULL", id)
	if len(update.From) > 0 {
		query = query.Where("status IN ?", update.From)
	}
	res := query.Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListStale(ctx context.Context, query StaleQuery) ([]models.PaymentSession, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	db := r.db.WithContext(ctx).
		Where("order_id IS NULL").
		Where("status IN ?", []enums.PaymentSessionStatus{enums.PaymentSessionPending, enums.PaymentSessionAbandoned}).
		Where("expires_at < ?", query.ExpiredBefore.UTC())
	if query.Provider != "" {
		db = db.Where("provider = ?", query.Provider)
	}
	if !query.CreatedAfter.IsZero() {
		db = db.Where("created_at > ?", query.CreatedAfter.UTC())
	}
	var sessions []models.PaymentSession
	if err := db.Order("created_at ASC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// AbandonExpired flags pending sessions created before the cutoff. Abandoned
// sessions still accept a late confirmation.
func (r *repository) AbandonExpired(ctx context.Context, provider enums.PaymentProvider, createdBefore time.Time) (int64, error) {
	db := r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("order_id IS NULL AND status = ? AND created_at < ?", enums.PaymentSessionPending, createdBefore.UTC())
	if provider != "" {
		db = db.Where("provider = ?", provider)
	}
	res := db.Updates(map[string]any{
		"status":     enums.PaymentSessionAbandoned,
		"updated_at": time.Now().UTC(),
	})
	return res.RowsAffected, res.Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment session not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment session")
}
