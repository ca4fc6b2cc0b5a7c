package refunds

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/pagination"
)

// Repository persists refund requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.RefundRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error)
	FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.RefundRequest, error)
	ListPending(ctx context.Context, params pagination.Params) ([]models.RefundRequest, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.RefundRequest, error)
	Resolve(ctx context.Context, id uuid.UUID, resolution Resolution) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, message string) error
}

// Resolution moves a pending request to a terminal status.
type Resolution struct {
	Status      enums.RefundRequestStatus
	AdminID     uuid.UUID
	Note        *string
	AmountCents *int64
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

func (r *repository) Create(ctx context.Context, request *models.RefundRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	var request models.RefundRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, notFound(err)
	}
	return &request, nil
}

// FindPendingByOrder returns nil without error when the order has no open request.
func (r *repository) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.RefundRequest, error) {
	var request models.RefundRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.RefundRequestPending).
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending refund")
	}
	return &request, nil
}

func (r *repository) ListPending(ctx context.Context, params pagination.Params) ([]models.RefundRequest, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := r.db.WithContext(ctx).Where("status = ?", enums.RefundRequestPending)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var requests []models.RefundRequest
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&requests).Error
	return requests, err
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.RefundRequest, error) {
	var requests []models.RefundRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

// Resolve only touches a request that is still pending.
func (r *repository) Resolve(ctx context.Context, id uuid.UUID, resolution Resolution) (bool, error) {
	now := time.Now().UTC()
	values := map[string]any{
		"status":      resolution.Status,
		"admin_id":    resolution.AdminID,
		"resolved_at": now,
		"last_error":  nil,
		"updated_at":  now,
	}
	if resolution.Note != nil {
		values["admin_note"] = *resolution.Note
	}
	if resolution.AmountCents != nil {
		values["amount_cents"] = *resolution.AmountCents
	}
	res := r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Where("id = ? AND status = ?", id, enums.RefundRequestPending).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordFailure keeps the request pending and retains the provider error for audit.
func (r *repository) RecordFailure(ctx context.Context, id uuid.UUID, message string) error {
	return r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Where("id = ? AND status = ?", id, enums.RefundRequestPending).
		Updates(map[string]any{
			"last_error": message,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund request")
}
