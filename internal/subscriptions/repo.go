package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
)

// Repository persists the per-user Stripe subscription mapping.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	Upsert(ctx context.Context, sub *models.Subscription) error
	UpdateStatus(ctx context.Context, stripeSubscriptionID string, status enums.SubscriptionStatus) error
	MarkCanceling(ctx context.Context, id uuid.UUID) error
	RecordInvoice(ctx context.Context, id uuid.UUID, invoiceID string, orderID *uuid.UUID) (bool, error)
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

// FindByUser returns nil without error when the user never subscribed.
func (r *repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return &sub, nil
}

// FindByStripeID returns nil without error for an unknown subscription.
func (r *repository) FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return &sub, nil
}

// Upsert keeps one row per user; a new checkout replaces the Stripe ids and
// reactivates the row.
func (r *repository) Upsert(ctx context.Context, sub *models.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_subscription_id",
			"stripe_customer_id",
			"status",
			"cancel_at_period_end",
			"updated_at",
		}),
	}).Create(sub).Error
}

func (r *repository) UpdateStatus(ctx context.Context, stripeSubscriptionID string, status enums.SubscriptionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) MarkCanceling(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":               enums.SubscriptionStatusCanceling,
			"cancel_at_period_end": true,
			"updated_at":           time.Now().UTC(),
		}).Error
}

// RecordInvoice stores the last billed invoice unless it is already recorded.
// The conditional update is the redelivery guard: false means another
// delivery of the same invoice got there first.
func (r *repository) RecordInvoice(ctx context.Context, id uuid.UUID, invoiceID string, orderID *uuid.UUID) (bool, error) {
	values := map[string]any{
		"last_invoice_id": invoiceID,
		"updated_at":      time.Now().UTC(),
	}
	if orderID != nil {
		values["last_order_id"] = *orderID
		values["status"] = gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
			enums.SubscriptionStatusPastDue, enums.SubscriptionStatusActive)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND (last_invoice_id IS NULL OR last_invoice_id <> ?)", id, invoiceID).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
