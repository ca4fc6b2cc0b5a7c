package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
)

// Repository reads shopper profiles. Accounts are provisioned by the identity
// provider; this service never writes them outside tests and seeding.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a user row.
func (r *Repository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Status == "" {
		user.Status = enums.RecordStatusActive
	}
	if user.Role == "" {
		user.Role = enums.RoleUser
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}
	return user, nil
}

// FindActive loads a non-archived user.
func (r *Repository) FindActive(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, enums.RecordStatusActive).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return &user, nil
}

// EmailFor returns the contact address of an active user, or "" when the
// user has no local profile.
func (r *Repository) EmailFor(ctx context.Context, id uuid.UUID) (string, error) {
	user, err := r.FindActive(ctx, id)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
