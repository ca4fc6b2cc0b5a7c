package product

import (
	"context"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
)

const activeListKey = "active"

// coalescedRepository collapses concurrent ListActive calls into one query.
type coalescedRepository struct {
	Repository
	group *singleflight.Group
}

// NewCoalescedRepository wraps repo so concurrent full-catalog reads share a result.
func NewCoalescedRepository(repo Repository) Repository {
	return &coalescedRepository{Repository: repo, group: &singleflight.Group{}}
}

func (r *coalescedRepository) WithTx(tx *gorm.DB) Repository {
	// Transactions need their own read; no sharing across them.
	return r.Repository.WithTx(tx)
}

func (r *coalescedRepository) ListActive(ctx context.Context) ([]models.Product, error) {
	v, err, _ := r.group.Do(activeListKey, func() (any, error) {
		return r.Repository.ListActive(ctx)
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]models.Product)
	out := make([]models.Product, len(shared))
	copy(out, shared)
	return out, nil
}
