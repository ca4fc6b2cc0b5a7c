package cart

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
)

// Catalog resolves current catalog rows for re-pricing.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Freeze normalizes the session lines and re-prices each one from the
// catalog, so the snapshot reflects prices at checkout time. A product that
// is unknown or archived keeps its line at price 0.
func Freeze(ctx context.Context, lines []CartLine, catalog Catalog) (Snapshot, error) {
	normalized := Normalize(lines)
	current, err := catalog.GetByIDs(ctx, normalized.ProductIDs())
	if err != nil {
		return Snapshot{}, err
	}
	frozen := normalized.Lines()
	for i := range frozen {
		if frozen[i].IsZeroEffect() {
			continue
		}
		product, ok := current[frozen[i].ProductID]
		if !ok {
			frozen[i].UnitPriceCents = 0
			continue
		}
		frozen[i].UnitPriceCents = product.PriceCents
		frozen[i].ProductName = product.Name
		if product.ImageRef != nil {
			frozen[i].ImageRef = *product.ImageRef
		}
	}
	return Snapshot{lines: frozen}, nil
}

// SnapshotOf builds a snapshot of every given product at a fixed quantity,
// in the order given. Used for recurring grocery boxes.
func SnapshotOf(products []models.Product, quantity int) Snapshot {
	lines := make([]Line, 0, len(products))
	for _, p := range products {
		line := Line{
			ProductID:      p.ID,
			ProductName:    p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       quantity,
		}
		if p.ImageRef != nil {
			line.ImageRef = *p.ImageRef
		}
		lines = append(lines, line)
	}
	return Snapshot{lines: lines}
}
