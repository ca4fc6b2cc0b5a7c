package product

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
)

// ProductDTO is the catalog shape returned to shoppers.
type ProductDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Category    string    `json:"category"`
	PriceCents  int64     `json:"price_cents"`
	Price       string    `json:"price"`
	Quantity    int       `json:"quantity"`
	ImageRef    *string   `json:"image_ref,omitempty"`
}

func NewProductDTO(p models.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		PriceCents:  p.PriceCents,
		Price:       money.Format(p.PriceCents),
		Quantity:    p.Quantity,
		ImageRef:    p.ImageRef,
	}
}
