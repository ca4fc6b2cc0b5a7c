package cart

import (
	"github.com/google/uuid"

	cartsvc "github.com/angelmondragon/freshcart-backend/internal/cart"
)

type setItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=999"`
	Add       bool      `json:"add"`
}

func (r setItemRequest) toInput() cartsvc.SetItemInput {
	return cartsvc.SetItemInput{
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		Add:       r.Add,
	}
}
