package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderItem is the permanent price record of one purchased line. Rows are
// written with the order and never updated.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Position       int       `gorm:"column:position;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName    string    `gorm:"column:product_name;not null"`
	ImageRef       *string   `gorm:"column:image_ref"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
}

func (i *OrderItem) BeforeCreate(_ *gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// LineTotalCents is priceEach * quantity.
func (i OrderItem) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}
