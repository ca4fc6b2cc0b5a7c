package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/enums"
)

// Product is a catalog entry. Quantity is the stock level and is only ever
// decremented through the conditional debit in the stock ledger.
type Product struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string             `gorm:"column:name;not null"`
	Description *string            `gorm:"column:description"`
	Category    string             `gorm:"column:category;not null;default:''"`
	PriceCents  int64              `gorm:"column:price_cents;not null"`
	Quantity    int                `gorm:"column:quantity;not null;default:0"`
	ImageRef    *string            `gorm:"column:image_ref"`
	Status      enums.RecordStatus `gorm:"column:status;type:record_status;not null;default:'active'"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(_ *gorm.DB) error {
	assignID(&p.ID)
	if p.Status == "" {
		p.Status = enums.RecordStatusActive
	}
	return nil
}
