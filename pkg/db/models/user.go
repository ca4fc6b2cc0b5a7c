package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/enums"
)

// User is the shopper/admin identity. Credentials live with the identity
// provider; this row carries what checkout and admin screens need.
type User struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string             `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name      string             `gorm:"column:name;not null"`
	Role      enums.Role         `gorm:"column:role;type:user_role;not null;default:'user'"`
	Status    enums.RecordStatus `gorm:"column:status;type:record_status;not null;default:'active'"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	assignID(&u.ID)
	return nil
}
