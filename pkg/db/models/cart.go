package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart is the authoritative per-user cart header. Items live in cart_items so
// each mutation can be a targeted row update.
type Cart struct {
	ID        uint       `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_carts_user_id"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
