package models

import (
	"time"

	"github.com/google/uuid"
)

// CartMergeReceipt records that one product of a guest merge batch was applied.
type CartMergeReceipt struct {
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	BatchID    uuid.UUID `gorm:"column:batch_id;type:uuid;primaryKey"`
	ProductRef int64     `gorm:"column:product_ref;primaryKey;autoIncrement:false"`
	Quantity   int       `gorm:"column:quantity;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
