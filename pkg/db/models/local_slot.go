package models

import "time"

// LocalSlot is a durable key/value row used by storefront clients for guest state.
type LocalSlot struct {
	Key       string    `gorm:"column:slot_key;primaryKey"`
	Value     []byte    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
