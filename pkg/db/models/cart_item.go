package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem persists the product snapshot captured when the product was first added.
type CartItem struct {
	ID            uint            `gorm:"column:id;primaryKey;autoIncrement"`
	CartID        uint            `gorm:"column:cart_id;not null;uniqueIndex:idx_cart_items_cart_product,priority:1"`
	ProductRef    int64           `gorm:"column:product_ref;not null;uniqueIndex:idx_cart_items_cart_product,priority:2"`
	NameEn        string          `gorm:"column:name_en;not null"`
	NameAr        string          `gorm:"column:name_ar;not null"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	ImageURL      string          `gorm:"column:image_url;not null"`
	CategoryID    string          `gorm:"column:category_id"`
	OccasionID    string          `gorm:"column:occasion_id"`
	IsBestSeller  bool            `gorm:"column:is_best_seller;not null;default:false"`
	IsSpecialGift bool            `gorm:"column:is_special_gift;not null;default:false"`
	Quantity      int             `gorm:"column:quantity;not null;check:chk_cart_items_quantity,quantity BETWEEN 1 AND 999"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
