package cart

import (
	"context"
	"time"

	"github.com/giftshop/cartsync/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	EnsureForUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	ListItems(ctx context.Context, cartID uint) ([]models.CartItem, error)
	AddQuantity(ctx context.Context, item *models.CartItem) (bool, error)
	MergeQuantity(ctx context.Context, item *models.CartItem) error
	SetQuantity(ctx context.Context, cartID uint, productRef int64, qty int) (int64, error)
	DeleteItem(ctx context.Context, cartID uint, productRef int64) (int64, error)
	DeleteItems(ctx context.Context, cartID uint) error
	Touch(ctx context.Context, cartID uint, at time.Time) error
	InsertMergeReceipt(ctx context.Context, receipt *models.CartMergeReceipt) (bool, error)
	FindMergeReceipt(ctx context.Context, userID, batchID uuid.UUID, productRef int64) (*models.CartMergeReceipt, error)
	AdvanceMergeReceipt(ctx context.Context, userID, batchID uuid.UUID, productRef int64, from, to int) (bool, error)
}
