package cart

import (
	"context"
	"time"

	"github.com/giftshop/cartsync/internal/repo"
	"github.com/giftshop/cartsync/pkg/db/models"
	"github.com/giftshop/cartsync/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes persistence operations for per-user carts.
type Repository struct {
	repo.Base
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{Base: r.Bind(tx)}
}

// FindByUser loads the cart header for the user. Returns gorm.ErrRecordNotFound when absent.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.DB(ctx).
		Where("user_id = ?", userID).
		First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// EnsureForUser creates the cart header if missing and returns it. Concurrent
// first requests race on the user_id unique index, so the insert ignores conflicts.
func (r *Repository) EnsureForUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart := models.Cart{UserID: userID}
	if err := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&cart).Error; err != nil {
		return nil, err
	}
	return r.FindByUser(ctx, userID)
}

// ListItems returns items belonging to a cart in insertion order.
func (r *Repository) ListItems(ctx context.Context, cartID uint) ([]models.CartItem, error) {
	var rows []models.CartItem
	if err := r.DB(ctx).
		Where("cart_id = ?", cartID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AddQuantity inserts the item or, if the product is already present, increments
// its quantity in the same statement. The stored snapshot of an existing line is kept.
// It returns false, changing nothing, when the sum would pass types.MaxLineQuantity.
func (r *Repository) AddQuantity(ctx context.Context, item *models.CartItem) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_ref"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("cart_items.quantity + excluded.quantity <= ?", types.MaxLineQuantity),
			}},
		}).
		Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MergeQuantity is AddQuantity for guest merges: instead of rejecting, the
// line is capped at types.MaxLineQuantity so one oversized line cannot block login.
func (r *Repository) MergeQuantity(ctx context.Context, item *models.CartItem) error {
	if item.Quantity > types.MaxLineQuantity {
		item.Quantity = types.MaxLineQuantity
	}
	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_ref"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity": gorm.Expr(
					"CASE WHEN cart_items.quantity + excluded.quantity > ? THEN ? ELSE cart_items.quantity + excluded.quantity END",
					types.MaxLineQuantity, types.MaxLineQuantity,
				),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(item).Error
}

// SetQuantity overwrites the quantity of one line and reports rows touched.
func (r *Repository) SetQuantity(ctx context.Context, cartID uint, productRef int64, qty int) (int64, error) {
	res := r.DB(ctx).
		Model(&models.CartItem{}).
		Where("cart_id = ? AND product_ref = ?", cartID, productRef).
		Updates(map[string]any{"quantity": qty, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// DeleteItem removes one line and reports rows touched.
func (r *Repository) DeleteItem(ctx context.Context, cartID uint, productRef int64) (int64, error) {
	res := r.DB(ctx).
		Where("cart_id = ? AND product_ref = ?", cartID, productRef).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

// DeleteItems empties the cart while keeping its header row.
func (r *Repository) DeleteItems(ctx context.Context, cartID uint) error {
	return r.DB(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

// Touch sets the cart's updated_at to at.
func (r *Repository) Touch(ctx context.Context, cartID uint, at time.Time) error {
	return r.DB(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("updated_at", at).Error
}

// InsertMergeReceipt records a merged batch line. It returns false when the
// line was already applied by an earlier attempt of the same batch.
func (r *Repository) InsertMergeReceipt(ctx context.Context, receipt *models.CartMergeReceipt) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(receipt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindMergeReceipt loads the receipt for one line of a batch.
func (r *Repository) FindMergeReceipt(ctx context.Context, userID, batchID uuid.UUID, productRef int64) (*models.CartMergeReceipt, error) {
	var receipt models.CartMergeReceipt
	if err := r.DB(ctx).
		Where("user_id = ? AND batch_id = ? AND product_ref = ?", userID, batchID, productRef).
		First(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

// AdvanceMergeReceipt moves a receipt's quantity from one value to a larger one.
// It reports false when another attempt changed the receipt first.
func (r *Repository) AdvanceMergeReceipt(ctx context.Context, userID, batchID uuid.UUID, productRef int64, from, to int) (bool, error) {
	res := r.DB(ctx).
		Model(&models.CartMergeReceipt{}).
		Where("user_id = ? AND batch_id = ? AND product_ref = ? AND quantity = ?", userID, batchID, productRef, from).
		Update("quantity", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
