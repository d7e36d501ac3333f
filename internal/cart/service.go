package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giftshop/cartsync/pkg/db/models"
	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/metrics"
	"github.com/giftshop/cartsync/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the authoritative per-user cart operations.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*Cart, error)
	Add(ctx context.Context, userID uuid.UUID, input AddItemInput) (*Cart, error)
	SetQuantity(ctx context.Context, userID uuid.UUID, productRef int64, qty int) (*Cart, error)
	Remove(ctx context.Context, userID uuid.UUID, productRef int64) (*Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) (*Cart, error)
	Count(ctx context.Context, userID uuid.UUID) (int, error)
	Merge(ctx context.Context, userID uuid.UUID, input MergeInput) (*MergeResult, error)
}

type service struct {
	repo    CartRepository
	tx      txRunner
	metrics *metrics.CartMetrics
}

// NewService builds a cart service backed by the provided stack. Metrics are optional.
func NewService(repo CartRepository, tx txRunner, m *metrics.CartMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		metrics: m,
	}, nil
}

// Cart is the server-side view of a user's cart.
type Cart struct {
	UserID    uuid.UUID
	Items     []types.CartItem
	UpdatedAt time.Time
}

// Summary derives the count and total from the items.
func (c *Cart) Summary() types.CartSummary {
	if c == nil {
		return types.Summarize(nil)
	}
	return types.Summarize(c.Items)
}

// AddItemInput is one add request. Snapshot is only stored when the product is new to the cart.
type AddItemInput struct {
	ProductRef int64
	Snapshot   types.ProductSnapshot
	Quantity   int
}

// MergeInput is a guest cart submitted on login. BatchID makes retries of the same
// submission idempotent.
type MergeInput struct {
	BatchID uuid.UUID
	Items   []AddItemInput
}

// MergeResult carries the post-merge cart and how many lines were newly applied.
type MergeResult struct {
	Cart    *Cart
	Applied int
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (cart *Cart, err error) {
	defer s.observe("get", time.Now(), &err)
	if err := validateUser(userID); err != nil {
		return nil, err
	}

	record, err := s.repo.EnsureForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load cart")
	}
	return s.load(ctx, s.repo, record)
}

func (s *service) Add(ctx context.Context, userID uuid.UUID, input AddItemInput) (cart *Cart, err error) {
	defer s.observe("add", time.Now(), &err)
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if err := validateAdd(input); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.EnsureForUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load cart")
		}
		applied, err := repo.AddQuantity(ctx, itemRow(record.ID, input))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "add cart item")
		}
		if !applied {
			return types.QuantityOverflow(input.ProductRef)
		}
		cart, err = s.touchAndLoad(ctx, repo, record)
		return err
	})
	if err != nil {
		return nil, asStorage(err, "add cart item")
	}
	return cart, nil
}

func (s *service) SetQuantity(ctx context.Context, userID uuid.UUID, productRef int64, qty int) (cart *Cart, err error) {
	defer s.observe("set_quantity", time.Now(), &err)
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if err := types.ValidateLine(productRef, qty); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := s.existingCart(ctx, repo, userID)
		if err != nil {
			return err
		}
		affected, err := repo.SetQuantity(ctx, record.ID, productRef, qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "update cart item")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart")
		}
		cart, err = s.touchAndLoad(ctx, repo, record)
		return err
	})
	if err != nil {
		return nil, asStorage(err, "update cart item")
	}
	return cart, nil
}

func (s *service) Remove(ctx context.Context, userID uuid.UUID, productRef int64) (cart *Cart, err error) {
	defer s.observe("remove", time.Now(), &err)
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if productRef <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := s.existingCart(ctx, repo, userID)
		if err != nil {
			return err
		}
		affected, err := repo.DeleteItem(ctx, record.ID, productRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "remove cart item")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart")
		}
		cart, err = s.touchAndLoad(ctx, repo, record)
		return err
	})
	if err != nil {
		return nil, asStorage(err, "remove cart item")
	}
	return cart, nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (cart *Cart, err error) {
	defer s.observe("clear", time.Now(), &err)
	if err := validateUser(userID); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := s.existingCart(ctx, repo, userID)
		if err != nil {
			return err
		}
		if err := repo.DeleteItems(ctx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "clear cart")
		}
		cart, err = s.touchAndLoad(ctx, repo, record)
		return err
	})
	if err != nil {
		return nil, asStorage(err, "clear cart")
	}
	return cart, nil
}

func (s *service) Count(ctx context.Context, userID uuid.UUID) (count int, err error) {
	defer s.observe("count", time.Now(), &err)
	if err := validateUser(userID); err != nil {
		return 0, err
	}

	record, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load cart")
	}
	rows, err := s.repo.ListItems(ctx, record.ID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list cart items")
	}
	return types.CartCount(itemsToDomain(rows)), nil
}

// Merge adds every guest line to the user's cart in one transaction. Each line is
// receipted under the batch; a retry of the batch only applies units beyond the
// receipted quantity, so it can neither double count nor drop units added since.
func (s *service) Merge(ctx context.Context, userID uuid.UUID, input MergeInput) (result *MergeResult, err error) {
	defer s.observe("merge", time.Now(), &err)
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if input.BatchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id is required")
	}
	for i, item := range input.Items {
		// oversized guest lines are capped by coalesce, not rejected
		item.Quantity = min(item.Quantity, types.MaxLineQuantity)
		if err := validateAdd(item); err != nil {
			return nil, err.WithDetails(map[string]any{"index": i, "productId": item.ProductRef})
		}
	}
	lines := coalesce(input.Items)

	result = &MergeResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.EnsureForUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load cart")
		}
		for _, line := range lines {
			delta, err := receiptDelta(ctx, repo, userID, input.BatchID, line)
			if err != nil {
				return err
			}
			if delta == 0 {
				continue
			}
			line.Quantity = delta
			if err := repo.MergeQuantity(ctx, itemRow(record.ID, line)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "merge cart item")
			}
			result.Applied++
		}
		result.Cart, err = s.touchAndLoad(ctx, repo, record)
		return err
	})
	if err != nil {
		return nil, asStorage(err, "merge cart")
	}
	s.metrics.AddMergedItems(result.Applied)
	return result, nil
}

// receiptDelta records line under the batch and returns how many of its units
// are not yet applied.
func receiptDelta(ctx context.Context, repo CartRepository, userID, batchID uuid.UUID, line AddItemInput) (int, error) {
	inserted, err := repo.InsertMergeReceipt(ctx, &models.CartMergeReceipt{
		UserID:     userID,
		BatchID:    batchID,
		ProductRef: line.ProductRef,
		Quantity:   line.Quantity,
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record merge receipt")
	}
	if inserted {
		return line.Quantity, nil
	}

	receipt, err := repo.FindMergeReceipt(ctx, userID, batchID, line.ProductRef)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load merge receipt")
	}
	if line.Quantity <= receipt.Quantity {
		return 0, nil
	}
	advanced, err := repo.AdvanceMergeReceipt(ctx, userID, batchID, line.ProductRef, receipt.Quantity, line.Quantity)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "update merge receipt")
	}
	if !advanced {
		return 0, pkgerrors.New(pkgerrors.CodeConflict, "merge batch is already being applied")
	}
	return line.Quantity - receipt.Quantity, nil
}

func (s *service) existingCart(ctx context.Context, repo CartRepository, userID uuid.UUID) (*models.Cart, error) {
	record, err := repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load cart")
	}
	return record, nil
}

func (s *service) touchAndLoad(ctx context.Context, repo CartRepository, record *models.Cart) (*Cart, error) {
	now := time.Now().UTC()
	if err := repo.Touch(ctx, record.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "touch cart")
	}
	touched := *record
	touched.UpdatedAt = now
	return s.load(ctx, repo, &touched)
}

func (s *service) load(ctx context.Context, repo CartRepository, record *models.Cart) (*Cart, error) {
	rows, err := repo.ListItems(ctx, record.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list cart items")
	}
	return &Cart{
		UserID:    record.UserID,
		Items:     itemsToDomain(rows),
		UpdatedAt: record.UpdatedAt,
	}, nil
}

func (s *service) observe(op string, started time.Time, err *error) {
	s.metrics.Observe(op, started, *err)
}

func validateUser(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	return nil
}

func validateAdd(input AddItemInput) *pkgerrors.Error {
	return types.ValidateItem(types.CartItem{
		ProductRef: input.ProductRef,
		Snapshot:   input.Snapshot,
		Quantity:   input.Quantity,
	})
}

// coalesce folds duplicate product refs into one line, keeping the first snapshot.
// Line quantities are capped at types.MaxLineQuantity.
func coalesce(items []AddItemInput) []AddItemInput {
	out := make([]AddItemInput, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductRef]; ok {
			out[i].Quantity = min(out[i].Quantity+item.Quantity, types.MaxLineQuantity)
			continue
		}
		index[item.ProductRef] = len(out)
		item.Quantity = min(item.Quantity, types.MaxLineQuantity)
		out = append(out, item)
	}
	return out
}

// asStorage keeps typed errors and classifies anything else (e.g. a failed commit).
func asStorage(err error, msg string) error {
	return pkgerrors.FromDB(err, msg)
}
