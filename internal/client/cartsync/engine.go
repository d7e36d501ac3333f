// Package cartsync reconciles the guest cart into the account cart on login.
package cartsync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/giftshop/cartsync/internal/client/remote"
	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/logger"
	"github.com/giftshop/cartsync/pkg/types"
)

// RemoteCart is the slice of the cart API the engine needs.
type RemoteCart interface {
	Get(ctx context.Context) ([]types.CartItem, error)
	Merge(ctx context.Context, batchID uuid.UUID, items []types.CartItem) (*remote.MergeResult, error)
}

// Cache is the guest cart plus the pending merge batch id.
type Cache interface {
	Load(ctx context.Context) []types.CartItem
	Purge(ctx context.Context)
	MergeBatch(ctx context.Context) (uuid.UUID, bool)
	SaveMergeBatch(ctx context.Context, id uuid.UUID)
	PurgeMergeBatch(ctx context.Context)
}

// Engine runs the login merge. A batch id is persisted before the first attempt and
// reused until the merge succeeds or is rejected, so a retried login never double counts.
type Engine struct {
	remote RemoteCart
	cache  Cache
	logg   *logger.Logger
}

func New(remoteCart RemoteCart, cache Cache, logg *logger.Logger) (*Engine, error) {
	if remoteCart == nil {
		return nil, fmt.Errorf("remote cart required")
	}
	if cache == nil {
		return nil, fmt.Errorf("local cache required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Engine{remote: remoteCart, cache: cache, logg: logg}, nil
}

// Sync returns the account cart after folding in any guest items.
// Lines the server would reject are dropped before the merge. On failure the guest
// cache stays in place and a SYNC_ERROR is returned; the batch id is kept for a
// retry unless the server rejected the batch outright.
func (e *Engine) Sync(ctx context.Context) ([]types.CartItem, error) {
	local, dropped := mergeable(e.cache.Load(ctx))
	if len(dropped) > 0 {
		e.logg.Warn(e.logg.WithField(ctx, "product_ids", dropped), "cart.sync.dropped_lines")
	}
	if len(local) == 0 {
		items, err := e.remote.Get(ctx)
		if err != nil {
			return nil, syncError(err, uuid.Nil, 0)
		}
		if len(dropped) > 0 {
			e.cache.Purge(ctx)
		}
		// A batch id without items means the previous merge succeeded but cleanup did not finish.
		e.cache.PurgeMergeBatch(ctx)
		return items, nil
	}

	batchID, ok := e.cache.MergeBatch(ctx)
	if !ok {
		batchID = uuid.New()
		e.cache.SaveMergeBatch(ctx, batchID)
	}
	ctx = e.logg.WithBatchID(ctx, batchID.String())

	result, err := e.remote.Merge(ctx, batchID, local)
	if err != nil {
		e.logg.Warn(e.logg.WithFields(ctx, map[string]any{"pending_items": len(local), "error": err.Error()}), "cart.sync.merge_failed")
		if rejected(err) {
			// The server will refuse this batch id forever; the next attempt starts a new one.
			e.cache.PurgeMergeBatch(ctx)
		}
		return nil, syncError(err, batchID, len(local))
	}

	e.cache.Purge(ctx)
	e.cache.PurgeMergeBatch(ctx)

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"submitted": len(local),
		"dropped":   len(dropped),
		"applied":   result.Applied,
	}), "cart.sync.merged")
	return result.Items, nil
}

// mergeable splits the guest lines into those the server accepts and the refs of
// those it would reject. Oversized quantities are capped rather than dropped.
func mergeable(items []types.CartItem) ([]types.CartItem, []int64) {
	valid := make([]types.CartItem, 0, len(items))
	var dropped []int64
	for _, item := range items {
		item.Quantity = min(item.Quantity, types.MaxLineQuantity)
		if err := types.ValidateItem(item); err != nil {
			dropped = append(dropped, item.ProductRef)
			continue
		}
		valid = append(valid, item)
	}
	return valid, dropped
}

// rejected reports a permanent refusal of the batch itself, as opposed to an
// outage worth retrying under the same id.
func rejected(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeValidation) || pkgerrors.IsCode(err, pkgerrors.CodeIdempotency)
}

func syncError(cause error, batchID uuid.UUID, pending int) error {
	details := map[string]any{"pendingItems": pending}
	if batchID != uuid.Nil {
		details["batchId"] = batchID.String()
	}
	if typed := pkgerrors.As(cause); typed != nil {
		details["cause"] = string(typed.Code())
	}
	return pkgerrors.Wrap(pkgerrors.CodeSync, cause, "cart synchronization failed").WithDetails(details)
}
