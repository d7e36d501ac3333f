package facade

import (
	"context"

	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/types"
)

// backend is one place the cart can live. Every call returns the full post-mutation items.
type backend interface {
	load(ctx context.Context) ([]types.CartItem, error)
	add(ctx context.Context, item types.CartItem) ([]types.CartItem, error)
	update(ctx context.Context, ref int64, qty int) ([]types.CartItem, error)
	remove(ctx context.Context, ref int64) ([]types.CartItem, error)
	clear(ctx context.Context) ([]types.CartItem, error)
	remote() bool
}

// guestBackend edits the device-local cart. Calls are synchronous and serialized by the facade.
type guestBackend struct {
	local LocalCart
}

func (g guestBackend) remote() bool { return false }

func (g guestBackend) load(ctx context.Context) ([]types.CartItem, error) {
	return g.local.Load(ctx), nil
}

// add applies the same line rules the server enforces so a guest line is always
// mergeable on login.
func (g guestBackend) add(ctx context.Context, item types.CartItem) ([]types.CartItem, error) {
	if err := types.ValidateItem(item); err != nil {
		return nil, err
	}
	items := g.local.Load(ctx)
	if idx := types.FindItem(items, item.ProductRef); idx >= 0 {
		if items[idx].Quantity+item.Quantity > types.MaxLineQuantity {
			return nil, types.QuantityOverflow(item.ProductRef)
		}
		items[idx].Quantity += item.Quantity
	} else {
		items = append(items, item)
	}
	g.local.Save(ctx, items)
	return items, nil
}

func (g guestBackend) update(ctx context.Context, ref int64, qty int) ([]types.CartItem, error) {
	if err := types.ValidateLine(ref, qty); err != nil {
		return nil, err
	}
	items := g.local.Load(ctx)
	idx := types.FindItem(items, ref)
	if idx < 0 {
		return nil, notInCart(ref)
	}
	items[idx].Quantity = qty
	g.local.Save(ctx, items)
	return items, nil
}

func (g guestBackend) remove(ctx context.Context, ref int64) ([]types.CartItem, error) {
	items := g.local.Load(ctx)
	idx := types.FindItem(items, ref)
	if idx < 0 {
		return nil, notInCart(ref)
	}
	items = append(items[:idx], items[idx+1:]...)
	g.local.Save(ctx, items)
	return items, nil
}

func (g guestBackend) clear(ctx context.Context) ([]types.CartItem, error) {
	g.local.Save(ctx, []types.CartItem{})
	return []types.CartItem{}, nil
}

// accountBackend forwards to the remote cart. The server echo replaces the view.
type accountBackend struct {
	api RemoteCart
}

func (a accountBackend) remote() bool { return true }

func (a accountBackend) load(ctx context.Context) ([]types.CartItem, error) {
	return a.api.Get(ctx)
}

func (a accountBackend) add(ctx context.Context, item types.CartItem) ([]types.CartItem, error) {
	return a.api.Add(ctx, item)
}

func (a accountBackend) update(ctx context.Context, ref int64, qty int) ([]types.CartItem, error) {
	return a.api.UpdateQuantity(ctx, ref, qty)
}

func (a accountBackend) remove(ctx context.Context, ref int64) ([]types.CartItem, error) {
	return a.api.Remove(ctx, ref)
}

func (a accountBackend) clear(ctx context.Context) ([]types.CartItem, error) {
	return a.api.Clear(ctx)
}

func notInCart(ref int64) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not in cart").WithDetails(map[string]any{"productId": ref})
}
