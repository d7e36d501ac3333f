// Package facade is the single cart entry point for storefront UIs. It routes calls
// to the guest cache or the remote cart and keeps a view with derived aggregates.
package facade

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/logger"
	"github.com/giftshop/cartsync/pkg/types"
)

// View is what the UI renders. Count and Total are always derived from Items.
type View struct {
	Items     []types.CartItem
	CartCount int
	CartTotal decimal.Decimal
	Loading   bool
}

// Notifier surfaces user-facing messages such as toasts.
type Notifier interface {
	Success(ctx context.Context, message string)
	Error(ctx context.Context, message string)
}

// RemoteCart is the authenticated cart API.
type RemoteCart interface {
	Get(ctx context.Context) ([]types.CartItem, error)
	Add(ctx context.Context, item types.CartItem) ([]types.CartItem, error)
	UpdateQuantity(ctx context.Context, productRef int64, qty int) ([]types.CartItem, error)
	Remove(ctx context.Context, productRef int64) ([]types.CartItem, error)
	Clear(ctx context.Context) ([]types.CartItem, error)
	SetToken(token string)
}

// LocalCart is the guest cache.
type LocalCart interface {
	Load(ctx context.Context) []types.CartItem
	Save(ctx context.Context, items []types.CartItem)
	Purge(ctx context.Context)
}

// Syncer reconciles the guest cache into the remote cart after login and returns
// the post-merge items.
type Syncer interface {
	Sync(ctx context.Context) ([]types.CartItem, error)
}

type Options struct {
	Notifier Notifier
	Logger   *logger.Logger
	// PurgeLocalOnLogout discards the guest cache on logout instead of keeping it.
	PurgeLocalOnLogout bool
}

// Cart is safe for concurrent use. Remote calls run outside the lock; responses
// are applied in issue order and stale ones are dropped.
type Cart struct {
	remoteAPI     RemoteCart
	local         LocalCart
	syncer        Syncer
	notify        Notifier
	logg          *logger.Logger
	purgeOnLogout bool

	mu       sync.Mutex
	backend  backend
	items    []types.CartItem
	inflight int
	issued   uint64
	applied  uint64
}

func New(remoteAPI RemoteCart, local LocalCart, syncer Syncer, opts Options) (*Cart, error) {
	if remoteAPI == nil {
		return nil, fmt.Errorf("remote cart required")
	}
	if local == nil {
		return nil, fmt.Errorf("local cart required")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer required")
	}
	notify := opts.Notifier
	if notify == nil {
		notify = nopNotifier{}
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Cart{
		remoteAPI:     remoteAPI,
		local:         local,
		syncer:        syncer,
		notify:        notify,
		logg:          logg,
		purgeOnLogout: opts.PurgeLocalOnLogout,
		backend:       guestBackend{local: local},
		items:         []types.CartItem{},
	}, nil
}

// View returns a copy of the current view.
func (c *Cart) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Cart) viewLocked() View {
	items := types.CloneItems(c.items)
	summary := types.Summarize(items)
	return View{
		Items:     items,
		CartCount: summary.Count,
		CartTotal: summary.Total,
		Loading:   c.inflight > 0,
	}
}

// Authenticated reports whether calls go to the remote cart.
func (c *Cart) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.remote()
}

// Load refreshes the view from the active backend.
func (c *Cart) Load(ctx context.Context) (View, error) {
	return c.run(ctx, "load", "", func(ctx context.Context, b backend) ([]types.CartItem, error) {
		return b.load(ctx)
	})
}

// Add puts qty units of the product in the cart. A present product keeps its snapshot.
func (c *Cart) Add(ctx context.Context, productRef int64, snapshot types.ProductSnapshot, qty int) (View, error) {
	item := types.CartItem{ProductRef: productRef, Snapshot: snapshot, Quantity: qty}
	return c.run(ctx, "add", "Added to cart", func(ctx context.Context, b backend) ([]types.CartItem, error) {
		return b.add(ctx, item)
	})
}

// UpdateQuantity sets an absolute quantity. Zero or less removes the line.
func (c *Cart) UpdateQuantity(ctx context.Context, productRef int64, qty int) (View, error) {
	if qty <= 0 {
		return c.Remove(ctx, productRef)
	}
	return c.run(ctx, "update", "", func(ctx context.Context, b backend) ([]types.CartItem, error) {
		return b.update(ctx, productRef, qty)
	})
}

func (c *Cart) Remove(ctx context.Context, productRef int64) (View, error) {
	return c.run(ctx, "remove", "Removed from cart", func(ctx context.Context, b backend) ([]types.CartItem, error) {
		return b.remove(ctx, productRef)
	})
}

func (c *Cart) Clear(ctx context.Context) (View, error) {
	return c.run(ctx, "clear", "Cart cleared", func(ctx context.Context, b backend) ([]types.CartItem, error) {
		return b.clear(ctx)
	})
}

// Login switches to the remote cart and reconciles the guest cache into it.
// On sync failure the session stays authenticated, the view is unchanged and the
// guest cache is kept so Resync can retry.
func (c *Cart) Login(ctx context.Context, token string) (View, error) {
	c.remoteAPI.SetToken(token)

	c.mu.Lock()
	c.backend = accountBackend{api: c.remoteAPI}
	c.issued++
	c.applied = c.issued
	c.mu.Unlock()

	return c.Resync(ctx)
}

// Resume restores a session that was already merged, for example one persisted
// across process restarts, and loads the account cart without syncing.
func (c *Cart) Resume(ctx context.Context, token string) (View, error) {
	c.remoteAPI.SetToken(token)

	c.mu.Lock()
	c.backend = accountBackend{api: c.remoteAPI}
	c.issued++
	c.applied = c.issued
	c.mu.Unlock()

	return c.Load(ctx)
}

// Resync runs the synchronization engine again, for example after a failed login merge.
func (c *Cart) Resync(ctx context.Context) (View, error) {
	seq, b := c.begin()
	if !b.remote() {
		c.end(seq, nil, false)
		return c.View(), pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to sync the cart")
	}

	items, err := c.syncer.Sync(ctx)
	if err != nil {
		c.end(seq, nil, false)
		c.fail(ctx, "sync", err)
		return c.View(), err
	}
	return c.end(seq, items, true), nil
}

// Logout returns to guest mode. The view is reset to whatever the guest cache holds.
func (c *Cart) Logout(ctx context.Context) View {
	c.remoteAPI.SetToken("")
	if c.purgeOnLogout {
		c.local.Purge(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend = guestBackend{local: c.local}
	c.issued++
	c.applied = c.issued
	c.items = c.local.Load(ctx)
	return c.viewLocked()
}

type operation func(ctx context.Context, b backend) ([]types.CartItem, error)

func (c *Cart) run(ctx context.Context, name, successMsg string, op operation) (View, error) {
	c.mu.Lock()
	if !c.backend.remote() {
		// Guest edits are local and synchronous; holding the lock keeps them ordered.
		c.issued++
		items, err := op(ctx, c.backend)
		if err == nil {
			c.applied = c.issued
			c.items = types.CloneItems(items)
		}
		view := c.viewLocked()
		c.mu.Unlock()
		return c.finish(ctx, name, successMsg, view, err)
	}
	c.issued++
	c.inflight++
	seq, b := c.issued, c.backend
	c.mu.Unlock()

	items, err := op(ctx, b)
	view := c.end(seq, items, err == nil)
	return c.finish(ctx, name, successMsg, view, err)
}

func (c *Cart) finish(ctx context.Context, name, successMsg string, view View, err error) (View, error) {
	if err != nil {
		c.fail(ctx, name, err)
		return view, err
	}
	if successMsg != "" {
		c.notify.Success(ctx, successMsg)
	}
	return view, nil
}

func (c *Cart) begin() (uint64, backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	c.inflight++
	return c.issued, c.backend
}

// end applies items when the response is newer than anything already applied.
func (c *Cart) end(seq uint64, items []types.CartItem, apply bool) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if apply {
		if seq > c.applied {
			c.applied = seq
			c.items = types.CloneItems(items)
		} else {
			c.logg.Debug(c.logg.WithField(context.Background(), "seq", seq), "cart.facade.stale_response")
		}
	}
	return c.viewLocked()
}

func (c *Cart) fail(ctx context.Context, op string, err error) {
	c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"operation": op, "error": err.Error()}), "cart.facade.failed")
	c.notify.Error(ctx, userMessage(err))
}

// userMessage picks the message safe to show a shopper.
func userMessage(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeRateLimit, pkgerrors.CodeUnauthorized:
		if msg := typed.Message(); msg != "" {
			return msg
		}
	}
	return pkgerrors.MetadataFor(typed.Code()).PublicMessage
}

type nopNotifier struct{}

func (nopNotifier) Success(context.Context, string) {}
func (nopNotifier) Error(context.Context, string)   {}
