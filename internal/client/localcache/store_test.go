package localcache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftshop/cartsync/pkg/types"
)

type failingSlot struct{}

func (failingSlot) Read(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk gone")
}
func (failingSlot) Write(context.Context, string, []byte) error { return errors.New("disk gone") }
func (failingSlot) Delete(context.Context, string) error        { return errors.New("disk gone") }

func sampleItems() []types.CartItem {
	return []types.CartItem{
		{
			ProductRef: 1,
			Snapshot: types.ProductSnapshot{
				NameEn:       "Rose",
				NameAr:       "وردة",
				Price:        decimal.RequireFromString("49.99"),
				ImageURL:     "https://cdn.example.com/rose.png",
				CategoryID:   "flowers",
				IsBestSeller: true,
			},
			Quantity: 2,
		},
		{
			ProductRef: 2,
			Snapshot:   types.ProductSnapshot{NameEn: "Card", NameAr: "بطاقة", Price: decimal.RequireFromString("30")},
			Quantity:   1,
		},
	}
}

func TestStoreRoundTripOnSQLiteSlot(t *testing.T) {
	slot, err := OpenSQLiteSlot(filepath.Join(t.TempDir(), "slots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = slot.Close() })

	store := NewStore(slot, nil)
	ctx := context.Background()

	assert.Empty(t, store.Load(ctx))

	store.Save(ctx, sampleItems())
	loaded := store.Load(ctx)
	require.Len(t, loaded, 2)
	assert.Equal(t, int64(1), loaded[0].ProductRef)
	assert.True(t, loaded[0].Snapshot.Price.Equal(decimal.RequireFromString("49.99")))
	assert.Equal(t, "flowers", loaded[0].Snapshot.CategoryID)
	assert.True(t, loaded[0].Snapshot.IsBestSeller)

	// Overwrite keeps a single row per key.
	store.Save(ctx, sampleItems()[:1])
	assert.Len(t, store.Load(ctx), 1)

	store.Purge(ctx)
	assert.Empty(t, store.Load(ctx))
}

func TestStoreCorruptSlotLoadsEmpty(t *testing.T) {
	slot := NewMemorySlot()
	require.NoError(t, slot.Write(context.Background(), CartKey, []byte("{not json")))

	store := NewStore(slot, nil)
	loaded := store.Load(context.Background())
	assert.NotNil(t, loaded)
	assert.Empty(t, loaded)
}

func TestStoreDropsInvalidLines(t *testing.T) {
	slot := NewMemorySlot()
	raw := `[{"id":1,"nameEn":"a","nameAr":"b","price":"10","imageUrl":"x","quantity":0},{"id":2,"nameEn":"a","nameAr":"b","price":"10","imageUrl":"x","quantity":3}]`
	require.NoError(t, slot.Write(context.Background(), CartKey, []byte(raw)))

	loaded := NewStore(slot, nil).Load(context.Background())
	require.Len(t, loaded, 1)
	assert.Equal(t, int64(2), loaded[0].ProductRef)
}

func TestStoreSwallowsSlotFailures(t *testing.T) {
	store := NewStore(failingSlot{}, nil)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		store.Save(ctx, sampleItems())
		store.Purge(ctx)
		store.SaveMergeBatch(ctx, uuid.New())
	})
	assert.Empty(t, store.Load(ctx))
	_, ok := store.MergeBatch(ctx)
	assert.False(t, ok)
}

func TestMergeBatchLifecycle(t *testing.T) {
	store := NewStore(NewMemorySlot(), nil)
	ctx := context.Background()

	_, ok := store.MergeBatch(ctx)
	assert.False(t, ok)

	id := uuid.New()
	store.SaveMergeBatch(ctx, id)
	got, ok := store.MergeBatch(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)

	store.PurgeMergeBatch(ctx)
	_, ok = store.MergeBatch(ctx)
	assert.False(t, ok)
}

func TestSessionTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemorySlot(), nil)

	_, ok := store.SessionToken(ctx)
	assert.False(t, ok)

	store.SaveSessionToken(ctx, "tok-1")
	token, ok := store.SessionToken(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)

	store.PurgeSessionToken(ctx)
	_, ok = store.SessionToken(ctx)
	assert.False(t, ok)
}
