// Package localcache keeps the guest cart on the shopper's device.
package localcache

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giftshop/cartsync/pkg/logger"
	"github.com/giftshop/cartsync/pkg/types"
)

const (
	CartKey       = "cart"
	MergeBatchKey = "cart.merge_batch"
	SessionKey    = "session.token"
)

// Store reads and writes the guest cart. Slot failures are logged and swallowed so
// a broken cache degrades to an empty cart instead of blocking the storefront.
type Store struct {
	slot Slot
	logg *logger.Logger
}

type storedItem struct {
	ID            int64           `json:"id"`
	NameEn        string          `json:"nameEn"`
	NameAr        string          `json:"nameAr"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"imageUrl"`
	CategoryID    string          `json:"categoryId,omitempty"`
	OccasionID    string          `json:"occasionId,omitempty"`
	IsBestSeller  bool            `json:"isBestSeller,omitempty"`
	IsSpecialGift bool            `json:"isSpecialGift,omitempty"`
	Quantity      int             `json:"quantity"`
}

func NewStore(slot Slot, logg *logger.Logger) *Store {
	if logg == nil {
		logg = logger.Nop()
	}
	if slot == nil {
		slot = NewMemorySlot()
	}
	return &Store{slot: slot, logg: logg}
}

// Load returns the cached items. A missing or corrupt slot yields an empty cart.
func (s *Store) Load(ctx context.Context) []types.CartItem {
	raw, ok, err := s.slot.Read(ctx, CartKey)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "slot", CartKey), "localcache.load_failed", err)
		return []types.CartItem{}
	}
	if !ok || len(raw) == 0 {
		return []types.CartItem{}
	}

	var stored []storedItem
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"slot": CartKey, "error": err.Error()}), "localcache.corrupt_slot")
		return []types.CartItem{}
	}

	items := make([]types.CartItem, 0, len(stored))
	for _, it := range stored {
		if it.ID <= 0 || it.Quantity < 1 {
			continue
		}
		items = append(items, types.CartItem{
			ProductRef: it.ID,
			Snapshot: types.ProductSnapshot{
				NameEn:        it.NameEn,
				NameAr:        it.NameAr,
				Price:         it.Price,
				ImageURL:      it.ImageURL,
				CategoryID:    it.CategoryID,
				OccasionID:    it.OccasionID,
				IsBestSeller:  it.IsBestSeller,
				IsSpecialGift: it.IsSpecialGift,
			},
			Quantity: it.Quantity,
		})
	}
	return items
}

// Save overwrites the slot with items.
func (s *Store) Save(ctx context.Context, items []types.CartItem) {
	stored := make([]storedItem, 0, len(items))
	for _, it := range items {
		stored = append(stored, storedItem{
			ID:            it.ProductRef,
			NameEn:        it.Snapshot.NameEn,
			NameAr:        it.Snapshot.NameAr,
			Price:         it.Snapshot.Price,
			ImageURL:      it.Snapshot.ImageURL,
			CategoryID:    it.Snapshot.CategoryID,
			OccasionID:    it.Snapshot.OccasionID,
			IsBestSeller:  it.Snapshot.IsBestSeller,
			IsSpecialGift: it.Snapshot.IsSpecialGift,
			Quantity:      it.Quantity,
		})
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "slot", CartKey), "localcache.encode_failed", err)
		return
	}
	if err := s.slot.Write(ctx, CartKey, raw); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "slot", CartKey), "localcache.save_failed", err)
	}
}

// Purge removes the cached cart.
func (s *Store) Purge(ctx context.Context) {
	if err := s.slot.Delete(ctx, CartKey); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "slot", CartKey), "localcache.purge_failed", err)
	}
}

// MergeBatch returns the batch id of an unfinished login merge, if any.
func (s *Store) MergeBatch(ctx context.Context) (uuid.UUID, bool) {
	raw, ok, err := s.slot.Read(ctx, MergeBatchKey)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "slot", MergeBatchKey), "localcache.load_failed", err)
		return uuid.Nil, false
	}
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(string(raw)))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// SaveMergeBatch persists the batch id so a retried login reuses it.
func (s *Store) SaveMergeBatch(ctx context.Context, id uuid.UUID) {
	if err := s.slot.Write(ctx, MergeBatchKey, []byte(id.String())); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "slot", MergeBatchKey), "localcache.save_failed", err)
	}
}

func (s *Store) PurgeMergeBatch(ctx context.Context) {
	if err := s.slot.Delete(ctx, MergeBatchKey); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "slot", MergeBatchKey), "localcache.purge_failed", err)
	}
}

// SessionToken returns the persisted access token of a signed-in shopper.
func (s *Store) SessionToken(ctx context.Context) (string, bool) {
	raw, ok, err := s.slot.Read(ctx, SessionKey)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "slot", SessionKey), "localcache.load_failed", err)
		return "", false
	}
	token := strings.TrimSpace(string(raw))
	return token, ok && token != ""
}

func (s *Store) SaveSessionToken(ctx context.Context, token string) {
	if err := s.slot.Write(ctx, SessionKey, []byte(token)); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "slot", SessionKey), "localcache.save_failed", err)
	}
}

func (s *Store) PurgeSessionToken(ctx context.Context) {
	if err := s.slot.Delete(ctx, SessionKey); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "slot", SessionKey), "localcache.purge_failed", err)
	}
}
