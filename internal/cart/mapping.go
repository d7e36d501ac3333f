package cart

import (
	"github.com/giftshop/cartsync/pkg/db/models"
	"github.com/giftshop/cartsync/pkg/types"
)

func itemRow(cartID uint, input AddItemInput) *models.CartItem {
	snap := input.Snapshot
	return &models.CartItem{
		CartID:        cartID,
		ProductRef:    input.ProductRef,
		NameEn:        snap.NameEn,
		NameAr:        snap.NameAr,
		Price:         snap.Price.Round(2),
		ImageURL:      snap.ImageURL,
		CategoryID:    snap.CategoryID,
		OccasionID:    snap.OccasionID,
		IsBestSeller:  snap.IsBestSeller,
		IsSpecialGift: snap.IsSpecialGift,
		Quantity:      input.Quantity,
	}
}

func itemsToDomain(rows []models.CartItem) []types.CartItem {
	items := make([]types.CartItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, types.CartItem{
			ProductRef: row.ProductRef,
			Snapshot: types.ProductSnapshot{
				NameEn:        row.NameEn,
				NameAr:        row.NameAr,
				Price:         row.Price,
				ImageURL:      row.ImageURL,
				CategoryID:    row.CategoryID,
				OccasionID:    row.OccasionID,
				IsBestSeller:  row.IsBestSeller,
				IsSpecialGift: row.IsSpecialGift,
			},
			Quantity: row.Quantity,
		})
	}
	return items
}
