package dto

import (
	"github.com/giftshop/cartsync/pkg/types"
	"github.com/shopspring/decimal"
)

// ProductData is the product snapshot a storefront sends when adding to a cart.
// Quantity is tolerated because storefronts often post their whole cart line.
type ProductData struct {
	ID            int64    `json:"id" validate:"required,gt=0"`
	NameEn        string   `json:"nameEn" validate:"required,max=200"`
	NameAr        string   `json:"nameAr" validate:"required,max=200"`
	Price         *float64 `json:"price" validate:"required,gte=0"`
	ImageURL      string   `json:"imageUrl" validate:"required,max=2048"`
	CategoryID    string   `json:"categoryId,omitempty" validate:"max=64"`
	OccasionID    string   `json:"occasionId,omitempty" validate:"max=64"`
	IsBestSeller  bool     `json:"isBestSeller,omitempty"`
	IsSpecialGift bool     `json:"isSpecialGift,omitempty"`
	Quantity      *int     `json:"quantity,omitempty"`
}

// Snapshot converts the wire product into the stored snapshot. Prices are kept to cents.
func (p ProductData) Snapshot() types.ProductSnapshot {
	price := decimal.Zero
	if p.Price != nil {
		price = decimal.NewFromFloat(*p.Price).Round(2)
	}
	return types.ProductSnapshot{
		NameEn:        p.NameEn,
		NameAr:        p.NameAr,
		Price:         price,
		ImageURL:      p.ImageURL,
		CategoryID:    p.CategoryID,
		OccasionID:    p.OccasionID,
		IsBestSeller:  p.IsBestSeller,
		IsSpecialGift: p.IsSpecialGift,
	}
}

// ProductDataFrom builds the wire product from a cart line.
func ProductDataFrom(item types.CartItem) ProductData {
	price := item.Snapshot.Price.InexactFloat64()
	return ProductData{
		ID:            item.ProductRef,
		NameEn:        item.Snapshot.NameEn,
		NameAr:        item.Snapshot.NameAr,
		Price:         &price,
		ImageURL:      item.Snapshot.ImageURL,
		CategoryID:    item.Snapshot.CategoryID,
		OccasionID:    item.Snapshot.OccasionID,
		IsBestSeller:  item.Snapshot.IsBestSeller,
		IsSpecialGift: item.Snapshot.IsSpecialGift,
	}
}

// AddRequest is the body of POST /cart/add. A missing quantity means one.
type AddRequest struct {
	ProductData ProductData `json:"productData"`
	Quantity    *int        `json:"quantity" validate:"omitempty,gte=1,lte=999"`
}

// QuantityOrDefault returns the requested quantity, defaulting to 1.
func (r AddRequest) QuantityOrDefault() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

// UpdateRequest is the body of PUT /cart/update/{productId}.
type UpdateRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=1,lte=999"`
}

// MergeLine is one guest cart line submitted on login. Oversized quantities are
// capped by the service rather than rejected so a stale guest cart cannot block login.
type MergeLine struct {
	ProductData ProductData `json:"productData"`
	Quantity    int         `json:"quantity" validate:"gte=1"`
}

// MergeRequest is the body of POST /cart/merge.
type MergeRequest struct {
	BatchID string      `json:"batchId" validate:"required,uuid"`
	Items   []MergeLine `json:"items" validate:"max=500,dive"`
}

// Item is a cart line as exposed to storefronts.
type Item struct {
	ID            int64   `json:"id"`
	NameEn        string  `json:"nameEn"`
	NameAr        string  `json:"nameAr"`
	Price         float64 `json:"price"`
	ImageURL      string  `json:"imageUrl"`
	CategoryID    string  `json:"categoryId,omitempty"`
	OccasionID    string  `json:"occasionId,omitempty"`
	IsBestSeller  bool    `json:"isBestSeller"`
	IsSpecialGift bool    `json:"isSpecialGift"`
	Quantity      int     `json:"quantity"`
}

// ToDomain converts the wire item back into a cart line.
func (i Item) ToDomain() types.CartItem {
	return types.CartItem{
		ProductRef: i.ID,
		Snapshot: types.ProductSnapshot{
			NameEn:        i.NameEn,
			NameAr:        i.NameAr,
			Price:         decimal.NewFromFloat(i.Price).Round(2),
			ImageURL:      i.ImageURL,
			CategoryID:    i.CategoryID,
			OccasionID:    i.OccasionID,
			IsBestSeller:  i.IsBestSeller,
			IsSpecialGift: i.IsSpecialGift,
		},
		Quantity: i.Quantity,
	}
}

// CartResponse is returned by reads and by every mutation so clients can replace
// their view with the server state.
type CartResponse struct {
	Cart      []Item  `json:"cart"`
	CartTotal float64 `json:"cartTotal"`
	CartCount int     `json:"cartCount"`
}

// MergeResponse adds how many guest lines the merge applied.
type MergeResponse struct {
	CartResponse
	Applied int `json:"applied"`
}

// CountResponse is returned by GET /cart/count.
type CountResponse struct {
	Count int `json:"count"`
}

// NewCartResponse renders items with their derived aggregates.
func NewCartResponse(items []types.CartItem) CartResponse {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = append(out, Item{
			ID:            item.ProductRef,
			NameEn:        item.Snapshot.NameEn,
			NameAr:        item.Snapshot.NameAr,
			Price:         item.Snapshot.Price.InexactFloat64(),
			ImageURL:      item.Snapshot.ImageURL,
			CategoryID:    item.Snapshot.CategoryID,
			OccasionID:    item.Snapshot.OccasionID,
			IsBestSeller:  item.Snapshot.IsBestSeller,
			IsSpecialGift: item.Snapshot.IsSpecialGift,
			Quantity:      item.Quantity,
		})
	}
	summary := types.Summarize(items)
	return CartResponse{
		Cart:      out,
		CartTotal: summary.Total.Round(2).InexactFloat64(),
		CartCount: summary.Count,
	}
}

// Items converts the response back into cart lines.
func (r CartResponse) Items() []types.CartItem {
	items := make([]types.CartItem, 0, len(r.Cart))
	for _, item := range r.Cart {
		items = append(items, item.ToDomain())
	}
	return items
}
