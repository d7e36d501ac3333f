package types

import "github.com/shopspring/decimal"

// ProductSnapshot is the product data captured when a product first enters a cart.
// Later catalog changes do not rewrite it.
type ProductSnapshot struct {
	NameEn        string
	NameAr        string
	Price         decimal.Decimal
	ImageURL      string
	CategoryID    string
	OccasionID    string
	IsBestSeller  bool
	IsSpecialGift bool
}

// CartItem is one line of a cart. ProductRef is unique within a cart.
type CartItem struct {
	ProductRef int64
	Snapshot   ProductSnapshot
	Quantity   int
}

// LineTotal is price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Snapshot.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartSummary is the aggregate pair returned by every mutation.
type CartSummary struct {
	Total decimal.Decimal
	Count int
}

// CartCount sums quantities.
func CartCount(items []CartItem) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

// CartTotal sums price * quantity over all items.
func CartTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Summarize computes both aggregates.
func Summarize(items []CartItem) CartSummary {
	return CartSummary{Total: CartTotal(items), Count: CartCount(items)}
}

// FindItem returns the index of ref in items or -1.
func FindItem(items []CartItem, ref int64) int {
	for i, item := range items {
		if item.ProductRef == ref {
			return i
		}
	}
	return -1
}

// CloneItems copies the slice so callers cannot alias a view's backing array.
func CloneItems(items []CartItem) []CartItem {
	if items == nil {
		return []CartItem{}
	}
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}
