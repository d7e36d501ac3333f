package types

import (
	"fmt"
	"strings"

	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
)

// MaxLineQuantity caps a single cart line. It keeps quantities well inside a
// 32-bit column even after merges add guest units on top.
const MaxLineQuantity = 999

// ValidateLine checks the product reference and a quantity in [1, MaxLineQuantity].
func ValidateLine(ref int64, qty int) *pkgerrors.Error {
	if ref <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if qty > MaxLineQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be at most %d", MaxLineQuantity))
	}
	return nil
}

// ValidateSnapshot checks the fields every stored line needs for display.
func ValidateSnapshot(snap ProductSnapshot) *pkgerrors.Error {
	if strings.TrimSpace(snap.NameEn) == "" || strings.TrimSpace(snap.NameAr) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
	}
	if strings.TrimSpace(snap.ImageURL) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product image is required")
	}
	if snap.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "product price must be non-negative")
	}
	return nil
}

// ValidateItem is the check both the guest cart and the server apply before
// accepting a line, so a guest line is always mergeable later.
func ValidateItem(item CartItem) *pkgerrors.Error {
	if err := ValidateLine(item.ProductRef, item.Quantity); err != nil {
		return err
	}
	return ValidateSnapshot(item.Snapshot)
}

// QuantityOverflow reports that adding to an existing line would pass the cap.
func QuantityOverflow(ref int64) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be at most %d", MaxLineQuantity)).
		WithDetails(map[string]any{"productId": ref})
}
