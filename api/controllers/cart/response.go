package cart

import (
	cartdto "github.com/giftshop/cartsync/api/controllers/cart/dto"
	cartsvc "github.com/giftshop/cartsync/internal/cart"
)

func newCartResponse(c *cartsvc.Cart) cartdto.CartResponse {
	if c == nil {
		return cartdto.NewCartResponse(nil)
	}
	return cartdto.NewCartResponse(c.Items)
}

func newMergeResponse(result *cartsvc.MergeResult) cartdto.MergeResponse {
	if result == nil {
		return cartdto.MergeResponse{CartResponse: cartdto.NewCartResponse(nil)}
	}
	return cartdto.MergeResponse{
		CartResponse: newCartResponse(result.Cart),
		Applied:      result.Applied,
	}
}
