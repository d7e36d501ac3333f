package cart

import (
	"net/http"

	cartdto "github.com/giftshop/cartsync/api/controllers/cart/dto"
	"github.com/giftshop/cartsync/api/middleware"
	"github.com/giftshop/cartsync/api/validators"
	cartsvc "github.com/giftshop/cartsync/internal/cart"
	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/logger"
	"github.com/giftshop/cartsync/pkg/types"
	"github.com/google/uuid"
)

func userIDFromContext(r *http.Request) (uuid.UUID, error) {
	if r == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

func toAddInput(payload cartdto.AddRequest) cartsvc.AddItemInput {
	return cartsvc.AddItemInput{
		ProductRef: payload.ProductData.ID,
		Snapshot:   sanitizeSnapshot(payload.ProductData.Snapshot()),
		Quantity:   payload.QuantityOrDefault(),
	}
}

func toMergeInput(payload cartdto.MergeRequest) (cartsvc.MergeInput, error) {
	batchID, err := uuid.Parse(payload.BatchID)
	if err != nil {
		return cartsvc.MergeInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid batch id")
	}
	items := make([]cartsvc.AddItemInput, 0, len(payload.Items))
	for _, line := range payload.Items {
		items = append(items, cartsvc.AddItemInput{
			ProductRef: line.ProductData.ID,
			Snapshot:   sanitizeSnapshot(line.ProductData.Snapshot()),
			Quantity:   line.Quantity,
		})
	}
	return cartsvc.MergeInput{BatchID: batchID, Items: items}, nil
}

// sanitizeSnapshot trims the free-text fields before they are frozen into a cart line.
func sanitizeSnapshot(s types.ProductSnapshot) types.ProductSnapshot {
	s.NameEn = validators.SanitizeString(s.NameEn, 200)
	s.NameAr = validators.SanitizeString(s.NameAr, 200)
	s.ImageURL = validators.SanitizeString(s.ImageURL, 2048)
	s.CategoryID = validators.SanitizeString(s.CategoryID, 64)
	s.OccasionID = validators.SanitizeString(s.OccasionID, 64)
	return s
}

func withProductRef(r *http.Request, logg *logger.Logger, productRef int64) *http.Request {
	if logg == nil {
		return r
	}
	return r.WithContext(logg.WithProductRef(r.Context(), productRef))
}
