package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cartdto "github.com/giftshop/cartsync/api/controllers/cart/dto"
	"github.com/giftshop/cartsync/api/middleware"
	cartsvc "github.com/giftshop/cartsync/internal/cart"
	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type stubCartService struct {
	cart  *cartsvc.Cart
	count int
	err   error

	lastAdd      cartsvc.AddItemInput
	lastRef      int64
	lastQuantity int
	lastMerge    cartsvc.MergeInput
	calls        int
}

func (s *stubCartService) Get(ctx context.Context, userID uuid.UUID) (*cartsvc.Cart, error) {
	s.calls++
	return s.cart, s.err
}

func (s *stubCartService) Add(ctx context.Context, userID uuid.UUID, input cartsvc.AddItemInput) (*cartsvc.Cart, error) {
	s.calls++
	s.lastAdd = input
	return s.cart, s.err
}

func (s *stubCartService) SetQuantity(ctx context.Context, userID uuid.UUID, productRef int64, qty int) (*cartsvc.Cart, error) {
	s.calls++
	s.lastRef = productRef
	s.lastQuantity = qty
	return s.cart, s.err
}

func (s *stubCartService) Remove(ctx context.Context, userID uuid.UUID, productRef int64) (*cartsvc.Cart, error) {
	s.calls++
	s.lastRef = productRef
	return s.cart, s.err
}

func (s *stubCartService) Clear(ctx context.Context, userID uuid.UUID) (*cartsvc.Cart, error) {
	s.calls++
	return s.cart, s.err
}

func (s *stubCartService) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	s.calls++
	return s.count, s.err
}

func (s *stubCartService) Merge(ctx context.Context, userID uuid.UUID, input cartsvc.MergeInput) (*cartsvc.MergeResult, error) {
	s.calls++
	s.lastMerge = input
	if s.err != nil {
		return nil, s.err
	}
	return &cartsvc.MergeResult{Cart: s.cart, Applied: len(input.Items)}, nil
}

func sampleCart(userID uuid.UUID) *cartsvc.Cart {
	return &cartsvc.Cart{
		UserID: userID,
		Items: []types.CartItem{
			{ProductRef: 1, Snapshot: types.ProductSnapshot{NameEn: "Rose", NameAr: "وردة", Price: decimal.RequireFromString("50")}, Quantity: 2},
			{ProductRef: 2, Snapshot: types.ProductSnapshot{NameEn: "Card", NameAr: "بطاقة", Price: decimal.RequireFromString("30")}, Quantity: 2},
		},
	}
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withProductID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(productIDParam, id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeCart(t *testing.T, resp *httptest.ResponseRecorder) cartdto.CartResponse {
	t.Helper()
	var envelope struct {
		Data cartdto.CartResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func TestCartFetchSuccess(t *testing.T) {
	userID := uuid.New()
	handler := CartFetch(&stubCartService{cart: sampleCart(userID)}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/cart", "", userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	data := decodeCart(t, resp)
	if data.CartTotal != 160 || data.CartCount != 4 || len(data.Cart) != 2 {
		t.Fatalf("unexpected cart response %+v", data)
	}
}

func TestCartFetchRequiresUser(t *testing.T) {
	svc := &stubCartService{}
	handler := CartFetch(svc, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not be called without a user")
	}
}

func TestCartCount(t *testing.T) {
	userID := uuid.New()
	handler := CartCount(&stubCartService{count: 7}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/cart/count", "", userID))

	var envelope struct {
		Data cartdto.CountResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Count != 7 {
		t.Fatalf("expected count 7 got %d", envelope.Data.Count)
	}
}

func TestCartAddDefaultsQuantityAndMapsSnapshot(t *testing.T) {
	userID := uuid.New()
	svc := &stubCartService{cart: sampleCart(userID)}
	handler := CartAdd(svc, nil)

	body := `{"productData":{"id":9,"nameEn":"  Teddy ","nameAr":"دب","price":45.5,"imageUrl":"https://cdn.example.com/t.png","isBestSeller":true}}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/cart/add", body, userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastAdd.ProductRef != 9 || svc.lastAdd.Quantity != 1 {
		t.Fatalf("unexpected add input %+v", svc.lastAdd)
	}
	if !svc.lastAdd.Snapshot.Price.Equal(decimal.RequireFromString("45.5")) || !svc.lastAdd.Snapshot.IsBestSeller {
		t.Fatalf("unexpected snapshot %+v", svc.lastAdd.Snapshot)
	}
	if svc.lastAdd.Snapshot.NameEn != "Teddy" {
		t.Fatalf("expected trimmed name, got %q", svc.lastAdd.Snapshot.NameEn)
	}
}

func TestCartAddRejectsMissingProductFields(t *testing.T) {
	userID := uuid.New()
	svc := &stubCartService{}
	handler := CartAdd(svc, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/cart/add", `{"productData":{"id":9},"quantity":2}`, userID))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not be called for invalid payloads")
	}
}

func TestCartRejectsQuantityPastLineCap(t *testing.T) {
	userID := uuid.New()
	svc := &stubCartService{cart: sampleCart(userID)}
	product := `{"id":9,"nameEn":"Rose","nameAr":"وردة","price":50,"imageUrl":"https://cdn.example.com/r.png"}`

	cases := []struct {
		name    string
		handler http.Handler
		req     *http.Request
	}{
		{"add", CartAdd(svc, nil), authedRequest(http.MethodPost, "/api/v1/cart/add", `{"productData":`+product+`,"quantity":1000}`, userID)},
		{"update", CartUpdate(svc, nil), withProductID(authedRequest(http.MethodPut, "/api/v1/cart/update/9", `{"quantity":2147483648}`, userID), "9")},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		tc.handler.ServeHTTP(resp, tc.req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d: %s", tc.name, resp.Code, resp.Body.String())
		}
	}
	if svc.calls != 0 {
		t.Fatal("service must not be called for oversized quantities")
	}
}

func TestCartUpdatePassesAbsoluteQuantity(t *testing.T) {
	userID := uuid.New()
	svc := &stubCartService{cart: sampleCart(userID)}
	handler := CartUpdate(svc, nil)

	req := withProductID(authedRequest(http.MethodPut, "/api/v1/cart/update/2", `{"quantity":5}`, userID), "2")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastRef != 2 || svc.lastQuantity != 5 {
		t.Fatalf("unexpected update call ref=%d qty=%d", svc.lastRef, svc.lastQuantity)
	}
}

func TestCartUpdateRejectsBadPathID(t *testing.T) {
	userID := uuid.New()
	handler := CartUpdate(&stubCartService{}, nil)

	req := withProductID(authedRequest(http.MethodPut, "/api/v1/cart/update/abc", `{"quantity":5}`, userID), "abc")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartRemoveNotFound(t *testing.T) {
	userID := uuid.New()
	handler := CartRemove(&stubCartService{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not in cart")}, nil)

	req := withProductID(authedRequest(http.MethodDelete, "/api/v1/cart/remove/3", "", userID), "3")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestCartClearReturnsEmptyCart(t *testing.T) {
	userID := uuid.New()
	handler := CartClear(&stubCartService{cart: &cartsvc.Cart{UserID: userID}}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodDelete, "/api/v1/cart/clear", "", userID))

	data := decodeCart(t, resp)
	if data.CartCount != 0 || data.CartTotal != 0 || data.Cart == nil {
		t.Fatalf("unexpected clear response %+v", data)
	}
}

func TestCartMergeMapsBatch(t *testing.T) {
	userID := uuid.New()
	batchID := uuid.New()
	svc := &stubCartService{cart: sampleCart(userID)}
	handler := CartMerge(svc, nil)

	body := `{"batchId":"` + batchID.String() + `","items":[{"productData":{"id":1,"nameEn":"Rose","nameAr":"وردة","price":50,"imageUrl":"https://cdn.example.com/r.png"},"quantity":1}]}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/cart/merge", body, userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastMerge.BatchID != batchID || len(svc.lastMerge.Items) != 1 || svc.lastMerge.Items[0].Quantity != 1 {
		t.Fatalf("unexpected merge input %+v", svc.lastMerge)
	}

	var envelope struct {
		Data cartdto.MergeResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Applied != 1 || envelope.Data.CartCount != 4 {
		t.Fatalf("unexpected merge response %+v", envelope.Data)
	}
}

func TestCartMergeRequiresBatchID(t *testing.T) {
	userID := uuid.New()
	svc := &stubCartService{}
	handler := CartMerge(svc, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/cart/merge", `{"items":[]}`, userID))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not be called without a batch id")
	}
}

func TestCartHandlersWithoutService(t *testing.T) {
	userID := uuid.New()
	resp := httptest.NewRecorder()
	CartFetch(nil, nil).ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/cart", "", userID))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
