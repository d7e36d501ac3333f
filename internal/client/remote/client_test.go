package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/giftshop/cartsync/api/routes"
	"github.com/giftshop/cartsync/internal/cart"
	pkgAuth "github.com/giftshop/cartsync/pkg/auth"
	"github.com/giftshop/cartsync/pkg/config"
	"github.com/giftshop/cartsync/pkg/db"
	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/logger"
	"github.com/giftshop/cartsync/pkg/migrate"
	"github.com/giftshop/cartsync/pkg/types"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

func newAPIServer(t *testing.T) (*httptest.Server, *config.Config) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migrate.AutoMigrateModels(conn))

	svc, err := cart.NewService(cart.NewRepository(conn), db.NewFromGorm(conn), nil)
	require.NoError(t, err)

	cfg := &config.Config{
		App: config.AppConfig{Env: config.AppEnvDev},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "cartsync", ExpirationMinutes: 30},
	}
	srv := httptest.NewServer(routes.NewRouter(cfg, logger.Nop(), stubPinger{}, nil, nil, svc, nil))
	t.Cleanup(func() {
		srv.Close()
		_ = sqlDB.Close()
	})
	return srv, cfg
}

func newSignedInClient(t *testing.T, srv *httptest.Server, cfg *config.Config) *Client {
	t.Helper()
	client, err := New(Options{BaseURL: srv.URL, RetryAttempts: 3, InitialInterval: time.Millisecond})
	require.NoError(t, err)
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New()})
	require.NoError(t, err)
	client.SetToken(token)
	return client
}

func item(ref int64, price string, qty int) types.CartItem {
	return types.CartItem{
		ProductRef: ref,
		Snapshot: types.ProductSnapshot{
			NameEn:   "Gift",
			NameAr:   "هدية",
			Price:    decimal.RequireFromString(price),
			ImageURL: "https://cdn.example.com/gift.png",
		},
		Quantity: qty,
	}
}

func TestClientAgainstAPI(t *testing.T) {
	srv, cfg := newAPIServer(t)
	client := newSignedInClient(t, srv, cfg)
	ctx := context.Background()

	items, err := client.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = client.Add(ctx, item(1, "50", 1))
	require.NoError(t, err)
	require.Len(t, items, 1)

	merged, err := client.Merge(ctx, uuid.New(), []types.CartItem{item(1, "50", 1), item(2, "30", 2)})
	require.NoError(t, err)
	summary := types.Summarize(merged.Items)
	assert.Equal(t, 4, summary.Count)
	assert.True(t, summary.Total.Equal(decimal.NewFromInt(160)))
	assert.Equal(t, 2, merged.Applied)

	items, err = client.UpdateQuantity(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, types.CartCount(items))

	items, err = client.Remove(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, types.CartCount(items))

	count, err := client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	items, err = client.Clear(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = client.Remove(ctx, 99)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestClientWithoutTokenIsUnauthorized(t *testing.T) {
	srv, _ := newAPIServer(t)
	client, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Get(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), "got %v", err)
}

func TestClientRetriesIdempotentReads(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":"DEPENDENCY_ERROR","message":"dependency unavailable"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"cart":[],"cartTotal":0,"cartCount":0}}`))
	}))
	defer srv.Close()

	client, err := New(Options{BaseURL: srv.URL, RetryAttempts: 3, InitialInterval: time.Millisecond})
	require.NoError(t, err)

	items, err := client.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.EqualValues(t, 3, hits.Load())
}

func TestClientDoesNotRetryAdd(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := New(Options{BaseURL: srv.URL, RetryAttempts: 5, InitialInterval: time.Millisecond})
	require.NoError(t, err)

	_, err = client.Add(context.Background(), item(1, "10", 1))
	require.Error(t, err)
	assert.True(t, pkgerrors.Retryable(err))
	assert.EqualValues(t, 1, hits.Load())
}

func TestClientMergeSendsBatchAsIdempotencyKey(t *testing.T) {
	batchID := uuid.New()
	var gotKey string
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotKey = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"VALIDATION_ERROR","message":"quantity must be at least 1","details":{"index":0,"productId":7}}}`))
	}))
	defer srv.Close()

	client, err := New(Options{BaseURL: srv.URL, RetryAttempts: 3, InitialInterval: time.Millisecond})
	require.NoError(t, err)

	_, err = client.Merge(context.Background(), batchID, []types.CartItem{item(7, "10", 0)})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, "quantity must be at least 1", typed.Message())
	assert.Equal(t, batchID.String(), gotKey)
	assert.EqualValues(t, 1, hits.Load(), "validation failures are permanent")
}

func TestClientUndecodableErrorFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Remove(context.Background(), 4)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestClientDevTokenAndLogout(t *testing.T) {
	srv, _ := newAPIServer(t)
	ctx := context.Background()

	client, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, client.Logout(ctx), "logout without a token is a no-op")

	token, err := client.DevToken(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	client.SetToken(token)
	items, err := client.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, client.Logout(ctx))

	_, err = client.DevToken(ctx, "not-a-uuid")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
