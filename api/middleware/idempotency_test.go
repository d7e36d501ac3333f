package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Reserve(_ context.Context, scope, key, claim string, _ time.Duration) (bool, error) {
	k := scope + ":" + key
	if _, ok := f.data[k]; ok {
		return false, nil
	}
	f.data[k] = claim
	return true, nil
}

func (f *fakeStore) Load(_ context.Context, scope, key string) (string, bool, error) {
	v, ok := f.data[scope+":"+key]
	return v, ok, nil
}

func (f *fakeStore) Save(_ context.Context, scope, key, record string, _ time.Duration) error {
	f.data[scope+":"+key] = record
	return nil
}

func (f *fakeStore) Release(_ context.Context, scope, key string) error {
	delete(f.data, scope+":"+key)
	return nil
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRuleSelection(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		pattern  string
		want     time.Duration
		ok       bool
		required bool
	}{
		{"merge", http.MethodPost, "/api/v1/cart/merge", mergeIdempotencyTTL, true, true},
		{"add", http.MethodPost, "/api/v1/cart/add", defaultIdempotencyTTL, true, false},
		{"clear", http.MethodDelete, "/api/v1/cart/clear", defaultIdempotencyTTL, true, false},
		{"read", http.MethodGet, "/api/v1/cart", 0, false, false},
	}

	for _, tt := range tests {
		rule, ok := matchRule(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && (rule.ttl != tt.want || rule.required != tt.required || rule.retryClientErrors != (tt.name == "merge")) {
			t.Fatalf("%s: unexpected rule %+v", tt.name, rule)
		}
	}
}

func TestRoutePatternFallsBackFromWildcard(t *testing.T) {
	req := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/*", nil)
	if got := routePattern(req); got != "/api/v1/cart/merge" {
		t.Fatalf("expected concrete path, got %s", got)
	}
}

func TestIdempotencyMiddlewareRequiresHeaderForMerge(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/merge", strings.NewReader(`{"items":[]}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareOptionalHeaderPassesThrough(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/cart/add", "/api/v1/cart/add", strings.NewReader(`{}`))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("keyless adds must reach the handler, got %d calls", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("keyless requests must not be recorded")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/merge", strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "abc")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/merge", strings.NewReader(`{"foo":"bar"}`))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected replay status 200 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if rec.Header().Get("Idempotent-Replay") != "true" {
		t.Fatalf("expected replay marker header")
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareDoesNotRecordServerErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/merge", strings.NewReader(`{"a":1}`))
		req.Header.Set("Idempotency-Key", "retry-me")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		if i == 1 && rec.Code != http.StatusOK {
			t.Fatalf("retry after a server error should run again, got %d", rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, got %d", calls)
	}
}

func TestIdempotencyMiddlewareLetsMergeRetryAfterClientError(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "bad") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	bad := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/merge", strings.NewReader(`{"items":"bad"}`))
	bad.Header.Set("Idempotency-Key", "batch-1")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}

	fixed := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/merge", strings.NewReader(`{"items":"good"}`))
	fixed.Header.Set("Idempotency-Key", "batch-1")
	rec = httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, fixed)
	if rec.Code != http.StatusOK {
		t.Fatalf("corrected merge with the same key should run, got %d", rec.Code)
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, got %d", calls)
	}
}

func TestIdempotencyMiddlewareReplaysClientErrorsOnAdd(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/cart/add", "/api/v1/cart/add", strings.NewReader(`{"quantity":0}`))
		req.Header.Set("Idempotency-Key", "add-1")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected 400 got %d", i, rec.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("expected the stored 400 to be replayed, handler ran %d times", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/merge", strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	changed := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/merge", strings.NewReader(`{"foo":"baz"}`))
	changed.Header.Set("Idempotency-Key", "xyz")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, changed)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key got %d", rec.Code)
	}
}

func TestIdempotencyMiddlewareRejectsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	var inner http.Handler
	inner = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// a duplicate arriving while the first request still runs
			dup := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/merge", strings.NewReader(`{"a":1}`))
			dup.Header.Set(IdempotencyHeader, "dup")
			rec := httptest.NewRecorder()
			mw(inner).ServeHTTP(rec, dup)
			if rec.Code != http.StatusConflict {
				t.Errorf("expected 409 for in-flight duplicate, got %d", rec.Code)
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/cart/merge", "/api/v1/cart/merge", strings.NewReader(`{"a":1}`))
	req.Header.Set(IdempotencyHeader, "dup")
	rec := httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("first request should succeed, got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("duplicate must not reach the handler, got %d calls", calls)
	}
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	for _, user := range []string{"user-a", "user-b"} {
		req := requestWithPattern(http.MethodPost, "/api/v1/cart/add", "/api/v1/cart/add", strings.NewReader(`{}`))
		req = req.WithContext(WithUserID(req.Context(), user))
		req.Header.Set(IdempotencyHeader, "same-key")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("keys must not collide across users, got %d calls", calls)
	}
}
