package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/giftshop/cartsync/pkg/config"
)

type mockStore struct {
	mu        sync.Mutex
	live      map[string]time.Duration
	failCheck error
}

func newMockStore() *mockStore {
	return &mockStore{live: make(map[string]time.Duration)}
}

func (m *mockStore) TrackSession(_ context.Context, accessID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[accessID] = ttl
	return nil
}

func (m *mockStore) SessionActive(_ context.Context, accessID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCheck != nil {
		return false, m.failCheck
	}
	_, ok := m.live[accessID]
	return ok, nil
}

func (m *mockStore) RevokeSession(_ context.Context, accessID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, accessID)
	return nil
}

func TestManagerTrackAndRevoke(t *testing.T) {
	store := newMockStore()
	manager, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 60})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ctx := context.Background()

	accessID := NewAccessID()
	if err := manager.Track(ctx, " "+accessID+" "); err != nil {
		t.Fatalf("track: %v", err)
	}
	if store.live[accessID] != time.Hour {
		t.Fatalf("expected ttl to match token lifetime, got %v", store.live[accessID])
	}

	ok, err := manager.HasSession(ctx, accessID)
	if err != nil || !ok {
		t.Fatalf("expected active session, ok=%v err=%v", ok, err)
	}

	if err := manager.Revoke(ctx, accessID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = manager.HasSession(ctx, accessID)
	if err != nil || ok {
		t.Fatalf("expected revoked session, ok=%v err=%v", ok, err)
	}
}

func TestNewManagerValidates(t *testing.T) {
	if _, err := NewManager(nil, config.JWTConfig{ExpirationMinutes: 60}); err == nil {
		t.Fatal("expected missing store error")
	}
	if _, err := NewManager(newMockStore(), config.JWTConfig{}); err == nil {
		t.Fatal("expected non-positive ttl error")
	}
}

func TestManagerRejectsEmptyAccessID(t *testing.T) {
	manager := &Manager{store: newMockStore(), ttl: time.Hour}
	ctx := context.Background()

	if err := manager.Track(ctx, " "); err == nil {
		t.Fatal("expected track error")
	}
	if err := manager.Revoke(ctx, ""); err == nil {
		t.Fatal("expected revoke error")
	}
	if _, err := manager.HasSession(ctx, ""); err == nil {
		t.Fatal("expected has session error")
	}
}

func TestHasSessionPropagatesStoreErrors(t *testing.T) {
	store := newMockStore()
	store.failCheck = errors.New("redis down")
	manager := &Manager{store: store, ttl: time.Hour}

	if _, err := manager.HasSession(context.Background(), "abc"); err == nil {
		t.Fatal("expected store error to propagate")
	}
}
