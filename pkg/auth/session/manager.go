package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/giftshop/cartsync/pkg/config"
	"github.com/giftshop/cartsync/pkg/redis"
	"github.com/google/uuid"
)

// Manager tracks which access tokens are still live so logout can revoke them early.
type Manager struct {
	store redis.SessionStore
	ttl   time.Duration
}

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// NewManager keeps sessions alive for as long as the issued tokens.
func NewManager(store redis.SessionStore, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	ttl := cfg.TTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

func (m *Manager) Track(ctx context.Context, accessID string) error {
	id, err := normalizeID(accessID)
	if err != nil {
		return err
	}
	return m.store.TrackSession(ctx, id, m.ttl)
}

func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	id, err := normalizeID(accessID)
	if err != nil {
		return err
	}
	return m.store.RevokeSession(ctx, id)
}

// HasSession reports whether the access id was tracked and not yet revoked or expired.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	id, err := normalizeID(accessID)
	if err != nil {
		return false, err
	}
	return m.store.SessionActive(ctx, id)
}

// NewAccessID produces the identifier used as the JWT jti and session key.
func NewAccessID() string {
	return uuid.NewString()
}

func normalizeID(accessID string) (string, error) {
	id := strings.TrimSpace(accessID)
	if id == "" {
		return "", fmt.Errorf("access id is required")
	}
	return id, nil
}
