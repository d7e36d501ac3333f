package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/giftshop/cartsync/api/middleware"
	pkgAuth "github.com/giftshop/cartsync/pkg/auth"
	"github.com/giftshop/cartsync/pkg/config"
)

type stubSessions struct {
	tracked []string
	revoked []string
	err     error
}

func (s *stubSessions) Track(ctx context.Context, accessID string) error {
	s.tracked = append(s.tracked, accessID)
	return s.err
}

func (s *stubSessions) Revoke(ctx context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	return s.err
}

func devConfig(env string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: env},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "cartsync", ExpirationMinutes: 30},
	}
}

func TestAuthDevTokenMintsParsableToken(t *testing.T) {
	cfg := devConfig(config.AppEnvDev)
	sessions := &stubSessions{}
	body := `{"userId":"5f0c3e1e-6a2b-4f7e-9d59-1f6f3b9e2a10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/dev-token", strings.NewReader(body))

	resp := httptest.NewRecorder()
	AuthDevToken(cfg, sessions, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data devTokenResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(cfg.JWT, envelope.Data.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID.String() != "5f0c3e1e-6a2b-4f7e-9d59-1f6f3b9e2a10" {
		t.Fatalf("unexpected user %s", claims.UserID)
	}
	if len(sessions.tracked) != 1 || sessions.tracked[0] != claims.ID {
		t.Fatalf("expected session tracked under jti, got %v", sessions.tracked)
	}
}

func TestAuthDevTokenHiddenOutsideDev(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/dev-token", nil)
	resp := httptest.NewRecorder()
	AuthDevToken(devConfig(config.AppEnvProd), nil, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestAuthLogoutRevokesAccessID(t *testing.T) {
	sessions := &stubSessions{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req = req.WithContext(middleware.WithAccessID(req.Context(), "jti-1"))

	resp := httptest.NewRecorder()
	AuthLogout(sessions, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(sessions.revoked) != 1 || sessions.revoked[0] != "jti-1" {
		t.Fatalf("unexpected revocations %v", sessions.revoked)
	}
}

func TestAuthLogoutStoreFailure(t *testing.T) {
	sessions := &stubSessions{err: errors.New("redis down")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req = req.WithContext(middleware.WithAccessID(req.Context(), "jti-1"))

	resp := httptest.NewRecorder()
	AuthLogout(sessions, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestAuthLogoutRequiresSession(t *testing.T) {
	resp := httptest.NewRecorder()
	AuthLogout(nil, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
