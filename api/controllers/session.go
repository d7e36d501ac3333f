package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/giftshop/cartsync/api/middleware"
	"github.com/giftshop/cartsync/api/responses"
	"github.com/giftshop/cartsync/api/validators"
	pkgAuth "github.com/giftshop/cartsync/pkg/auth"
	"github.com/giftshop/cartsync/pkg/auth/session"
	"github.com/giftshop/cartsync/pkg/config"
	"github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/logger"
	"github.com/google/uuid"
)

type sessionTracker interface {
	Track(ctx context.Context, accessID string) error
}

type sessionRevoker interface {
	Revoke(ctx context.Context, accessID string) error
}

type devTokenRequest struct {
	UserID string `json:"userId" validate:"omitempty,uuid"`
}

type devTokenResponse struct {
	AccessToken string    `json:"accessToken"`
	UserID      string    `json:"userId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// AuthDevToken mints an access token for local storefront development.
// Identity is owned by the auth provider in every other environment.
func AuthDevToken(cfg *config.Config, tracker sessionTracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg == nil || !cfg.App.IsDev() {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeNotFound, "route not found"))
			return
		}

		var payload devTokenRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		userID := uuid.New()
		if raw := strings.TrimSpace(payload.UserID); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeValidation, err, "invalid user id"))
				return
			}
			userID = parsed
		}

		now := time.Now().UTC()
		accessID := session.NewAccessID()
		token, err := pkgAuth.MintAccessToken(cfg.JWT, now, pkgAuth.AccessTokenPayload{UserID: userID, JTI: accessID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeInternal, err, "mint token"))
			return
		}

		if tracker != nil {
			if err := tracker.Track(r.Context(), accessID); err != nil {
				responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeDependency, err, "track session"))
				return
			}
		}

		responses.WriteSuccess(w, devTokenResponse{
			AccessToken: token,
			UserID:      userID.String(),
			ExpiresAt:   now.Add(cfg.JWT.TTL()),
		})
	}
}

// AuthLogout revokes the session tied to the presented access token.
// Without a session store tokens simply expire, so logout still succeeds.
func AuthLogout(revoker sessionRevoker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessID := middleware.AccessIDFromContext(r.Context())
		if accessID == "" {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeUnauthorized, "missing session id"))
			return
		}

		if revoker != nil {
			if err := revoker.Revoke(r.Context(), accessID); err != nil {
				responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeDependency, err, "revoke session"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}
