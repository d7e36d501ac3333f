package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/giftshop/cartsync/api/responses"
	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/logger"
	pkgredis "github.com/giftshop/cartsync/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	defaultIdempotencyTTL = 24 * time.Hour
	mergeIdempotencyTTL   = 7 * 24 * time.Hour
	// claims only need to outlive one handler run
	claimTTL = 2 * time.Minute
)

type idempotencyRule struct {
	method string
	path   string
	ttl    time.Duration
	// required rejects requests without a key; otherwise keyless requests pass through.
	required bool
	// retryClientErrors releases the key after a 4xx so a corrected body can reuse it.
	retryClientErrors bool
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, path: "/api/v1/cart/merge", ttl: mergeIdempotencyTTL, required: true, retryClientErrors: true},
	{method: http.MethodPost, path: "/api/v1/cart/add", ttl: defaultIdempotencyTTL},
	{method: http.MethodDelete, path: "/api/v1/cart/clear", ttl: defaultIdempotencyTTL},
}

// idempotencyRecord is either an in-flight claim (Pending) or a finished response.
type idempotencyRecord struct {
	RequestHash string          `json:"request_hash"`
	Pending     bool            `json:"pending,omitempty"`
	Status      int             `json:"status,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// cart mutations. The key is claimed before the handler runs; server errors
// release the claim so the client can retry with the same key. The merge route
// also releases on client errors, since its key lives for the whole login retry window.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if key == "" {
				if rule.required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scope := requestScope(r)
			hash := hashBody(body)
			claim, _ := json.Marshal(idempotencyRecord{RequestHash: hash, Pending: true})

			won, err := store.Reserve(ctx, scope, key, string(claim), claimTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !won {
				replayExisting(w, r, store, logg, scope, key, hash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError || (rule.retryClientErrors && status >= http.StatusBadRequest) {
				if err := store.Release(ctx, scope, key); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}

			record := idempotencyRecord{
				RequestHash: hash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
			}
			if json.Valid(capture.body.Bytes()) {
				record.Body = capture.body.Bytes()
			}
			payload, err := json.Marshal(record)
			if err == nil {
				err = store.Save(ctx, scope, key, string(payload), rule.ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "idempotency.save_failed", err)
			}
		})
	}
}

func replayExisting(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, logg *logger.Logger, scope, key, hash string) {
	ctx := r.Context()
	stored, found, err := store.Load(ctx, scope, key)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var record idempotencyRecord
	if !found || json.Unmarshal([]byte(stored), &record) != nil {
		// the claim vanished between reserve and load; let the client retry
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is being processed"))
		return
	}
	if record.RequestHash != hash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.Pending {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is being processed"))
		return
	}

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

// requestScope keeps keys from different users and routes apart.
func requestScope(r *http.Request) string {
	user := UserIDFromContext(r.Context())
	if user == "" {
		user = "anonymous"
	}
	return user + "|" + r.Method + "|" + r.URL.Path
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		// mid-routing patterns end in a wildcard; fall back to the concrete path
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func matchRule(method, pattern string) (idempotencyRule, bool) {
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.path == pattern {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
