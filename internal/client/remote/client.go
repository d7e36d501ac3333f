// Package remote is the storefront's HTTP client for the cart API.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	cartdto "github.com/giftshop/cartsync/api/controllers/cart/dto"
	"github.com/giftshop/cartsync/pkg/config"
	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/logger"
	"github.com/giftshop/cartsync/pkg/types"
)

const (
	cartPath = "/api/v1/cart"
	authPath = "/api/v1/auth"

	defaultTimeout         = 10 * time.Second
	defaultInitialInterval = 200 * time.Millisecond
	maxErrorBody           = 64 << 10
)

// Options configures the HTTP client. Zero values fall back to sane defaults.
type Options struct {
	BaseURL         string
	HTTPClient      *http.Client
	Timeout         time.Duration
	RetryAttempts   uint
	InitialInterval time.Duration
	Logger          *logger.Logger
}

// Client calls the cart API on behalf of one signed-in user.
type Client struct {
	baseURL         *url.URL
	http            *http.Client
	attempts        uint
	initialInterval time.Duration
	logg            *logger.Logger

	mu    sync.RWMutex
	token string
}

// MergeResult is the server's post-merge cart.
type MergeResult struct {
	Items   []types.CartItem
	Applied int
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	attempts := opts.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	interval := opts.InitialInterval
	if interval <= 0 {
		interval = defaultInitialInterval
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	return &Client{
		baseURL:         base,
		http:            httpClient,
		attempts:        attempts,
		initialInterval: interval,
		logg:            logg,
	}, nil
}

// NewFromConfig builds a client from the storefront client settings.
func NewFromConfig(cfg config.ClientConfig, logg *logger.Logger) (*Client, error) {
	return New(Options{
		BaseURL:       cfg.APIBaseURL,
		Timeout:       cfg.HTTPTimeout,
		RetryAttempts: cfg.RetryAttempts,
		Logger:        logg,
	})
}

// SetToken installs the bearer token used by every call. An empty token signs out.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Get(ctx context.Context) ([]types.CartItem, error) {
	var out cartdto.CartResponse
	err := c.retry(ctx, "get", func() error {
		return c.do(ctx, http.MethodGet, cartPath, nil, "", &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Items(), nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var out cartdto.CountResponse
	err := c.retry(ctx, "count", func() error {
		return c.do(ctx, http.MethodGet, cartPath+"/count", nil, "", &out)
	})
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Add is not retried: a lost response could otherwise double the quantity.
func (c *Client) Add(ctx context.Context, item types.CartItem) ([]types.CartItem, error) {
	qty := item.Quantity
	body := cartdto.AddRequest{ProductData: cartdto.ProductDataFrom(item), Quantity: &qty}
	var out cartdto.CartResponse
	if err := c.do(ctx, http.MethodPost, cartPath+"/add", body, "", &out); err != nil {
		return nil, err
	}
	return out.Items(), nil
}

func (c *Client) UpdateQuantity(ctx context.Context, productRef int64, qty int) ([]types.CartItem, error) {
	body := cartdto.UpdateRequest{Quantity: &qty}
	var out cartdto.CartResponse
	if err := c.do(ctx, http.MethodPut, cartPath+"/update/"+strconv.FormatInt(productRef, 10), body, "", &out); err != nil {
		return nil, err
	}
	return out.Items(), nil
}

func (c *Client) Remove(ctx context.Context, productRef int64) ([]types.CartItem, error) {
	var out cartdto.CartResponse
	if err := c.do(ctx, http.MethodDelete, cartPath+"/remove/"+strconv.FormatInt(productRef, 10), nil, "", &out); err != nil {
		return nil, err
	}
	return out.Items(), nil
}

func (c *Client) Clear(ctx context.Context) ([]types.CartItem, error) {
	var out cartdto.CartResponse
	if err := c.do(ctx, http.MethodDelete, cartPath+"/clear", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Items(), nil
}

// Merge submits a guest cart. The batch id doubles as the Idempotency-Key, and the
// server records per-line receipts, so retries never double count.
func (c *Client) Merge(ctx context.Context, batchID uuid.UUID, items []types.CartItem) (*MergeResult, error) {
	if batchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id is required")
	}
	body := cartdto.MergeRequest{BatchID: batchID.String(), Items: make([]cartdto.MergeLine, 0, len(items))}
	for _, item := range items {
		body.Items = append(body.Items, cartdto.MergeLine{ProductData: cartdto.ProductDataFrom(item), Quantity: item.Quantity})
	}

	var out cartdto.MergeResponse
	err := c.retry(logBatch(ctx, c.logg, batchID), "merge", func() error {
		return c.do(ctx, http.MethodPost, cartPath+"/merge", body, batchID.String(), &out)
	})
	if err != nil {
		return nil, err
	}
	return &MergeResult{Items: out.CartResponse.Items(), Applied: out.Applied}, nil
}

// DevToken asks a dev-mode server for an access token. An empty userID gets a fresh identity.
func (c *Client) DevToken(ctx context.Context, userID string) (string, error) {
	var body any
	if userID != "" {
		body = map[string]string{"userId": userID}
	}
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.do(ctx, http.MethodPost, authPath+"/dev-token", body, "", &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "dev token missing from response")
	}
	return out.AccessToken, nil
}

// Logout revokes the server session behind the current token.
func (c *Client) Logout(ctx context.Context) error {
	if c.bearer() == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, authPath+"/logout", nil, "", nil)
}

func logBatch(ctx context.Context, logg *logger.Logger, batchID uuid.UUID) context.Context {
	return logg.WithBatchID(ctx, batchID.String())
}

// retry re-runs op with exponential backoff while the failure is retryable.
func (c *Client) retry(ctx context.Context, name string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if !pkgerrors.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.attempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logCtx := c.logg.WithFields(ctx, map[string]any{
				"operation": name,
				"retry_in":  wait.String(),
				"error":     err.Error(),
			})
			c.logg.Warn(logCtx, "cart.remote.retry")
		}),
	)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any, idempotencyKey string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart api unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	var envelope types.Envelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode cart api response")
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode cart api response")
	}
	return nil
}

// decodeError rebuilds the typed error carried by the server envelope.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if typed := envelope.Typed(); typed != nil {
			return typed
		}
	}
	return pkgerrors.New(codeForStatus(resp.StatusCode), fmt.Sprintf("cart api returned %d", resp.StatusCode))
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status >= http.StatusInternalServerError:
		return pkgerrors.CodeDependency
	default:
		return pkgerrors.CodeInternal
	}
}
