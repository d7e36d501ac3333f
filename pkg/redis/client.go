package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giftshop/cartsync/pkg/config"
	"github.com/giftshop/cartsync/pkg/logger"
	"github.com/redis/go-redis/v9"
)

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	ExpireNX(context.Context, string, time.Duration) *redis.BoolCmd
	Exists(context.Context, ...string) *redis.IntCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client holds the cart API's redis-backed guards: rate-limit windows,
// idempotency records and live access sessions.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// RateLimiter is the narrow surface the cart throttling middleware depends on.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// IdempotencyStore keeps one record per (scope, key). Reserve claims the key
// before the handler runs; Save replaces the claim with the final response.
type IdempotencyStore interface {
	Reserve(ctx context.Context, scope, key, claim string, ttl time.Duration) (bool, error)
	Load(ctx context.Context, scope, key string) (string, bool, error)
	Save(ctx context.Context, scope, key, record string, ttl time.Duration) error
	Release(ctx context.Context, scope, key string) error
}

// SessionStore tracks access token ids until they expire or are revoked.
type SessionStore interface {
	TrackSession(ctx context.Context, accessID string, ttl time.Duration) error
	SessionActive(ctx context.Context, accessID string) (bool, error)
	RevokeSession(ctx context.Context, accessID string) error
}

// New dials redis and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_addr", opts.Addr), "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

// optionsFromConfig applies pool and timeout settings on top of the URL, or
// builds options from the discrete address fields when no URL is set.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		if parsed.DB == 0 {
			parsed.DB = cfg.DB
		}
		opts = parsed
	}
	if opts.Addr == "" {
		return nil, errors.New("redis url or address is required")
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	return opts, nil
}

// FixedWindowAllow counts a hit in the current window for scope. The expiry
// is set with NX on every hit so a counter whose first EXPIRE failed still
// ages out on the next request.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c.store == nil {
		return false, 0, errNotInitialized
	}
	key := rateLimitKey(scope)
	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if window > 0 {
		if err := c.store.ExpireNX(ctx, key, window).Err(); err != nil {
			return false, count, err
		}
	}
	return count <= limit, count, nil
}

func (c *Client) Reserve(ctx context.Context, scope, key, claim string, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	return c.store.SetNX(ctx, idempotencyKey(scope, key), claim, ttl).Result()
}

// Load returns the stored record; found is false when the key is unknown or expired.
func (c *Client) Load(ctx context.Context, scope, key string) (string, bool, error) {
	if c.store == nil {
		return "", false, errNotInitialized
	}
	val, err := c.store.Get(ctx, idempotencyKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *Client) Save(ctx context.Context, scope, key, record string, ttl time.Duration) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Set(ctx, idempotencyKey(scope, key), record, ttl).Err()
}

func (c *Client) Release(ctx context.Context, scope, key string) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Del(ctx, idempotencyKey(scope, key)).Err()
}

func (c *Client) TrackSession(ctx context.Context, accessID string, ttl time.Duration) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Set(ctx, accessSessionKey(accessID), "1", ttl).Err()
}

func (c *Client) SessionActive(ctx context.Context, accessID string) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	n, err := c.store.Exists(ctx, accessSessionKey(accessID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Client) RevokeSession(ctx context.Context, accessID string) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Del(ctx, accessSessionKey(accessID)).Err()
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
