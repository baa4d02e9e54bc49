// Package redis holds the short-lived coordination state: webhook delivery
// claims and job leases. Nothing here is authoritative; losing Redis degrades
// to duplicate work that the ledger rejects.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/clubpay-backend/pkg/config"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const keyNamespace = "cp"

// KEYS[1] lease key, ARGV[1] owner token
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errNotInitialized = errors.New("redis client not initialized")

type backend interface {
	redis.Scripter
	Ping(ctx context.Context) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ClaimStore is the surface shared by the webhook guard and the job lease.
type ClaimStore interface {
	Claim(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Keep(ctx context.Context, key, token string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
	ForgetIfOwner(ctx context.Context, key, token string) (bool, error)
}

type Client struct {
	rdb    backend
	closer func() error
}

// New dials Redis from config and pings it once.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Debug(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connected")
	}
	return &Client{rdb: rdb, closer: rdb.Close}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	// the url wins; config only fills what it left unset
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	opts.PoolSize = firstPositive(opts.PoolSize, cfg.PoolSize)
	opts.MinIdleConns = firstPositive(opts.MinIdleConns, cfg.MinIdleConns)
	opts.DialTimeout = firstPositive(opts.DialTimeout, cfg.DialTimeout)
	opts.ReadTimeout = firstPositive(opts.ReadTimeout, cfg.ReadTimeout)
	opts.WriteTimeout = firstPositive(opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func firstPositive[T int | time.Duration](current, fallback T) T {
	if current > 0 {
		return current
	}
	return fallback
}

// Claim stores token under key unless the key already exists.
func (c *Client) Claim(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, errNotInitialized
	}
	return c.rdb.SetNX(ctx, key, token, ttl).Result()
}

// Keep overwrites key with token for ttl, whoever held it before.
func (c *Client) Keep(ctx context.Context, key, token string, ttl time.Duration) error {
	if c == nil || c.rdb == nil {
		return errNotInitialized
	}
	return c.rdb.Set(ctx, key, token, ttl).Err()
}

func (c *Client) Forget(ctx context.Context, key string) error {
	if c == nil || c.rdb == nil {
		return errNotInitialized
	}
	return c.rdb.Del(ctx, key).Err()
}

// ForgetIfOwner deletes key only while it still holds token, atomically.
func (c *Client) ForgetIfOwner(ctx context.Context, key, token string) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, errNotInitialized
	}
	deleted, err := releaseIfOwner.Run(ctx, c.rdb, []string{key}, token).Int()
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return errNotInitialized
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// IdempotencyKey namespaces a processed-delivery marker, e.g.
// cp:idempotency:stripe_webhook:evt_123.
func IdempotencyKey(scope, id string) string {
	return buildKey("idempotency", scope, id)
}

// LockKey namespaces a job lease, e.g. cp:lock:reconcile.
func LockKey(name string) string {
	return buildKey("lock", name)
}

func buildKey(parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
