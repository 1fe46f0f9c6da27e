package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/push_feed.lua
var pushFeedScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

// Client wraps Redis for the rate cache, seller order feeds and sweeper locks
type Client struct {
	rdb           *redis.Client
	pushScript    *redis.Script
	releaseScript *redis.Script
	feedLimit     int64
	feedTTL       time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(rdb), nil
}

// New wraps an existing connection
func New(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		pushScript:    redis.NewScript(pushFeedScript),
		releaseScript: redis.NewScript(releaseLockScript),
		feedLimit:     100,
		feedTTL:       30 * 24 * time.Hour,
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func rateKey(fiat, asset string) string {
	return fmt.Sprintf("rate:%s:%s", fiat, asset)
}

// GetRate returns a cached exchange rate, if present
func (c *Client) GetRate(ctx context.Context, fiat, asset string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, rateKey(fiat, asset)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetRate caches an exchange rate with TTL
func (c *Client) SetRate(ctx context.Context, fiat, asset, rate string, ttl time.Duration) error {
	return c.rdb.Set(ctx, rateKey(fiat, asset), rate, ttl).Err()
}

func feedKey(sellerID string) string {
	return fmt.Sprintf("feed:seller:%s", sellerID)
}

// PushSellerFeed atomically prepends entry to a seller's feed and trims it
// to the most recent entries
func (c *Client) PushSellerFeed(ctx context.Context, sellerID string, entry interface{}) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal feed entry: %w", err)
	}

	_, err = c.pushScript.Run(ctx, c.rdb, []string{feedKey(sellerID)},
		string(data), c.feedLimit, int64(c.feedTTL/time.Second)).Result()
	if err != nil {
		return fmt.Errorf("push feed script failed: %w", err)
	}
	return nil
}

// SellerFeed returns up to limit raw feed entries, newest first
func (c *Client) SellerFeed(ctx context.Context, sellerID string, limit int64) ([]string, error) {
	if limit <= 0 || limit > c.feedLimit {
		limit = c.feedLimit
	}
	return c.rdb.LRange(ctx, feedKey(sellerID), 0, limit-1).Result()
}

// lockKey namespaces lock names; callers pass bare names such as "abandoned-sweep"
func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

// AcquireLock acquires a distributed lock. The returned token must be passed
// to ReleaseLock; an empty token means the lock is held elsewhere.
func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseLock releases a distributed lock if it is still owned by token
func (c *Client) ReleaseLock(ctx context.Context, name, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey(name)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
