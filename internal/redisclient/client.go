package redisclient

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/invalidate_paid_order.lua
var invalidatePaidOrderScript string

const lockPollInterval = 50 * time.Millisecond

// ErrLockTimeout is returned when a lock could not be acquired within the wait budget
var ErrLockTimeout = errors.New("timed out waiting for lock")

type Client struct {
	rdb            *redis.Client
	releaseScript       *redis.Script
	invalidatePaidOrder *redis.Script
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

	return &Client{
		rdb:                 rdb,
		releaseScript:       redis.NewScript(releaseLockScript),
		invalidatePaidOrder: redis.NewScript(invalidatePaidOrderScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireLock tries once to take a lock. The returned token must be passed
// to ReleaseLock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token, err := newToken()
	if err != nil {
		return "", false, err
	}

	ok, err := c.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock failed: %w", err)
	}
	return token, ok, nil
}

// ReleaseLock releases a lock only if it is still held by token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey}, token).Result(); err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// LockOrder blocks until the per-order lock is held or wait elapses
func (c *Client) LockOrder(ctx context.Context, orderID string, ttl, wait time.Duration) (func(), error) {
	key := fmt.Sprintf("lock:order:%s", orderID)
	deadline := time.Now().Add(wait)

	for {
		token, ok, err := c.AcquireLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = c.ReleaseLock(releaseCtx, key, token)
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// InitStock loads per-variant stock totals into Redis
func (c *Client) InitStock(ctx context.Context, totals map[string]int) error {
	if len(totals) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for variantID, total := range totals {
		pipe.Set(ctx, stockKey(variantID), total, 0)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// GetStockTotal returns the cached total for a variant; ok is false on a cache miss
func (c *Client) GetStockTotal(ctx context.Context, variantID string) (total int, ok bool, err error) {
	val, err := c.rdb.Get(ctx, stockKey(variantID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	total, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("invalid cached stock for variant %s: %w", variantID, err)
	}
	return total, true, nil
}

// SetStockTotal caches the total for a variant
func (c *Client) SetStockTotal(ctx context.Context, variantID string, total int) error {
	return c.rdb.Set(ctx, stockKey(variantID), total, 0).Err()
}

// InvalidatePaidOrder drops the cached totals of every variant in a paid
// order so the next read reloads them from the database. It runs once per
// event id and returns false when the event was already handled.
func (c *Client) InvalidatePaidOrder(ctx context.Context, eventID string, items []models.OrderItemData, markerTTL time.Duration) (bool, error) {
	keys := make([]string, 0, len(items)+1)
	keys = append(keys, fmt.Sprintf("idempotency:stock:%s", eventID))
	for _, item := range items {
		keys = append(keys, stockKey(item.VariantID))
	}

	result, err := c.invalidatePaidOrder.Run(ctx, c.rdb, keys, int(markerTTL.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("invalidate paid order script failed: %w", err)
	}

	applied, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return applied == 1, nil
}

func stockKey(variantID string) string {
	return fmt.Sprintf("stock:%s", variantID)
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
