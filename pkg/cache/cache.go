package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "payment-id:"

// Client is a lookaside cache mapping correlation ids to payment ids. Misses
// and errors both fall through to the store; Postgres stays the source of
// truth for uniqueness.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr string, ttl time.Duration) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	return &Client{rdb: rdb, ttl: ttl}
}

// GetPaymentID returns the cached payment id for a correlation id, if any.
func (c *Client) GetPaymentID(ctx context.Context, correlationID string) (string, bool) {
	value, err := c.rdb.Get(ctx, keyPrefix+correlationID).Result()
	if err != nil {
		return "", false
	}
	return value, true
}

// SetPaymentID records the mapping; failures are ignored, the cache is
// best-effort.
func (c *Client) SetPaymentID(ctx context.Context, correlationID, paymentID string) {
	c.rdb.Set(ctx, keyPrefix+correlationID, paymentID, c.ttl)
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
