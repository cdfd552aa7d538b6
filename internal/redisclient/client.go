package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
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

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// IsMessageSeen checks whether an inbound smsg message ID was already
// observed. Fast path in front of the durable processed_events table.
func (c *Client) IsMessageSeen(ctx context.Context, msgID string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("smsg:seen:%s", msgID)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// MarkMessageSeen records an inbound smsg message ID with a TTL. The durable
// record lives in the database; this entry only short-circuits redelivery.
func (c *Client) MarkMessageSeen(ctx context.Context, msgID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("smsg:seen:%s", msgID), "1", ttl).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
