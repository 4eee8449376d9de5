package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webbuilder/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis client to centralize configuration.
type Client struct {
	inner *redis.Client
}

// NewRedisClient connects and pings the server described by cfg.
func NewRedisClient(cfg config.RedisConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("redis host required")
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{inner: client}, nil
}

// Publish sends payload on channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if c == nil || c.inner == nil {
		return errors.New("redis client not initialized")
	}
	return c.inner.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription on channel.
func (c *Client) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	if c == nil || c.inner == nil {
		return nil, errors.New("redis client not initialized")
	}
	pubsub := c.inner.Subscribe(ctx, channel)
	// wait for the subscription confirmation so no publish is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return pubsub, nil
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
