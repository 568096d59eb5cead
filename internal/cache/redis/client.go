// Package redis implements the domain cache contracts (ticker cache, event
// bus, leader lock, rate limiter) on go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// connectTimeout bounds the initial connectivity probe so a misconfigured
// address fails fast at startup instead of hanging the wire-up.
const connectTimeout = 5 * time.Second

// ClientConfig holds connection parameters for the shared Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client is the shared connection handle the cache components hang off.
type Client struct {
	rdb *redis.Client
}

// New dials Redis and verifies connectivity before returning. Every cache
// component in this package is constructed from the one returned Client so
// they share a single pool.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		MinIdleConns: 1,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping reports whether the connection is still healthy; the readiness
// endpoint calls this.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the raw driver handle to the sibling components in
// this package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
