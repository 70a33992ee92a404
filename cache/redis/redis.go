// Package redis is the shared cache tier backed by a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"xdao.co/postledger/cache"
)

type Options struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	DialTimeout time.Duration
	// TTL applies when Set is called with ttl <= 0.
	TTL time.Duration
}

type Cache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// New wraps an existing client. The caller keeps ownership of rdb.
func New(rdb *goredis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Open dials Redis and checks it answers PING before returning.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis: missing address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Username:    opts.Username,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return New(rdb, opts.TTL), nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}
