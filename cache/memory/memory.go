// Package memory is an in-process cache tier backed by patrickmn/go-cache.
// It is the fallback when no shared cache is configured or reachable.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"xdao.co/postledger/cache"
)

type Cache struct {
	c *gocache.Cache
}

// New returns an empty cache whose entries default to ttl and whose expired
// entries are swept every cleanup interval.
func New(ttl, cleanup time.Duration) *Cache {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	if cleanup <= 0 {
		cleanup = ttl
	}
	return &Cache{c: gocache.New(ttl, cleanup)}
}

func (m *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := m.c.Get(key)
	if !ok {
		return nil, cache.ErrMiss
	}
	b := v.([]byte)
	return append([]byte(nil), b...), nil
}

func (m *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (m *Cache) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}

// Len reports the number of entries, including expired ones not yet swept.
func (m *Cache) Len() int {
	return m.c.ItemCount()
}
