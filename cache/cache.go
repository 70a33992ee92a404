// Package cache is the fastest, least durable resolution tier: a k/v store
// with per-entry TTL holding encoded items and resolved owner lists.
//
// Contract:
//   - Get returns ErrMiss when the key is absent or expired. Any other error
//     means the backend could not answer; callers treat both as a miss.
//   - Set overwrites. A ttl <= 0 means the backend default.
//   - Delete of an absent key is not an error.
//   - Values are opaque bytes; the caller owns the encoding (see codec.go).
package cache

import (
	"context"
	"errors"
	"time"

	"xdao.co/postledger/keys"
)

var ErrMiss = errors.New("cache: miss")

// DefaultTTL is the lifetime of cache entries when nothing else is configured.
const DefaultTTL = time.Hour

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

// Key helpers: the only place cache key layouts are spelled out.

func PostKey(handle string) string { return "post:" + handle }
func PostsKey(owner string) string { return "posts:" + keys.NormalizeAddress(owner) }

// PostsGenKey holds the owner's list generation. Every commit replaces it,
// and a cached list is only served while its generation is current.
func PostsGenKey(owner string) string { return PostsKey(owner) + ":gen" }
