package resolver

import (
	"time"

	"xdao.co/postledger/cache"
)

// Options bounds every remote call the pipeline makes.
//
// Zero values take the defaults below.
type Options struct {
	CacheTimeout  time.Duration
	MirrorTimeout time.Duration
	StoreTimeout  time.Duration
	LedgerTimeout time.Duration
	// RepairTimeout bounds write-backs, which run detached from the caller.
	RepairTimeout time.Duration
	// TTL of cache entries written by the pipeline.
	TTL time.Duration
	// Concurrency caps per-handle resolutions in flight for one Resolve.
	Concurrency int
}

const (
	DefaultCacheTimeout  = 250 * time.Millisecond
	DefaultMirrorTimeout = 2 * time.Second
	DefaultStoreTimeout  = 5 * time.Second
	DefaultLedgerTimeout = 5 * time.Second
	DefaultRepairTimeout = 2 * time.Second
	DefaultConcurrency   = 8
)

func (o Options) withDefaults() Options {
	if o.CacheTimeout <= 0 {
		o.CacheTimeout = DefaultCacheTimeout
	}
	if o.MirrorTimeout <= 0 {
		o.MirrorTimeout = DefaultMirrorTimeout
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	if o.LedgerTimeout <= 0 {
		o.LedgerTimeout = DefaultLedgerTimeout
	}
	if o.RepairTimeout <= 0 {
		o.RepairTimeout = DefaultRepairTimeout
	}
	if o.TTL <= 0 {
		o.TTL = cache.DefaultTTL
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}
