package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xdao.co/postledger/cache"
	"xdao.co/postledger/cidutil"
	"xdao.co/postledger/mirror"
	"xdao.co/postledger/model"
	"xdao.co/postledger/storage"
)

var errCorrupt = errors.New("resolver: body does not match handle")

// lookup is the per-handle request handed to each tier.
type lookup struct {
	owner      string
	entry      model.IndexEntry
	prefetched map[string]model.Item
}

// tier is one strategy in the ordered read path. A fetch error of any kind
// is a miss; the pipeline moves on to the next tier.
type tier interface {
	name() string
	timeout() time.Duration
	fetch(ctx context.Context, lk *lookup) (model.Item, error)
	// repair writes back an item found by a later tier.
	repair(ctx context.Context, it model.Item) error
}

// verifyBody rejects a tier copy whose bytes do not hash to the handle.
func verifyBody(handle string, it model.Item) error {
	if it.Unavailable || len(it.Body) == 0 {
		return fmt.Errorf("%w: %s has no body", errCorrupt, handle)
	}
	id, err := cidutil.ParseHandle(handle)
	if err != nil {
		return err
	}
	if !cidutil.Verify(id, it.Body) {
		return fmt.Errorf("%w: %s", errCorrupt, handle)
	}
	return nil
}

type cacheTier struct {
	c   cache.Cache
	ttl time.Duration
	d   time.Duration
}

func (t *cacheTier) name() string            { return "cache" }
func (t *cacheTier) timeout() time.Duration { return t.d }

func (t *cacheTier) fetch(ctx context.Context, lk *lookup) (model.Item, error) {
	b, err := t.c.Get(ctx, cache.PostKey(lk.entry.Handle))
	if err != nil {
		return model.Item{}, err
	}
	it, err := cache.DecodeItem(b)
	if err != nil {
		return model.Item{}, err
	}
	if err := verifyBody(lk.entry.Handle, it); err != nil {
		return model.Item{}, err
	}
	return it, nil
}

func (t *cacheTier) repair(ctx context.Context, it model.Item) error {
	b, err := cache.EncodeItem(it)
	if err != nil {
		return err
	}
	return t.c.Set(ctx, cache.PostKey(it.Handle), b, t.ttl)
}

type mirrorTier struct {
	m mirror.Mirror
	d time.Duration
}

func (t *mirrorTier) name() string            { return "mirror" }
func (t *mirrorTier) timeout() time.Duration { return t.d }

func (t *mirrorTier) fetch(ctx context.Context, lk *lookup) (model.Item, error) {
	h := lk.entry.Handle
	if it, ok := lk.prefetched[h]; ok {
		if err := verifyBody(h, it); err == nil {
			return it, nil
		}
	}
	it, err := t.m.Get(ctx, h)
	if err != nil {
		return model.Item{}, err
	}
	if err := verifyBody(h, it); err != nil {
		return model.Item{}, err
	}
	return it, nil
}

func (t *mirrorTier) repair(ctx context.Context, it model.Item) error {
	return t.m.Upsert(ctx, it)
}

// storeTier reads from the content-addressed store, the source of truth for
// bytes. It is always last and never repaired.
type storeTier struct {
	cas storage.CAS
	d   time.Duration
}

func (t *storeTier) name() string            { return "store" }
func (t *storeTier) timeout() time.Duration { return t.d }

func (t *storeTier) fetch(ctx context.Context, lk *lookup) (model.Item, error) {
	id, err := cidutil.ParseHandle(lk.entry.Handle)
	if err != nil {
		return model.Item{}, err
	}
	b, err := t.cas.Get(ctx, id)
	if err != nil {
		return model.Item{}, err
	}
	if !cidutil.Verify(id, b) {
		return model.Item{}, storage.ErrCIDMismatch
	}
	return model.Item{Handle: lk.entry.Handle, Body: b}, nil
}

func (t *storeTier) repair(context.Context, model.Item) error { return nil }
