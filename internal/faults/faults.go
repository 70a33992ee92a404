// Package faults wraps the resolution tiers with switchable failures and
// call counters. It is used by tests that exercise degraded backends.
package faults

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/postledger/cache"
	"xdao.co/postledger/ledger"
	"xdao.co/postledger/mirror"
	"xdao.co/postledger/model"
	"xdao.co/postledger/storage"
)

var ErrInjected = errors.New("faults: injected failure")

// Switch decides how a wrapped call misbehaves. The zero value passes
// everything through.
type Switch struct {
	fail atomic.Bool
	hang atomic.Bool
}

// Fail makes every call return ErrInjected.
func (s *Switch) Fail(on bool) { s.fail.Store(on) }

// Hang makes every call block until its context ends.
func (s *Switch) Hang(on bool) { s.hang.Store(on) }

func (s *Switch) check(ctx context.Context) error {
	if s.hang.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.fail.Load() {
		return ErrInjected
	}
	return ctx.Err()
}

type Cache struct {
	Switch
	Inner cache.Cache

	Gets, Sets, Deletes atomic.Int64
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.Gets.Add(1)
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	return c.Inner.Get(ctx, key)
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.Sets.Add(1)
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.Inner.Set(ctx, key, value, ttl)
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	c.Deletes.Add(1)
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.Inner.Delete(ctx, keys...)
}

type Mirror struct {
	Switch
	Inner mirror.Mirror

	Upserts, Gets, ByOwners atomic.Int64
}

func (m *Mirror) Upsert(ctx context.Context, it model.Item) error {
	m.Upserts.Add(1)
	if err := m.check(ctx); err != nil {
		return err
	}
	return m.Inner.Upsert(ctx, it)
}

func (m *Mirror) Get(ctx context.Context, handle string) (model.Item, error) {
	m.Gets.Add(1)
	if err := m.check(ctx); err != nil {
		return model.Item{}, err
	}
	return m.Inner.Get(ctx, handle)
}

func (m *Mirror) ByOwner(ctx context.Context, owner string) ([]model.Item, error) {
	m.ByOwners.Add(1)
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return m.Inner.ByOwner(ctx, owner)
}

type Ledger struct {
	Switch
	Inner ledger.Ledger

	Appends, Queries atomic.Int64
}

func (l *Ledger) Append(ctx context.Context, owner, handle string) (model.Receipt, error) {
	l.Appends.Add(1)
	if err := l.check(ctx); err != nil {
		return model.Receipt{}, err
	}
	return l.Inner.Append(ctx, owner, handle)
}

func (l *Ledger) Query(ctx context.Context, owner string) ([]model.IndexEntry, error) {
	l.Queries.Add(1)
	if err := l.check(ctx); err != nil {
		return nil, err
	}
	return l.Inner.Query(ctx, owner)
}

type CAS struct {
	Switch
	Inner storage.CAS

	Puts, Gets atomic.Int64
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	c.Puts.Add(1)
	if err := c.check(ctx); err != nil {
		return cid.Undef, err
	}
	return c.Inner.Put(ctx, data)
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	c.Gets.Add(1)
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	return c.Inner.Get(ctx, id)
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if c.check(ctx) != nil {
		return false
	}
	return c.Inner.Has(ctx, id)
}

var (
	_ cache.Cache   = (*Cache)(nil)
	_ mirror.Mirror = (*Mirror)(nil)
	_ ledger.Ledger = (*Ledger)(nil)
	_ storage.CAS   = (*CAS)(nil)
)
