package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
)

// MultiCAS provides deterministic, ordered fallback across multiple CAS adapters.
//
// Hydration order is the slice order in Adapters; callers MUST supply a fixed order.
// Adapters are typically retrieval endpoints for the same network (gateways, a
// local node), so a failure on one endpoint moves on to the next rather than
// aborting the read.
//
// Get makes up to Attempts passes over the adapters, sleeping Backoff between
// passes. It returns ErrNotFound only when every adapter reported not found in
// a pass; otherwise it returns ErrUnavailable wrapping the last failure.
//
// Put is defined to write only to the first adapter.
type MultiCAS struct {
	Adapters []CAS

	// Attempts is the number of passes over Adapters. Values below 1 mean 1.
	Attempts int
	// Backoff is the pause between passes.
	Backoff time.Duration
}

var _ CAS = MultiCAS{}

func (m MultiCAS) Put(ctx context.Context, bytes []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, errors.New("storage: MultiCAS has no adapters")
	}
	return m.Adapters[0].Put(ctx, bytes)
}

func (m MultiCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if len(m.Adapters) == 0 {
		return nil, errors.New("storage: MultiCAS has no adapters")
	}
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	attempts := m.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && m.Backoff > 0 {
			t := time.NewTimer(m.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		notFound := 0
		for _, cas := range m.Adapters {
			b, err := cas.Get(ctx, id)
			if err == nil {
				return b, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if IsNotFound(err) {
				notFound++
				continue
			}
			lastErr = err
		}
		if notFound == len(m.Adapters) {
			return nil, ErrNotFound
		}
	}
	if lastErr == nil {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (m MultiCAS) Has(ctx context.Context, id cid.Cid) bool {
	for _, cas := range m.Adapters {
		if cas.Has(ctx, id) {
			return true
		}
	}
	return false
}
