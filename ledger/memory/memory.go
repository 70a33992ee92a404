// Package memory is an in-process Ledger for tests and single-node runs.
package memory

import (
	"context"
	"sync"
	"time"

	"xdao.co/postledger/keys"
	"xdao.co/postledger/ledger"
	"xdao.co/postledger/model"
)

type Ledger struct {
	mu       sync.Mutex
	now      func() time.Time
	byOwner  map[string][]model.IndexEntry
	receipts map[[2]string]model.Receipt
}

func New() *Ledger {
	return NewWithClock(time.Now)
}

// NewWithClock uses now for confirmation timestamps.
func NewWithClock(now func() time.Time) *Ledger {
	return &Ledger{
		now:      now,
		byOwner:  make(map[string][]model.IndexEntry),
		receipts: make(map[[2]string]model.Receipt),
	}
}

func (l *Ledger) Append(ctx context.Context, owner, handle string) (model.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return model.Receipt{}, err
	}
	owner, err := ledger.CheckEntry(owner, handle)
	if err != nil {
		return model.Receipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	key := [2]string{owner, handle}
	if r, ok := l.receipts[key]; ok {
		return r, nil
	}
	at := l.now().UTC()
	r := model.Receipt{TxRef: ledger.TxRef(owner, handle, at), ConfirmedAt: at}
	l.receipts[key] = r
	l.byOwner[owner] = append(l.byOwner[owner], model.IndexEntry{
		Handle:      handle,
		ConfirmedAt: at,
		TxRef:       r.TxRef,
	})
	return r, nil
}

func (l *Ledger) Query(ctx context.Context, owner string) ([]model.IndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.byOwner[keys.NormalizeAddress(owner)]
	if len(entries) == 0 {
		return nil, nil
	}
	return append([]model.IndexEntry(nil), entries...), nil
}
