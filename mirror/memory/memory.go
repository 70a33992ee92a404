// Package memory is an in-process Mirror for tests and single-node runs.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"xdao.co/postledger/keys"
	"xdao.co/postledger/mirror"
	"xdao.co/postledger/model"
)

type Mirror struct {
	mu    sync.RWMutex
	items map[string]model.Item
}

func New() *Mirror {
	return &Mirror{items: make(map[string]model.Item)}
}

func (m *Mirror) Upsert(ctx context.Context, it model.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := mirror.CheckItem(it); err != nil {
		return err
	}
	it = clone(it)
	it.Owner = keys.NormalizeAddress(it.Owner)

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.items[it.Handle]; ok && it.TxRef == "" {
		it.TxRef = prev.TxRef
	}
	m.items[it.Handle] = it
	return nil
}

func (m *Mirror) Get(ctx context.Context, handle string) (model.Item, error) {
	if err := ctx.Err(); err != nil {
		return model.Item{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[handle]
	if !ok {
		return model.Item{}, mirror.ErrNotFound
	}
	return clone(it), nil
}

func (m *Mirror) ByOwner(ctx context.Context, owner string) ([]model.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	owner = keys.NormalizeAddress(owner)

	m.mu.RLock()
	var out []model.Item
	for _, it := range m.items {
		if it.Owner == owner {
			out = append(out, clone(it))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Handle < out[j].Handle
	})
	return out, nil
}

func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func clone(it model.Item) model.Item {
	it.Body = append(json.RawMessage(nil), it.Body...)
	return it
}
