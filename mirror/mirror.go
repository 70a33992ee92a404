// Package mirror is the durable, query-capable copy of committed items. It
// sits between the cache and the content store on the read path.
//
// Contract:
//   - Upsert is keyed by handle. Body, owner and creation time are replaced;
//     an existing TxRef is kept when the new item carries none.
//   - Placeholders (Item.Unavailable) and items without handle or body are
//     rejected with ErrInvalidItem. The mirror only ever holds real bytes.
//   - Get returns ErrNotFound for unknown handles.
//   - ByOwner matches owners case-insensitively and orders by CreatedAt
//     (ties by handle). It may return handles the ledger does not list for
//     this owner; the resolver filters against the ledger index.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"xdao.co/postledger/model"
)

var (
	ErrNotFound    = errors.New("mirror: not found")
	ErrInvalidItem = errors.New("mirror: invalid item")
)

type Mirror interface {
	Upsert(ctx context.Context, it model.Item) error
	Get(ctx context.Context, handle string) (model.Item, error)
	ByOwner(ctx context.Context, owner string) ([]model.Item, error)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// CheckItem applies the Upsert preconditions shared by every backend.
func CheckItem(it model.Item) error {
	switch {
	case it.Unavailable:
		return fmt.Errorf("%w: placeholder for %s", ErrInvalidItem, it.Handle)
	case it.Handle == "":
		return fmt.Errorf("%w: missing handle", ErrInvalidItem)
	case len(it.Body) == 0:
		return fmt.Errorf("%w: missing body for %s", ErrInvalidItem, it.Handle)
	case it.Owner == "":
		return fmt.Errorf("%w: missing owner for %s", ErrInvalidItem, it.Handle)
	}
	return nil
}
