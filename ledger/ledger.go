// Package ledger is the client side of the append-only owner → handle index.
// The ledger is the authority on which handles an owner has committed and
// in what order.
//
// Contract:
//   - Append records (owner, handle) and returns once confirmed. Appending a
//     pair that is already recorded is not an error: the original receipt is
//     returned and the index is unchanged.
//   - Query returns the owner's index in confirmation order, nil for an
//     owner with no entries.
//   - Owners are compared case-insensitively.
package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"xdao.co/postledger/keys"
	"xdao.co/postledger/model"
)

var ErrInvalidEntry = errors.New("ledger: invalid entry")

type Ledger interface {
	Append(ctx context.Context, owner, handle string) (model.Receipt, error)
	Query(ctx context.Context, owner string) ([]model.IndexEntry, error)
}

// CheckEntry validates an Append request and returns the normalized owner.
func CheckEntry(owner, handle string) (string, error) {
	if !keys.IsAddress(owner) {
		return "", fmt.Errorf("%w: owner %q is not an address", ErrInvalidEntry, owner)
	}
	if handle == "" {
		return "", fmt.Errorf("%w: empty handle", ErrInvalidEntry)
	}
	return keys.NormalizeAddress(owner), nil
}

// TxRef derives the transaction reference the in-tree ledgers hand out:
// keccak256(owner || 0x00 || handle || 0x00 || confirmedAt unix nanos, big
// endian), hex with 0x prefix.
func TxRef(owner, handle string, confirmedAt time.Time) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(keys.NormalizeAddress(owner)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(handle))
	_, _ = h.Write([]byte{0})
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(confirmedAt.UnixNano()))
	_, _ = h.Write(ts[:])
	return fmt.Sprintf("0x%x", h.Sum(nil))
}
