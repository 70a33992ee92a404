package model

import (
	"encoding/json"
	"time"
)

// Item is one authored piece of content.
//
// Handle is a pure function of Body (see CanonicalBody and HandleOf), so two
// items with identical bodies share a handle and storage writes upsert by
// handle. Owner, CreatedAt and TxRef come from the ledger.
//
// A placeholder item has Unavailable set and no Body: the ledger knows the
// handle but no tier could produce its bytes.
type Item struct {
	Handle      string          `json:"handle" cbor:"1,keyasint"`
	Body        json.RawMessage `json:"body,omitempty" cbor:"2,keyasint,omitempty"`
	Owner       string          `json:"owner" cbor:"3,keyasint"`
	CreatedAt   time.Time       `json:"createdAt" cbor:"4,keyasint"`
	TxRef       string          `json:"ledgerTxRef,omitempty" cbor:"5,keyasint,omitempty"`
	Unavailable bool            `json:"unavailable,omitempty" cbor:"6,keyasint,omitempty"`
}

// Placeholder returns the placeholder for an index entry whose body could
// not be resolved.
func Placeholder(owner string, e IndexEntry) Item {
	return Item{
		Handle:      e.Handle,
		Owner:       owner,
		CreatedAt:   e.ConfirmedAt,
		TxRef:       e.TxRef,
		Unavailable: true,
	}
}

// IndexEntry is one element of an owner's ledger index.
type IndexEntry struct {
	Handle      string    `json:"handle"`
	ConfirmedAt time.Time `json:"confirmedAt"`
	TxRef       string    `json:"ledgerTxRef,omitempty"`
}

// Receipt confirms a ledger append.
type Receipt struct {
	TxRef       string    `json:"ledgerTxRef"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// Source tells which tier answered a list request. It is for observability
// only; correctness does not depend on it.
type Source string

const (
	// SourceCache: the resolved list came straight from the cache.
	SourceCache Source = "cache"
	// SourceMirror: the index came from the ledger and every body from the
	// cache or mirror tiers.
	SourceMirror Source = "mirror"
	// SourceLedger: at least one body needed the content store (or failed).
	SourceLedger Source = "ledger"
)
