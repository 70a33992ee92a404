// Package sqlite is a durable single-node Ledger stored in SQLite. Insertion
// order (the AUTOINCREMENT sequence) is the confirmation order.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"xdao.co/postledger/internal/sqlitedb"
	"xdao.co/postledger/keys"
	"xdao.co/postledger/ledger"
	"xdao.co/postledger/model"
)

//go:embed schema.sql
var schemaSQL string

type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sqlitedb.Open(ctx, path, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) Append(ctx context.Context, owner, handle string) (model.Receipt, error) {
	owner, err := ledger.CheckEntry(owner, handle)
	if err != nil {
		return model.Receipt{}, err
	}
	at := l.now().UTC()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (owner, handle, tx_ref, confirmed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, handle) DO NOTHING
	`, owner, handle, ledger.TxRef(owner, handle, at), at.UnixNano()); err != nil {
		return model.Receipt{}, fmt.Errorf("ledger: append: %w", err)
	}

	var (
		r           model.Receipt
		confirmedAt int64
	)
	if err := tx.QueryRowContext(ctx, `
		SELECT tx_ref, confirmed_at
		FROM ledger_entries
		WHERE owner = ? AND handle = ?
	`, owner, handle).Scan(&r.TxRef, &confirmedAt); err != nil {
		return model.Receipt{}, fmt.Errorf("ledger: read receipt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Receipt{}, fmt.Errorf("ledger: commit: %w", err)
	}
	r.ConfirmedAt = time.Unix(0, confirmedAt).UTC()
	return r, nil
}

func (l *Ledger) Query(ctx context.Context, owner string) ([]model.IndexEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT handle, tx_ref, confirmed_at
		FROM ledger_entries
		WHERE owner = ?
		ORDER BY seq
	`, keys.NormalizeAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer rows.Close()

	var out []model.IndexEntry
	for rows.Next() {
		var (
			e  model.IndexEntry
			at int64
		)
		if err := rows.Scan(&e.Handle, &e.TxRef, &at); err != nil {
			return nil, fmt.Errorf("ledger: query: %w", err)
		}
		e.ConfirmedAt = time.Unix(0, at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
