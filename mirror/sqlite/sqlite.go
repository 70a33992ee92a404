// Package sqlite is a durable Mirror stored in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"xdao.co/postledger/internal/sqlitedb"
	"xdao.co/postledger/keys"
	"xdao.co/postledger/mirror"
	"xdao.co/postledger/model"
)

//go:embed schema.sql
var schemaSQL string

type Mirror struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the mirror database at path, creating tables if needed.
func Open(ctx context.Context, path string) (*Mirror, error) {
	db, err := sqlitedb.Open(ctx, path, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}
	return &Mirror{db: db, now: time.Now}, nil
}

func (m *Mirror) Close() error {
	return m.db.Close()
}

func (m *Mirror) Upsert(ctx context.Context, it model.Item) error {
	if err := mirror.CheckItem(it); err != nil {
		return err
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO mirror_items (handle, owner, body, created_at, tx_ref, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			owner = excluded.owner,
			body = excluded.body,
			created_at = excluded.created_at,
			tx_ref = CASE WHEN excluded.tx_ref = '' THEN mirror_items.tx_ref ELSE excluded.tx_ref END,
			updated_at = excluded.updated_at
	`, it.Handle, keys.NormalizeAddress(it.Owner), []byte(it.Body), it.CreatedAt.UnixNano(), it.TxRef, m.now().UnixNano())
	if err != nil {
		return fmt.Errorf("mirror: upsert %s: %w", it.Handle, err)
	}
	return nil
}

func (m *Mirror) Get(ctx context.Context, handle string) (model.Item, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT handle, owner, body, created_at, tx_ref
		FROM mirror_items
		WHERE handle = ?
	`, handle)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Item{}, mirror.ErrNotFound
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("mirror: get %s: %w", handle, err)
	}
	return it, nil
}

func (m *Mirror) ByOwner(ctx context.Context, owner string) ([]model.Item, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT handle, owner, body, created_at, tx_ref
		FROM mirror_items
		WHERE owner = ?
		ORDER BY created_at, handle
	`, keys.NormalizeAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("mirror: by owner: %w", err)
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("mirror: by owner: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (model.Item, error) {
	var (
		it        model.Item
		body      []byte
		createdAt int64
	)
	if err := s.Scan(&it.Handle, &it.Owner, &body, &createdAt, &it.TxRef); err != nil {
		return model.Item{}, err
	}
	it.Body = json.RawMessage(body)
	it.CreatedAt = time.Unix(0, createdAt).UTC()
	return it, nil
}
