// Package sqlitedb opens the embedded SQLite databases used by the durable
// mirror and ledger backends.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the database at path and applies schema.
//
// The pool is pinned to a single connection so ":memory:" databases are
// shared by every caller.
func Open(ctx context.Context, path, schema string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlitedb: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}
