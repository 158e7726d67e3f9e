// Package store implements the off-chain read model on PostgreSQL.
//
// Every write is a keyed upsert on the entity's natural key (PDA, request
// id, baskt id) so that redelivered events and concurrent handlers converge
// instead of duplicating rows. Mirrors of on-chain aggregates (pool, baskt
// asset configs) are overwritten wholesale from the ledger, never patched
// incrementally.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return db, nil
}

// ErrNotFound is returned by point lookups when no row matches the key.
var ErrNotFound = fmt.Errorf("store: not found")
