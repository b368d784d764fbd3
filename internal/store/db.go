package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps the Postgres pool backing the exam store. All repositories
// share one pool; the partial unique index on attempts relies on every
// writer going through it.
type DB struct {
	Client *sql.DB
}

// NewDB opens a pgx-backed Postgres pool sized for the exam service and
// pings it once so misconfiguration fails at startup rather than on the
// first attempt insert.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close releases the pool. Safe to call on a nil receiver so deferred
// cleanup in main does not need a guard.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
