// Package sqlite provides a durable memory.Backend on top of the cgo-free
// modernc.org/sqlite driver.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/botmesh/logging"
	"github.com/hupe1980/botmesh/memory"
)

const schema = `CREATE TABLE IF NOT EXISTS botmesh_kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// Options configures the backend.
type Options struct {
	Logger logging.Logger
}

// Backend stores contexts in a SQLite table.
type Backend struct {
	db     *sql.DB
	logger logging.Logger
}

var _ memory.Backend = (*Backend)(nil)

// Open opens (or creates) the database at dsn, e.g. a file path or
// "file::memory:?cache=shared".
func Open(ctx context.Context, dsn string, optFns ...func(o *Options)) (*Backend, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Backend{db: db, logger: opts.Logger}, nil
}

// Get implements memory.Backend.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM botmesh_kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// Put implements memory.Backend.
func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	b.logger.Debug("SQLite put", "key", key)
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO botmesh_kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Delete implements memory.Backend.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.logger.Debug("SQLite delete", "key", key)
	_, err := b.db.ExecContext(ctx, `DELETE FROM botmesh_kv WHERE key = ?`, key)
	return err
}

// CompareAndSwap implements memory.Backend inside one transaction.
func (b *Backend) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var cur []byte
	err = tx.QueryRowContext(ctx, `SELECT value FROM botmesh_kv WHERE key = ?`, key).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if old != nil {
			return false, nil
		}
	case err != nil:
		return false, err
	default:
		if old == nil || !bytes.Equal(cur, old) {
			return false, nil
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO botmesh_kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// CompareAndDelete implements memory.Backend as a single conditional
// DELETE.
func (b *Backend) CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error) {
	b.logger.Debug("SQLite compare and delete", "key", key)
	res, err := b.db.ExecContext(ctx, `DELETE FROM botmesh_kv WHERE key = ? AND value = ?`, key, old)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close implements memory.Backend.
func (b *Backend) Close() error {
	return b.db.Close()
}
