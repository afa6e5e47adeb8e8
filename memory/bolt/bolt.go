// Package bolt provides a durable memory.Backend on top of bbolt. All keys
// live in a single bucket of one database file.
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hupe1980/botmesh/logging"
	"github.com/hupe1980/botmesh/memory"
)

// Options configures the backend.
type Options struct {
	Bucket  string
	Timeout time.Duration
	Logger  logging.Logger
}

// Backend stores contexts in a bbolt database.
type Backend struct {
	db     *bolt.DB
	bucket []byte
	logger logging.Logger
}

var _ memory.Backend = (*Backend)(nil)

// Open opens (or creates) the database at filename.
func Open(filename string, optFns ...func(o *Options)) (*Backend, error) {
	opts := Options{
		Bucket:  "botmesh",
		Timeout: time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := bolt.Open(filename, 0o644, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", filename, err)
	}
	b := &Backend{db: db, bucket: []byte(opts.Bucket), logger: opts.Logger}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
	}
	return b, nil
}

// Get implements memory.Backend.
func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(b.bucket).Get([]byte(key)); v != nil {
			out = bytes.Clone(v)
		}
		return nil
	})
	return out, err
}

// Put implements memory.Backend.
func (b *Backend) Put(_ context.Context, key string, value []byte) error {
	b.logger.Debug("Bolt put", "key", key)
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), value)
	})
}

// Delete implements memory.Backend.
func (b *Backend) Delete(_ context.Context, key string) error {
	b.logger.Debug("Bolt delete", "key", key)
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
}

// CompareAndSwap implements memory.Backend. bbolt serialises writers, so
// the read and the write happen in one transaction.
func (b *Backend) CompareAndSwap(_ context.Context, key string, old, value []byte) (bool, error) {
	swapped := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		cur := bk.Get([]byte(key))
		if old == nil {
			if cur != nil {
				return nil
			}
		} else if cur == nil || !bytes.Equal(cur, old) {
			return nil
		}
		swapped = true
		return bk.Put([]byte(key), value)
	})
	return swapped, err
}

// CompareAndDelete implements memory.Backend within one write transaction.
func (b *Backend) CompareAndDelete(_ context.Context, key string, old []byte) (bool, error) {
	deleted := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		cur := bk.Get([]byte(key))
		if cur == nil || !bytes.Equal(cur, old) {
			return nil
		}
		deleted = true
		return bk.Delete([]byte(key))
	})
	return deleted, err
}

// Close implements memory.Backend.
func (b *Backend) Close() error {
	return b.db.Close()
}
