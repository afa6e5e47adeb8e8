package memory

import (
	"bytes"
	"context"
	"sync"
)

// Backend is a key/value store for serialised contexts and session
// entries. Get returns nil without error for missing keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// CompareAndSwap stores value only if the current value equals old. A
	// nil old requires the key to be absent.
	CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error)
	// CompareAndDelete removes key only if its current value equals old.
	CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error)
	Close() error
}

// InMemoryBackend is a volatile Backend storing values in a process local
// map. It is safe for concurrent access and best suited for tests or
// single node deployments. Values are copied on the way in and out.
type InMemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ Backend = (*InMemoryBackend)(nil)

// NewInMemoryBackend constructs an empty in-memory backend.
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{values: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (b *InMemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

// Put stores a copy of value.
func (b *InMemoryBackend) Put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = bytes.Clone(value)
	return nil
}

// Delete removes key. Missing keys are ignored.
func (b *InMemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// CompareAndSwap implements Backend.
func (b *InMemoryBackend) CompareAndSwap(_ context.Context, key string, old, value []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.values[key]
	if old == nil {
		if ok {
			return false, nil
		}
	} else if !ok || !bytes.Equal(cur, old) {
		return false, nil
	}
	b.values[key] = bytes.Clone(value)
	return true, nil
}

// CompareAndDelete implements Backend.
func (b *InMemoryBackend) CompareAndDelete(_ context.Context, key string, old []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.values[key]
	if !ok || !bytes.Equal(cur, old) {
		return false, nil
	}
	delete(b.values, key)
	return true, nil
}

// Close is a no-op.
func (b *InMemoryBackend) Close() error { return nil }

// Len returns the number of stored keys.
func (b *InMemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}
