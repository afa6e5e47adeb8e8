package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/memory"
)

func TestBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "botmesh.sqlite")

	b, err := Open(ctx, path)
	require.NoError(t, err)

	v, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, b.Put(ctx, "k", []byte("v1")))
	require.NoError(t, b.Put(ctx, "k", []byte("v2")))
	v, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	ok, err := b.CompareAndSwap(ctx, "k", []byte("v1"), []byte("v3"))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = b.CompareAndSwap(ctx, "k", nil, []byte("v3"))
	require.NoError(t, err)
	assert.False(t, ok, "nil old requires absence")
	ok, err = b.CompareAndSwap(ctx, "k", []byte("v2"), []byte("v3"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Put(ctx, "gone", []byte("x")))
	ok, err = b.CompareAndDelete(ctx, "gone", []byte("y"))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = b.CompareAndDelete(ctx, "gone", []byte("x"))
	require.NoError(t, err)
	assert.True(t, ok)
	v, err = b.Get(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, b.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	v, err = reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v3"), v)

	require.NoError(t, reopened.Delete(ctx, "k"))
	v, err = reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBackend_WithMemory(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, filepath.Join(t.TempDir(), "botmesh.sqlite"))
	require.NoError(t, err)

	m := memory.New(b)
	defer m.Close()

	conv := core.NewContext(core.ContextOptions{SessionID: "S1"})
	require.NoError(t, m.Put(ctx, "U1", conv))
	require.NoError(t, m.CompareAndPut(ctx, "U1", conv, conv.UpdatedAt))
	assert.ErrorIs(t, m.CompareAndPut(ctx, "U1", conv, 1), memory.ErrConflict)

	_, err = m.CreateSession(ctx, "S1", "U1")
	require.NoError(t, err)
	id, err := m.GetSession(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "U1", id)
}
