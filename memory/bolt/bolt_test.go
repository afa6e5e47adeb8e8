package bolt

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
	path := filepath.Join(t.TempDir(), "botmesh.db")

	b, err := Open(path)
	require.NoError(t, err)

	v, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, b.Put(ctx, "k", []byte("v1")))
	ok, err := b.CompareAndSwap(ctx, "k", []byte("v0"), []byte("v2"))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = b.CompareAndSwap(ctx, "k", []byte("v1"), []byte("v2"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = b.CompareAndSwap(ctx, "new", nil, []byte("x"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.CompareAndDelete(ctx, "new", []byte("y"))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = b.CompareAndDelete(ctx, "new", []byte("x"))
	require.NoError(t, err)
	assert.True(t, ok)
	v, err = b.Get(ctx, "new")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, b.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	v, err = reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v, "values survive a restart")

	require.NoError(t, reopened.Delete(ctx, "k"))
	v, err = reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBackend_WithMemory(t *testing.T) {
	ctx := context.Background()
	b, err := Open(filepath.Join(t.TempDir(), "botmesh.db"))
	require.NoError(t, err)

	m := memory.New(b)
	defer m.Close()

	conv := core.NewContext(core.ContextOptions{Intent: core.Intent{Name: "order"}})
	conv.Confirmed["pizza"] = "Margherita"
	require.NoError(t, m.Put(ctx, "U1", conv))

	got, err := m.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "Margherita", got.Confirmed["pizza"])
	assert.Equal(t, conv.UpdatedAt, got.UpdatedAt)
}
