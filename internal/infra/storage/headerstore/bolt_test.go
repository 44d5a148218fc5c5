package headerstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/reorgscan/internal/core/domain"
	"github.com/vietddude/reorgscan/internal/indexing/reorg"
)

var _ reorg.HeaderStore = (*BoltStore)(nil)

func TestBoltStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "headers.db")

	store, err := Open(path)
	require.NoError(t, err)

	headers, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, headers)

	// 256 sorts after 255 only with fixed-width keys
	saved := []domain.BlockHeader{
		{Number: 256, Hash: "0xb", Timestamp: 2},
		{Number: 255, Hash: "0xa", Timestamp: 1},
	}
	require.NoError(t, store.Save(ctx, saved))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	headers, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, headers, 2)
	assert.Equal(t, uint64(255), headers[0].Number)
	assert.Equal(t, "0xb", headers[1].Hash)

	// Save replaces, not merges
	require.NoError(t, store.Save(ctx, []domain.BlockHeader{{Number: 300, Hash: "0xc"}}))
	headers, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.BlockHeader{{Number: 300, Hash: "0xc"}}, headers)
}

func TestBoltStore_CanceledContext(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "headers.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Save(ctx, nil), context.Canceled)
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
