package control

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/reorgscan/internal/core/config"
)

func TestApp_SyntheticLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Parse([]byte(`
chain:
  name: devnet
reorg:
  strategy: synthetic
  initial_block_count: 5
  header_snapshot: ` + filepath.Join(dir, "headers.db") + `
store:
  kind: partitioned
  path: ` + filepath.Join(dir, "blocks") + `
  partition_size: 4
cursor:
  kind: file
  path: ` + filepath.Join(dir, "cursor") + `
scan:
  interval: 10ms
server:
  port: -1
`))
	require.NoError(t, err)

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, app.Run(ctx))

	progress := app.Scanner().Progress()
	assert.Greater(t, progress.CursorBlock, uint64(5))
	assert.NoError(t, progress.LastError)

	store, err := OpenStore(cfg.Store)
	require.NoError(t, err)
	peak, ok, err := store.PeakLastBlock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, progress.CursorBlock, peak)
}

func TestApp_RejectsBadEndpoints(t *testing.T) {
	cfg, err := config.Parse([]byte(`
rpc:
  endpoints: "https://a.example https://a.example"
cursor:
  kind: memory
server:
  port: -1
`))
	require.NoError(t, err)

	_, err = NewApp(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenCursor_Memory(t *testing.T) {
	ctx := context.Background()
	cur, closeFn, err := OpenCursor(ctx, config.CursorConfig{Kind: config.CursorMemory, Key: "test"})
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, cur.SaveState(ctx, 9))
	restored, next, err := cur.RestoreState(ctx, 1)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, uint64(10), next)
}
