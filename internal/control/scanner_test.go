package control

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/reorgscan/internal/core/cursor"
	"github.com/vietddude/reorgscan/internal/indexing/recovery"
	"github.com/vietddude/reorgscan/internal/indexing/reorg"
	"github.com/vietddude/reorgscan/internal/infra/storage/dataset"
	"github.com/vietddude/reorgscan/internal/infra/storage/headerstore"
)

func noSleep(context.Context, time.Duration) error { return nil }

type fixture struct {
	chain   *reorg.SyntheticStrategy
	monitor *reorg.Monitor
	store   dataset.Store
	cursor  cursor.Store
	scanner *Scanner
}

func newFixture(t *testing.T, chain *reorg.SyntheticStrategy, store dataset.Store, cur cursor.Store, cfg ScannerConfig) *fixture {
	t.Helper()
	monitor := reorg.NewMonitor(chain, reorg.Config{CheckDepth: 10, MaxCycleTries: 3, Chain: "test"}, reorg.WithSleep(noSleep))
	f := &fixture{
		chain:   chain,
		monitor: monitor,
		store:   store,
		cursor:  cur,
		scanner: NewScanner(cfg, monitor, NewHeaderExporter(monitor, chain), store, cur, nil),
	}
	require.NoError(t, f.scanner.Init(context.Background()))
	return f
}

func (f *fixture) cycle(t *testing.T) (uint64, bool) {
	t.Helper()
	last, ok, err := f.scanner.Cycle(context.Background())
	require.NoError(t, err)
	return last, ok
}

func assertRowsMatchChain(t *testing.T, store dataset.Store, chain *reorg.SyntheticStrategy, want int) {
	t.Helper()
	ds, err := store.Load(0)
	require.NoError(t, err)
	require.Equal(t, want, ds.Len())
	require.NoError(t, dataset.CheckGaps(ds.Rows))

	for _, row := range ds.Rows {
		h, ok := chain.Block(row.BlockNumber)
		require.True(t, ok)
		assert.Equal(t, h.Hash, row.Values[0], "block %d", row.BlockNumber)
		assert.Equal(t, strconv.FormatUint(h.Timestamp, 10), row.Values[1])
	}
}

func TestScanner_PartitionedWithReorg(t *testing.T) {
	ctx := context.Background()
	chain := reorg.NewSyntheticStrategy()
	chain.ProduceBlocks(30)

	store := dataset.NewPartitionedStore(t.TempDir(), 10, true)
	cur := cursor.NewFileStore(filepath.Join(t.TempDir(), "cursor"))
	f := newFixture(t, chain, store, cur, ScannerConfig{Chain: "test", LoadCount: 30})
	assert.Equal(t, uint64(1), f.scanner.NextBlock())

	last, ok := f.cycle(t)
	require.True(t, ok)
	assert.Equal(t, uint64(30), last)

	chain.ProduceBlocks(5)
	last, ok = f.cycle(t)
	require.True(t, ok)
	assert.Equal(t, uint64(35), last)

	chain.ForkBlock(33)
	last, ok = f.cycle(t)
	require.True(t, ok)
	assert.Equal(t, uint64(35), last)
	assert.Equal(t, uint64(1), f.scanner.Progress().ReorgsDetected)

	assertRowsMatchChain(t, store, chain, 35)

	restored, next, err := cur.RestoreState(ctx, 0)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, uint64(36), next)

	// nothing new
	_, ok = f.cycle(t)
	assert.False(t, ok)
}

func TestScanner_FlatWithReorg(t *testing.T) {
	chain := reorg.NewSyntheticStrategy()
	chain.ProduceBlocks(20)

	store := dataset.NewFlatStore(filepath.Join(t.TempDir(), "blocks.csv"), true)
	cur := cursor.NewFileStore(filepath.Join(t.TempDir(), "cursor"))
	f := newFixture(t, chain, store, cur, ScannerConfig{Chain: "test", LoadCount: 20})

	_, ok := f.cycle(t)
	require.True(t, ok)

	chain.ForkBlock(18)
	chain.ProduceBlocks(2)
	last, ok := f.cycle(t)
	require.True(t, ok)
	assert.Equal(t, uint64(22), last)

	assertRowsMatchChain(t, store, chain, 22)
}

func TestScanner_ResumesFromCursorAndStore(t *testing.T) {
	chain := reorg.NewSyntheticStrategy()
	chain.ProduceBlocks(35)

	storeDir := t.TempDir()
	cursorPath := filepath.Join(t.TempDir(), "cursor")

	first := newFixture(t, chain, dataset.NewPartitionedStore(storeDir, 10, true), cursor.NewFileStore(cursorPath),
		ScannerConfig{Chain: "test", LoadCount: 35})
	_, ok := first.cycle(t)
	require.True(t, ok)

	// a restarted process sees the cursor and resumes after it
	second := newFixture(t, chain, dataset.NewPartitionedStore(storeDir, 10, true), cursor.NewFileStore(cursorPath),
		ScannerConfig{Chain: "test", LoadCount: 5})
	assert.Equal(t, uint64(36), second.scanner.NextBlock())

	_, ok = second.cycle(t)
	assert.False(t, ok)

	chain.ProduceBlocks(2)
	last, ok := second.cycle(t)
	require.True(t, ok)
	assert.Equal(t, uint64(37), last)
	assertRowsMatchChain(t, second.store, chain, 37)
}

func TestScanner_CursorAheadOfStoreRewinds(t *testing.T) {
	ctx := context.Background()
	chain := reorg.NewSyntheticStrategy()
	chain.ProduceBlocks(20)

	storeDir := t.TempDir()
	store := dataset.NewPartitionedStore(storeDir, 10, true)
	first := newFixture(t, chain, store, cursor.NewFileStore(filepath.Join(t.TempDir(), "a")),
		ScannerConfig{Chain: "test", LoadCount: 20})
	_, ok := first.cycle(t)
	require.True(t, ok)

	ahead := cursor.NewFileStore(filepath.Join(t.TempDir(), "b"))
	require.NoError(t, ahead.SaveState(ctx, 50))

	second := newFixture(t, chain, dataset.NewPartitionedStore(storeDir, 10, true), ahead,
		ScannerConfig{Chain: "test", LoadCount: 5})
	assert.Equal(t, uint64(21), second.scanner.NextBlock())
}

func TestScanner_StartBlockBeforeBuffer(t *testing.T) {
	chain := reorg.NewSyntheticStrategy()
	chain.ProduceBlocks(30)

	store := dataset.NewPartitionedStore(t.TempDir(), 10, true)
	cur := cursor.NewFileStore(filepath.Join(t.TempDir(), "cursor"))
	f := newFixture(t, chain, store, cur, ScannerConfig{Chain: "test", StartBlock: 1, LoadCount: 5, MaxRange: 12})
	assert.Equal(t, 5, f.monitor.Len())

	for _, want := range []uint64{12, 24, 30} {
		last, ok := f.cycle(t)
		require.True(t, ok)
		assert.Equal(t, want, last)
	}
	assertRowsMatchChain(t, store, chain, 30)
}

func TestScanner_HeaderSnapshot(t *testing.T) {
	ctx := context.Background()
	chain := reorg.NewSyntheticStrategy()
	chain.ProduceBlocks(15)

	headers, err := headerstore.Open(filepath.Join(t.TempDir(), "headers.db"))
	require.NoError(t, err)
	defer headers.Close()

	monitor := reorg.NewMonitor(chain, reorg.Config{CheckDepth: 10, Chain: "test"}, reorg.WithSleep(noSleep))
	s := NewScanner(ScannerConfig{Chain: "test", LoadCount: 15}, monitor, NewHeaderExporter(monitor, chain),
		dataset.NewPartitionedStore(t.TempDir(), 10, true), cursor.NewFileStore(filepath.Join(t.TempDir(), "c")), headers)
	require.NoError(t, s.Init(ctx))
	_, ok, err := s.Cycle(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	saved, err := headers.Load(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 15)
	assert.Equal(t, uint64(15), saved[14].Number)
}

func TestScanner_RunStopsOnCancel(t *testing.T) {
	chain := reorg.NewSyntheticStrategy()
	chain.ProduceBlocks(10)

	store := dataset.NewPartitionedStore(t.TempDir(), 10, true)
	f := newFixture(t, chain, store, cursor.NewFileStore(filepath.Join(t.TempDir(), "cursor")),
		ScannerConfig{Chain: "test", LoadCount: 10, Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, f.scanner.Run(ctx))

	p := f.scanner.Progress()
	assert.Equal(t, uint64(10), p.CursorBlock)
	assert.Equal(t, uint64(10), p.LiveBlock)
	assert.NoError(t, p.LastError)
	assert.False(t, p.LastCycleAt.IsZero())
}

type flakyHandler struct {
	*HeaderExporter
	errs []error
}

func (h *flakyHandler) HandleRange(ctx context.Context, from, to uint64) (*dataset.Dataset, error) {
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return nil, err
	}
	return h.HeaderExporter.HandleRange(ctx, from, to)
}

func TestScanner_RunRetriesTransientFailures(t *testing.T) {
	chain := reorg.NewSyntheticStrategy()
	chain.ProduceBlocks(10)

	monitor := reorg.NewMonitor(chain, reorg.Config{CheckDepth: 10, Chain: "test"}, reorg.WithSleep(noSleep))
	retry := recovery.ScanPolicy(time.Millisecond)
	handler := &flakyHandler{
		HeaderExporter: NewHeaderExporter(monitor, chain),
		errs:           []error{errors.New("node hiccup"), errors.New("node hiccup")},
	}

	s := NewScanner(ScannerConfig{Chain: "test", LoadCount: 10, Interval: 5 * time.Millisecond, Retry: retry},
		monitor, handler, dataset.NewPartitionedStore(t.TempDir(), 10, true),
		cursor.NewFileStore(filepath.Join(t.TempDir(), "cursor")), nil)
	require.NoError(t, s.Init(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, uint64(10), s.Progress().CursorBlock)
	assert.NoError(t, s.Progress().LastError)
}

func TestScanner_RunStopsOnPermanentFailure(t *testing.T) {
	chain := reorg.NewSyntheticStrategy()
	chain.ProduceBlocks(10)

	monitor := reorg.NewMonitor(chain, reorg.Config{CheckDepth: 10, Chain: "test"}, reorg.WithSleep(noSleep))
	handler := &flakyHandler{
		HeaderExporter: NewHeaderExporter(monitor, chain),
		errs:           []error{fmt.Errorf("partition 1: %w", dataset.ErrCorruptPartition)},
	}

	s := NewScanner(ScannerConfig{Chain: "test", LoadCount: 10, Interval: 5 * time.Millisecond},
		monitor, handler, dataset.NewPartitionedStore(t.TempDir(), 10, true),
		cursor.NewFileStore(filepath.Join(t.TempDir(), "cursor")), nil)
	require.NoError(t, s.Init(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Run(ctx)
	require.ErrorIs(t, err, dataset.ErrCorruptPartition)
	assert.Error(t, s.Progress().LastError)
}
