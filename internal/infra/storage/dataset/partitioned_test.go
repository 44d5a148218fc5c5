package dataset

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocks(from, to uint64) *Dataset {
	ds := New("hash")
	for n := from; n <= to; n++ {
		ds.Append(n, "0x"+strconv.FormatUint(n, 16))
	}
	return ds
}

// snapshot maps every file under dir to its content.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		files[rel] = string(b)
		return nil
	})
	require.NoError(t, err)
	return files
}

func readColumnar(t *testing.T, dir string, key uint64) columnar {
	t.Helper()
	compressed, err := os.ReadFile(filepath.Join(dir, partitionName(key), dataFile))
	require.NoError(t, err)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)

	var c columnar
	require.NoError(t, json.Unmarshal(raw, &c))
	return c
}

func TestPartitionKey(t *testing.T) {
	tests := []struct {
		block, size, want uint64
	}{
		{0, 10, 1},
		{1, 10, 1},
		{9, 10, 1},
		{10, 10, 10},
		{19, 10, 10},
		{100_000, 100_000, 100_000},
		{250_001, 100_000, 200_000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PartitionKey(tt.block, tt.size), "block %d", tt.block)
	}
}

func TestPartitionedStore_SaveLayout(t *testing.T) {
	dir := t.TempDir()
	store := NewPartitionedStore(dir, 10, true)

	virgin, err := store.IsVirgin()
	require.NoError(t, err)
	assert.True(t, virgin)

	require.NoError(t, store.Save(blocks(0, 25)))

	keys, err := store.partitions()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 10, 20}, keys)

	first := readColumnar(t, dir, 1)
	assert.Equal(t, []string{"hash"}, first.Columns)
	assert.Len(t, first.BlockNumber, 10)
	for _, p := range first.Partition {
		assert.Equal(t, uint64(1), p)
	}

	last := readColumnar(t, dir, 20)
	assert.Equal(t, []uint64{20, 21, 22, 23, 24, 25}, last.BlockNumber)
	assert.Equal(t, "0x19", last.Values[0][5])

	_, err = os.Stat(filepath.Join(dir, "20", checksumFile))
	require.NoError(t, err)

	loaded, err := store.Load(0)
	require.NoError(t, err)
	assert.Equal(t, 26, loaded.Len())

	loaded, err = store.Load(18)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Len())
	assert.Equal(t, uint64(18), loaded.Rows[0].BlockNumber)

	peak, ok, err := store.PeakLastBlock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(25), peak)
}

func TestPartitionedStore_SaveDropsStalePartitions(t *testing.T) {
	dir := t.TempDir()
	store := NewPartitionedStore(dir, 10, true)

	require.NoError(t, store.Save(blocks(1, 35)))
	require.NoError(t, store.Save(blocks(1, 12)))

	keys, err := store.partitions()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 10}, keys)
}

func TestPartitionedStore_GapLeavesStoreUnchanged(t *testing.T) {
	dir := t.TempDir()
	store := NewPartitionedStore(dir, 10, true)
	require.NoError(t, store.Save(blocks(1, 25)))
	before := snapshot(t, dir)

	gappy := blocks(22, 23)
	gappy.Append(25, "0x19")

	_, _, err := store.SaveIncremental(gappy)
	require.ErrorIs(t, err, ErrGap)
	assert.Equal(t, before, snapshot(t, dir))

	require.ErrorIs(t, store.Save(gappy), ErrGap)
	assert.Equal(t, before, snapshot(t, dir))
}

func TestPartitionedStore_IncrementalTouchesRecentPartitions(t *testing.T) {
	dir := t.TempDir()
	store := NewPartitionedStore(dir, 10, true)
	require.NoError(t, store.Save(blocks(1, 45)))
	before := snapshot(t, dir)

	first, last, err := store.SaveIncremental(blocks(35, 52))
	require.NoError(t, err)
	assert.Equal(t, uint64(30), first)
	assert.Equal(t, uint64(52), last)

	after := snapshot(t, dir)
	for _, key := range []string{"1", "10", "20"} {
		sum := filepath.Join(key, checksumFile)
		assert.Equal(t, before[sum], after[sum], "partition %s rewritten", key)
	}

	loaded, err := store.Load(0)
	require.NoError(t, err)
	assert.Equal(t, 52, loaded.Len())
	require.NoError(t, CheckGaps(loaded.Rows))

	peak, _, err := store.PeakLastBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(52), peak)
}

func TestPartitionedStore_IncrementalAfterReorg(t *testing.T) {
	dir := t.TempDir()
	store := NewPartitionedStore(dir, 10, true)
	require.NoError(t, store.Save(blocks(1, 45)))

	replaced := New("hash")
	for n := uint64(38); n <= 41; n++ {
		replaced.Append(n, "fork")
	}
	first, last, err := store.SaveIncremental(replaced)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), first)
	assert.Equal(t, uint64(41), last)

	peak, _, err := store.PeakLastBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(41), peak)

	loaded, err := store.Load(36)
	require.NoError(t, err)
	require.Equal(t, 6, loaded.Len())
	assert.Equal(t, "0x24", loaded.Rows[0].Values[0])
	assert.Equal(t, "fork", loaded.Rows[2].Values[0])
	assert.Equal(t, "fork", loaded.Rows[5].Values[0])
}

func TestPartitionedStore_IncrementalOnEmptyStore(t *testing.T) {
	store := NewPartitionedStore(t.TempDir(), 10, true)

	first, last, err := store.SaveIncremental(blocks(5, 14))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), first)
	assert.Equal(t, uint64(14), last)

	first, last, err = store.SaveIncremental(New("hash"))
	require.NoError(t, err)
	assert.Zero(t, first)
	assert.Zero(t, last)
}

func TestPartitionedStore_Corruption(t *testing.T) {
	dir := t.TempDir()
	store := NewPartitionedStore(dir, 10, true)
	require.NoError(t, store.Save(blocks(1, 25)))

	data := filepath.Join(dir, "10", dataFile)
	require.NoError(t, os.WriteFile(data, []byte("garbage"), 0o644))

	_, err := store.Load(0)
	require.ErrorIs(t, err, ErrCorruptPartition)

	// partitions below since are not read
	loaded, err := store.Load(20)
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.Len())

	require.NoError(t, os.Remove(filepath.Join(dir, "20", checksumFile)))
	_, _, err = store.PeakLastBlock()
	require.ErrorIs(t, err, ErrCorruptPartition)
}

func TestPartitionedStore_IgnoresForeignDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".staging-leftover"), 0o755))

	store := NewPartitionedStore(dir, 10, true)
	virgin, err := store.IsVirgin()
	require.NoError(t, err)
	assert.True(t, virgin)
}
