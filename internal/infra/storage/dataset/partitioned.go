package dataset

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/vietddude/reorgscan/internal/indexing/metrics"
)

const (
	dataFile     = "data.json.zst"
	checksumFile = "checksum.b3"

	// DefaultPartitionSize is the number of blocks per partition.
	DefaultPartitionSize = 100_000
)

// PartitionKey returns the first block of the partition holding block.
// Block 0 belongs to partition 1, so no partition starts at zero.
func PartitionKey(block, size uint64) uint64 {
	return max(1, block/size*size)
}

// PartitionedStore keeps one directory per partition, named by its first block.
// Each directory holds the rows in columnar JSON, zstd compressed, plus a blake3 checksum.
type PartitionedStore struct {
	dir       string
	size      uint64
	checkGaps bool
	log       *slog.Logger
}

// NewPartitionedStore creates a store under dir. size defaults to DefaultPartitionSize.
func NewPartitionedStore(dir string, size uint64, checkGaps bool) *PartitionedStore {
	if size == 0 {
		size = DefaultPartitionSize
	}
	return &PartitionedStore{
		dir:       dir,
		size:      size,
		checkGaps: checkGaps,
		log:       slog.Default().With("component", "dataset.partitioned"),
	}
}

// PartitionSize returns the number of blocks per partition.
func (s *PartitionedStore) PartitionSize() uint64 {
	return s.size
}

// columnar is the on-disk layout of one partition.
type columnar struct {
	Columns     []string   `json:"columns"`
	BlockNumber []uint64   `json:"block_number"`
	Partition   []uint64   `json:"partition"`
	Values      [][]string `json:"values"` // Values[column][row]
}

// IsVirgin reports whether no partition exists.
func (s *PartitionedStore) IsVirgin() (bool, error) {
	keys, err := s.partitions()
	if err != nil {
		return false, err
	}
	return len(keys) == 0, nil
}

// Load reads rows with BlockNumber >= since, verifying each partition checksum.
func (s *PartitionedStore) Load(since uint64) (*Dataset, error) {
	keys, err := s.partitions()
	if err != nil {
		return nil, err
	}

	ds := New()
	sinceKey := PartitionKey(since, s.size)
	for _, key := range keys {
		if key < sinceKey {
			continue
		}
		part, err := s.readPartition(key)
		if err != nil {
			return nil, err
		}
		if err := ds.Merge(part.Since(since)); err != nil {
			return nil, fmt.Errorf("partition %d: %w", key, err)
		}
	}
	return ds, nil
}

// PeakLastBlock returns the highest stored block number.
func (s *PartitionedStore) PeakLastBlock() (uint64, bool, error) {
	keys, err := s.partitions()
	if err != nil || len(keys) == 0 {
		return 0, false, err
	}

	part, err := s.readPartition(keys[len(keys)-1])
	if err != nil {
		return 0, false, err
	}
	last, ok := part.LastBlock()
	return last, ok, nil
}

// Save replaces every partition with the content of ds.
func (s *PartitionedStore) Save(ds *Dataset) error {
	if err := s.check(ds.Rows, ds); err != nil {
		return err
	}

	existing, err := s.partitions()
	if err != nil {
		return err
	}

	groups := s.group(ds.Columns, ds.Rows)
	var stale []uint64
	for _, key := range existing {
		if _, ok := groups[key]; !ok {
			stale = append(stale, key)
		}
	}

	if err := s.commit(groups, stale); err != nil {
		return err
	}
	metrics.StoreRowsWritten.WithLabelValues("partitioned").Add(float64(len(ds.Rows)))
	s.log.Info("Dataset saved", "dir", s.dir, "rows", len(ds.Rows), "partitions", len(groups))
	return nil
}

// SaveIncremental rewrites only the partitions starting at
// max(1, min(key(previous last) - size, key(new last) - size)).
// Rows of ds below that start are ignored. Returns the written block range.
func (s *PartitionedStore) SaveIncremental(ds *Dataset) (uint64, uint64, error) {
	newLast, ok := ds.LastBlock()
	if !ok {
		return 0, 0, nil
	}
	if err := ds.Validate(); err != nil {
		return 0, 0, err
	}

	prevLast, hasPrev, err := s.PeakLastBlock()
	if err != nil {
		return 0, 0, err
	}

	rows := ds.Rows
	if hasPrev {
		writeStart := min(s.shiftBack(PartitionKey(prevLast, s.size)), s.shiftBack(PartitionKey(newLast, s.size)))
		rows = ds.Since(writeStart).Rows

		// Keep stored rows of the first touched partition that ds does not cover
		if first, ok := (&Dataset{Rows: rows}).FirstBlock(); ok {
			key := PartitionKey(first, s.size)
			head, err := s.storedBefore(key, first, ds.Columns)
			if err != nil {
				return 0, 0, err
			}
			rows = append(head, rows...)
		}
	}

	if err := s.check(rows, ds); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}

	existing, err := s.partitions()
	if err != nil {
		return 0, 0, err
	}

	batch := &Dataset{Columns: ds.Columns, Rows: rows}
	first, _ := batch.FirstBlock()
	firstKey := PartitionKey(first, s.size)

	groups := s.group(ds.Columns, rows)
	var stale []uint64
	for _, key := range existing {
		if _, ok := groups[key]; !ok && key > firstKey {
			stale = append(stale, key)
		}
	}

	if err := s.commit(groups, stale); err != nil {
		return 0, 0, err
	}

	metrics.StoreRowsWritten.WithLabelValues("partitioned").Add(float64(len(rows)))
	s.log.Info("Dataset saved incrementally",
		"dir", s.dir,
		"first_block", first,
		"last_block", newLast,
		"partitions", len(groups),
	)
	return first, newLast, nil
}

func (s *PartitionedStore) shiftBack(key uint64) uint64 {
	if key <= s.size {
		return 1
	}
	return key - s.size
}

// storedBefore returns stored rows of partition key below block.
func (s *PartitionedStore) storedBefore(key, block uint64, columns []string) ([]Row, error) {
	if block <= key {
		return nil, nil
	}
	part, err := s.readPartition(key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !slices.Equal(part.Columns, columns) {
		return nil, fmt.Errorf("%w: partition %d has columns %v, batch has %v", ErrSchemaMismatch, key, part.Columns, columns)
	}

	var out []Row
	for _, r := range part.Rows {
		if r.BlockNumber < block {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *PartitionedStore) check(rows []Row, ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if s.checkGaps {
		return CheckGaps(rows)
	}
	return nil
}

func (s *PartitionedStore) group(columns []string, rows []Row) map[uint64]*Dataset {
	groups := make(map[uint64]*Dataset)
	for _, r := range rows {
		key := PartitionKey(r.BlockNumber, s.size)
		g, ok := groups[key]
		if !ok {
			g = New(columns...)
			groups[key] = g
		}
		g.Rows = append(g.Rows, r)
	}
	for _, g := range groups {
		g.Sort()
	}
	return groups
}

// commit stages every partition, then swaps them in one by one and drops stale ones.
func (s *PartitionedStore) commit(groups map[uint64]*Dataset, stale []uint64) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.dir, err)
	}

	staging := filepath.Join(s.dir, ".staging-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer encoder.Close()

	keys := slices.Sorted(maps.Keys(groups))
	for _, key := range keys {
		if err := writePartition(encoder, filepath.Join(staging, partitionName(key)), key, groups[key]); err != nil {
			return fmt.Errorf("stage partition %d: %w", key, err)
		}
	}

	for _, key := range keys {
		final := s.partitionDir(key)
		if err := os.RemoveAll(final); err != nil {
			return fmt.Errorf("remove partition %d: %w", key, err)
		}
		if err := os.Rename(filepath.Join(staging, partitionName(key)), final); err != nil {
			return fmt.Errorf("swap partition %d: %w", key, err)
		}
	}

	for _, key := range stale {
		if err := os.RemoveAll(s.partitionDir(key)); err != nil {
			return fmt.Errorf("remove stale partition %d: %w", key, err)
		}
	}
	return nil
}

func writePartition(encoder *zstd.Encoder, dir string, key uint64, ds *Dataset) error {
	c := columnar{
		Columns:     ds.Columns,
		BlockNumber: make([]uint64, len(ds.Rows)),
		Partition:   make([]uint64, len(ds.Rows)),
		Values:      make([][]string, len(ds.Columns)),
	}
	for i := range c.Values {
		c.Values[i] = make([]string, len(ds.Rows))
	}
	for r, row := range ds.Rows {
		c.BlockNumber[r] = row.BlockNumber
		c.Partition[r] = key
		for col, v := range row.Values {
			c.Values[col][r] = v
		}
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	compressed := encoder.EncodeAll(raw, nil)
	sum := blake3.Sum256(compressed)

	if err := os.Mkdir(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, dataFile), compressed, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, checksumFile), []byte(hex.EncodeToString(sum[:])), 0o644)
}

func (s *PartitionedStore) readPartition(key uint64) (*Dataset, error) {
	dir := s.partitionDir(key)

	compressed, err := os.ReadFile(filepath.Join(dir, dataFile))
	if err != nil {
		return nil, fmt.Errorf("read partition %d: %w", key, err)
	}
	want, err := os.ReadFile(filepath.Join(dir, checksumFile))
	if err != nil {
		return nil, fmt.Errorf("%w: partition %d: missing checksum: %v", ErrCorruptPartition, key, err)
	}
	sum := blake3.Sum256(compressed)
	if hex.EncodeToString(sum[:]) != strings.TrimSpace(string(want)) {
		return nil, fmt.Errorf("%w: partition %d: checksum mismatch", ErrCorruptPartition, key)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: partition %d: %v", ErrCorruptPartition, key, err)
	}

	var c columnar
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: partition %d: %v", ErrCorruptPartition, key, err)
	}
	if len(c.Values) != len(c.Columns) {
		return nil, fmt.Errorf("%w: partition %d: %d value columns for %d names", ErrCorruptPartition, key, len(c.Values), len(c.Columns))
	}

	ds := New(c.Columns...)
	ds.Rows = make([]Row, len(c.BlockNumber))
	for r, n := range c.BlockNumber {
		values := make([]string, len(c.Columns))
		for col := range c.Columns {
			if r >= len(c.Values[col]) {
				return nil, fmt.Errorf("%w: partition %d: short column %q", ErrCorruptPartition, key, c.Columns[col])
			}
			values[col] = c.Values[col][r]
		}
		ds.Rows[r] = Row{BlockNumber: n, Values: values}
	}
	return ds, nil
}

// partitions lists partition keys in ascending order.
func (s *PartitionedStore) partitions() ([]uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}

	var keys []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		key, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue // staging and foreign dirs
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *PartitionedStore) partitionDir(key uint64) string {
	return filepath.Join(s.dir, partitionName(key))
}

func partitionName(key uint64) string {
	return strconv.FormatUint(key, 10)
}
