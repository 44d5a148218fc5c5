package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/vietddude/reorgscan/internal/indexing/metrics"
)

const blockNumberColumn = "block_number"

// FlatStore keeps the whole dataset in one CSV file.
// It has no partitions, so it cannot write incrementally or report a resume point.
type FlatStore struct {
	path      string
	checkGaps bool
	log       *slog.Logger
}

// NewFlatStore creates a CSV-backed store.
func NewFlatStore(path string, checkGaps bool) *FlatStore {
	return &FlatStore{
		path:      path,
		checkGaps: checkGaps,
		log:       slog.Default().With("component", "dataset.flat"),
	}
}

// IsVirgin reports whether the file exists.
func (s *FlatStore) IsVirgin() (bool, error) {
	_, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	return false, err
}

// Load reads rows with BlockNumber >= since.
func (s *FlatStore) Load(since uint64) (*Dataset, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return New(), nil
	}

	header := records[0]
	if len(header) == 0 || header[0] != blockNumberColumn {
		return nil, fmt.Errorf("%w: %s does not start with %s", ErrSchemaMismatch, s.path, blockNumberColumn)
	}

	ds := New(header[1:]...)
	for i, rec := range records[1:] {
		n, err := strconv.ParseUint(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", s.path, i+2, err)
		}
		if n >= since {
			ds.Append(n, slices.Clone(rec[1:])...)
		}
	}
	return ds, nil
}

// Save replaces the file. A rejected batch leaves the file untouched.
func (s *FlatStore) Save(ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if s.checkGaps {
		if err := CheckGaps(ds.Rows); err != nil {
			return err
		}
	}

	rows := slices.Clone(ds.Rows)
	sorted := &Dataset{Columns: ds.Columns, Rows: rows}
	sorted.Sort()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, ".tmp-"+uuid.NewString()+".csv")
	if err := writeCSV(tmpPath, sorted); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	metrics.StoreRowsWritten.WithLabelValues("flat").Add(float64(len(rows)))
	s.log.Info("Dataset saved", "path", s.path, "rows", len(rows))
	return nil
}

// SaveIncremental is not supported.
func (s *FlatStore) SaveIncremental(*Dataset) (uint64, uint64, error) {
	return 0, 0, fmt.Errorf("flat store: incremental save: %w", ErrNotSupported)
}

// PeakLastBlock is not supported.
func (s *FlatStore) PeakLastBlock() (uint64, bool, error) {
	return 0, false, fmt.Errorf("flat store: resume: %w", ErrNotSupported)
}

func writeCSV(path string, ds *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	header := append([]string{blockNumberColumn}, ds.Columns...)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return fmt.Errorf("write header: %w", err)
	}

	rec := make([]string, len(header))
	for _, r := range ds.Rows {
		rec[0] = strconv.FormatUint(r.BlockNumber, 10)
		copy(rec[1:], r.Values)
		if err := w.Write(rec); err != nil {
			_ = f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
