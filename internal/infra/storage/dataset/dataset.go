// Package dataset persists block-indexed tables so a scan can resume.
//
// A Dataset is a list of rows keyed by block number; a block may own any number
// of rows, but every block between the first and the last row must own at
// least one. Two backends implement Store:
//
//   - FlatStore: one CSV file, full rewrites only
//   - PartitionedStore: one directory per block range, incremental writes
//     that touch at most the two most recent partitions
package dataset

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrGap is returned when a batch is missing a block.
	ErrGap = errors.New("gap in block numbers")

	// ErrNotSupported is returned by backends lacking an operation.
	ErrNotSupported = errors.New("operation not supported by store")

	// ErrCorruptPartition is returned when a partition fails its checksum or cannot be decoded.
	ErrCorruptPartition = errors.New("corrupt partition")

	// ErrSchemaMismatch is returned when rows do not match the dataset columns.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// GapError names the first missing block of a rejected batch.
type GapError struct {
	Missing uint64
	First   uint64
	Last    uint64
}

func (e *GapError) Error() string {
	return fmt.Sprintf("%v: block %d missing in [%d, %d]", ErrGap, e.Missing, e.First, e.Last)
}

func (e *GapError) Unwrap() error {
	return ErrGap
}

// Store persists datasets.
type Store interface {
	// IsVirgin reports whether nothing has been written yet.
	IsVirgin() (bool, error)

	// Load returns all rows with BlockNumber >= since.
	Load(since uint64) (*Dataset, error)

	// Save replaces the stored dataset.
	Save(ds *Dataset) error

	// SaveIncremental writes only the recent part of ds and returns the written block range.
	SaveIncremental(ds *Dataset) (first, last uint64, err error)

	// PeakLastBlock returns the highest stored block number.
	PeakLastBlock() (uint64, bool, error)
}

// Row is one record. Values line up with Dataset.Columns.
type Row struct {
	BlockNumber uint64
	Values      []string
}

// Dataset is an in-memory table keyed by block number.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// New creates an empty dataset with the given value columns.
func New(columns ...string) *Dataset {
	return &Dataset{Columns: slices.Clone(columns)}
}

// Append adds a row.
func (d *Dataset) Append(block uint64, values ...string) {
	d.Rows = append(d.Rows, Row{BlockNumber: block, Values: values})
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Sort orders rows by block number, keeping the order of rows within a block.
func (d *Dataset) Sort() {
	slices.SortStableFunc(d.Rows, func(a, b Row) int {
		return cmp.Compare(a.BlockNumber, b.BlockNumber)
	})
}

// FirstBlock returns the lowest block number.
func (d *Dataset) FirstBlock() (uint64, bool) {
	if len(d.Rows) == 0 {
		return 0, false
	}
	first := d.Rows[0].BlockNumber
	for _, r := range d.Rows[1:] {
		first = min(first, r.BlockNumber)
	}
	return first, true
}

// LastBlock returns the highest block number.
func (d *Dataset) LastBlock() (uint64, bool) {
	if len(d.Rows) == 0 {
		return 0, false
	}
	last := d.Rows[0].BlockNumber
	for _, r := range d.Rows[1:] {
		last = max(last, r.BlockNumber)
	}
	return last, true
}

// Since returns a copy holding rows with BlockNumber >= block.
func (d *Dataset) Since(block uint64) *Dataset {
	out := New(d.Columns...)
	for _, r := range d.Rows {
		if r.BlockNumber >= block {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// TruncateAfter drops rows above block.
func (d *Dataset) TruncateAfter(block uint64) {
	d.Rows = slices.DeleteFunc(d.Rows, func(r Row) bool {
		return r.BlockNumber > block
	})
}

// Merge appends other, first dropping own rows that other replaces.
func (d *Dataset) Merge(other *Dataset) error {
	if len(d.Columns) == 0 && len(d.Rows) == 0 {
		d.Columns = slices.Clone(other.Columns)
	}
	if !slices.Equal(d.Columns, other.Columns) {
		return fmt.Errorf("%w: columns %v and %v", ErrSchemaMismatch, d.Columns, other.Columns)
	}
	if first, ok := other.FirstBlock(); ok {
		if first == 0 {
			d.Rows = nil
		} else {
			d.TruncateAfter(first - 1)
		}
	}
	d.Rows = append(d.Rows, other.Rows...)
	d.Sort()
	return nil
}

// Validate checks every row against the column list.
func (d *Dataset) Validate() error {
	for _, r := range d.Rows {
		if len(r.Values) != len(d.Columns) {
			return fmt.Errorf("%w: block %d has %d values for %d columns",
				ErrSchemaMismatch, r.BlockNumber, len(r.Values), len(d.Columns))
		}
	}
	return nil
}

// CheckGaps returns a *GapError if any block between the first and last row owns no row.
func CheckGaps(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	seen := make(map[uint64]struct{}, len(rows))
	first, last := rows[0].BlockNumber, rows[0].BlockNumber
	for _, r := range rows {
		seen[r.BlockNumber] = struct{}{}
		first = min(first, r.BlockNumber)
		last = max(last, r.BlockNumber)
	}
	if uint64(len(seen)) == last-first+1 {
		return nil
	}
	for n := first; n <= last; n++ {
		if _, ok := seen[n]; !ok {
			return &GapError{Missing: n, First: first, Last: last}
		}
	}
	return nil
}
