package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckGaps(t *testing.T) {
	ds := New("tx")
	ds.Append(3, "a")
	ds.Append(1, "b")
	ds.Append(2, "c")
	ds.Append(2, "d")
	assert.NoError(t, CheckGaps(ds.Rows))

	ds.Append(5, "e")
	err := CheckGaps(ds.Rows)
	require.ErrorIs(t, err, ErrGap)

	var gap *GapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, uint64(4), gap.Missing)
	assert.Equal(t, uint64(1), gap.First)
	assert.Equal(t, uint64(5), gap.Last)

	assert.NoError(t, CheckGaps(nil))
}

func TestDatasetMerge(t *testing.T) {
	ds := New("v")
	for n := uint64(1); n <= 5; n++ {
		ds.Append(n, "old")
	}

	tail := New("v")
	tail.Append(4, "new")
	tail.Append(6, "new")
	require.NoError(t, ds.Merge(tail))

	last, ok := ds.LastBlock()
	require.True(t, ok)
	assert.Equal(t, uint64(6), last)
	assert.Equal(t, 5, ds.Len())
	assert.Equal(t, "new", ds.Rows[3].Values[0])

	require.ErrorIs(t, ds.Merge(New("other")), ErrSchemaMismatch)
}

func TestDatasetValidate(t *testing.T) {
	ds := New("a", "b")
	ds.Append(1, "x")
	assert.ErrorIs(t, ds.Validate(), ErrSchemaMismatch)
}

func TestDatasetSortIsStable(t *testing.T) {
	ds := New("v")
	ds.Append(2, "first")
	ds.Append(1, "x")
	ds.Append(2, "second")
	ds.Sort()

	assert.Equal(t, []string{"x"}, ds.Rows[0].Values)
	assert.Equal(t, []string{"first"}, ds.Rows[1].Values)
	assert.Equal(t, []string{"second"}, ds.Rows[2].Values)
}
