package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsSmallCapacity(t *testing.T) {
	_, err := New(1)
	require.ErrorIs(t, err, ErrCapacityTooSmall)
	_, err = New(0)
	require.ErrorIs(t, err, ErrCapacityTooSmall)
}

func TestPushAndSnapshotOrdering(t *testing.T) {
	b, err := New(3)
	require.NoError(t, err)
	b.Push(1)
	b.Push(2)
	assert.Equal(t, []float64{1, 2}, b.Snapshot())
	assert.Equal(t, 2, b.Len())
}

func TestPushEvictsOldestOnOverflow(t *testing.T) {
	b, _ := New(3)
	b.Push(1)
	b.Push(2)
	b.Push(3)
	b.Push(4)
	assert.Equal(t, []float64{2, 3, 4}, b.Snapshot())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 3, b.Cap())
}

func TestLast(t *testing.T) {
	b, _ := New(2)
	_, ok := b.Last()
	assert.False(t, ok)
	b.Push(5)
	b.Push(9)
	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 9.0, last)
}

func TestResizeShrinkKeepsTail(t *testing.T) {
	b, _ := New(5)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		b.Push(v)
	}
	require.NoError(t, b.Resize(3))
	assert.Equal(t, []float64{3, 4, 5}, b.Snapshot())
}

func TestResizeGrowPreservesAll(t *testing.T) {
	b, _ := New(3)
	b.Push(1)
	b.Push(2)
	require.NoError(t, b.Resize(5))
	assert.Equal(t, []float64{1, 2}, b.Snapshot())
	b.Push(3)
	b.Push(4)
	b.Push(5)
	b.Push(6)
	assert.Equal(t, []float64{2, 3, 4, 5, 6}, b.Snapshot())
}

func TestResizeRejectsTooSmall(t *testing.T) {
	b, _ := New(3)
	require.ErrorIs(t, b.Resize(1), ErrCapacityTooSmall)
}

func TestReset(t *testing.T) {
	b, _ := New(3)
	b.Push(1)
	b.Push(2)
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, []float64{}, b.Snapshot())
}

func TestPushAfterWrapThenResize(t *testing.T) {
	b, _ := New(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		b.Push(v)
	}
	require.NoError(t, b.Resize(4))
	assert.Equal(t, []float64{3, 4, 5}, b.Snapshot())
	b.Push(6)
	assert.Equal(t, []float64{3, 4, 5, 6}, b.Snapshot())
}
