package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func advanceAll(t *testing.T, b *Buffer, trackers []*Tracker, values ...float64) {
	for _, v := range values {
		position := b.Append(v)
		for _, tracker := range trackers {
			require.NoError(t, tracker.Advance(b, position, v))
		}
	}
}

func TestTrackerPositions(t *testing.T) {
	b := NewBuffer(100)
	maxima := NewTracker(Max, 10)
	minima := NewTracker(Min, 10)

	advanceAll(t, b, []*Tracker{maxima, minima}, 5, 7, 20, 9, 8)

	assert.Equal(t, []int64{2, 3, 4}, maxima.Positions())
	assert.Equal(t, []int64{0, 1, 4}, minima.Positions())
}

func TestTrackerShouldEvictFromFront(t *testing.T) {
	b := NewBuffer(10)
	maxima := NewTracker(Max, 3)
	minima := NewTracker(Min, 3)

	advanceAll(t, b, []*Tracker{maxima, minima}, 9, 1, 5, 4)

	// 9 at position 0 left the window of 3 when position 3 was appended
	front, err := maxima.Front()
	require.NoError(t, err)
	assert.Equal(t, int64(2), front)
	assert.Equal(t, []int64{2, 3}, maxima.Positions())

	front, err = minima.Front()
	require.NoError(t, err)
	assert.Equal(t, int64(1), front)
}

func TestTrackerTiesResolveToMostRecent(t *testing.T) {
	b := NewBuffer(10)
	maxima := NewTracker(Max, 10)
	minima := NewTracker(Min, 10)

	advanceAll(t, b, []*Tracker{maxima, minima}, 3, 3, 3)

	assert.Equal(t, []int64{2}, maxima.Positions())
	assert.Equal(t, []int64{2}, minima.Positions())
}

func TestTrackerFrontWhenEmpty(t *testing.T) {
	tracker := NewTracker(Min, 10)
	_, err := tracker.Front()
	assert.ErrorIs(t, err, ErrEmptyWindow)
	assert.Equal(t, 0, tracker.Len())
}

func TestTrackerSizeIsBoundedByWindow(t *testing.T) {
	b := NewBuffer(100)
	minima := NewTracker(Min, 10)

	// Strictly increasing values are never dominated, so only front eviction bounds the deque
	for i := 0; i < 100; i++ {
		position := b.Append(float64(i))
		require.NoError(t, minima.Advance(b, position, float64(i)))
		assert.LessOrEqual(t, minima.Len(), 10)
	}
	assert.Equal(t, 10, minima.Len())
	front, err := minima.Front()
	require.NoError(t, err)
	assert.Equal(t, int64(90), front)
}

func TestTrackerAdvanceWithStaleValues(t *testing.T) {
	// A window larger than the buffer lets the tracker retain positions the buffer already overwrote
	b := NewBuffer(2)
	minima := NewTracker(Min, 10)

	advanceAll(t, b, []*Tracker{minima}, 1, 2, 3)
	position := b.Append(0)
	err := minima.Advance(b, position, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "max", Max.String())
	assert.Equal(t, "min", Min.String())
}
