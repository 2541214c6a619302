package series

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a position is read that a Buffer does not currently retain, either because it has been
// overwritten or because it has not been appended yet.
var ErrOutOfRange = errors.New("position out of range")

// Entry is the data a Buffer stores for a single position.
type Entry struct {
	Value float64
	// Sum of all values appended at positions 0 through this one.
	Sum float64
	// Sum of the squares of all values appended at positions 0 through this one.
	SumSquares float64
}

// Buffer is a fixed capacity circular store of values along with their running sums and running sums of squares. Every
// appended value is assigned the next position, starting at 0, and slot position % capacity holds the value for that
// position until it's overwritten capacity appends later.
//
// Running sums are retained for one position more than values, so that the sums preceding the oldest live position can
// always be read with Prefix.
//
// This type is not concurrency safe and must be guarded externally.
type Buffer struct {
	values []float64
	// Each of length capacity+1
	sums       []float64
	sumSquares []float64

	// Count of values ever appended, which is also the next position to write
	next int64
}

// NewBuffer returns a Buffer that retains the most recent capacity values. Panics if capacity < 1.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		panic("capacity must be >= 1")
	}
	return &Buffer{
		values:     make([]float64, capacity),
		sums:       make([]float64, capacity+1),
		sumSquares: make([]float64, capacity+1),
	}
}

// Append stores the value at the next position, overwriting the oldest retained value if the Buffer is full, and returns
// the position the value was assigned.
func (b *Buffer) Append(value float64) int64 {
	position := b.next
	sum := value
	sumSquares := value * value
	if position > 0 {
		prev := b.sumSlot(position - 1)
		sum += b.sums[prev]
		sumSquares += b.sumSquares[prev]
	}

	b.values[b.slot(position)] = value
	slot := b.sumSlot(position)
	b.sums[slot] = sum
	b.sumSquares[slot] = sumSquares
	b.next++
	return position
}

// Read returns the Entry for the position, else ErrOutOfRange if the position is not live.
func (b *Buffer) Read(position int64) (Entry, error) {
	if !b.Live(position) {
		return Entry{}, b.outOfRange(position)
	}
	slot := b.sumSlot(position)
	return Entry{
		Value:      b.values[b.slot(position)],
		Sum:        b.sums[slot],
		SumSquares: b.sumSquares[slot],
	}, nil
}

// Prefix returns the running sum and running sum of squares through the position. Unlike Read, this also succeeds for the
// position immediately preceding the oldest live position. Returns ErrOutOfRange for other positions that are not live.
func (b *Buffer) Prefix(position int64) (sum float64, sumSquares float64, err error) {
	if position < 0 || position >= b.next || position < b.next-int64(len(b.sums)) {
		return 0, 0, b.outOfRange(position)
	}
	slot := b.sumSlot(position)
	return b.sums[slot], b.sumSquares[slot], nil
}

// ValueAt returns the value for the position, else ErrOutOfRange if the position is not live.
func (b *Buffer) ValueAt(position int64) (float64, error) {
	if !b.Live(position) {
		return 0, b.outOfRange(position)
	}
	return b.values[b.slot(position)], nil
}

// Live returns whether the position is currently retained by the Buffer.
func (b *Buffer) Live(position int64) bool {
	return position >= 0 && position < b.next && position >= b.next-int64(len(b.values))
}

// Size returns the number of values currently retained, which never exceeds the capacity.
func (b *Buffer) Size() int {
	return int(min(b.next, int64(len(b.values))))
}

// Capacity returns the max number of values the Buffer retains.
func (b *Buffer) Capacity() int {
	return len(b.values)
}

// LastPosition returns the position of the most recently appended value, else -1 if nothing has been appended.
func (b *Buffer) LastPosition() int64 {
	return b.next - 1
}

func (b *Buffer) slot(position int64) int {
	return int(position % int64(len(b.values)))
}

func (b *Buffer) sumSlot(position int64) int {
	return int(position % int64(len(b.sums)))
}

func (b *Buffer) outOfRange(position int64) error {
	oldest := max(b.next-int64(len(b.values)), 0)
	return fmt.Errorf("%w: %d not in [%d, %d)", ErrOutOfRange, position, oldest, b.next)
}
