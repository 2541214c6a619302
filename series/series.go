package series

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// MaxSupportedExponent is the largest window exponent a Series can be configured with.
const MaxSupportedExponent = 8

// Series holds the observations of a single symbol: a Buffer with capacity 10^maxExponent, and a Max and Min Tracker
// for every window 10^1 through 10^maxExponent. All trackers share the Buffer's positions.
//
// This type is not concurrency safe and must be guarded externally.
type Series struct {
	buffer  *Buffer
	windows *bitset.BitSet

	// Indexed by exponent
	maxima []*Tracker
	minima []*Tracker
}

// New returns a Series covering windows 10^1 through 10^maxExponent. Panics if maxExponent is not within
// [1, MaxSupportedExponent].
func New(maxExponent int) *Series {
	return NewWithCapacity(maxExponent, Pow10(maxExponent))
}

// NewWithCapacity returns a Series covering windows 10^1 through 10^maxExponent whose buffer retains capacity values.
// When capacity is smaller than 10^maxExponent, trackers for the larger windows may retain positions the buffer has
// already overwritten, which stats.Compute reports as a deque inconsistency. Panics if maxExponent is not within
// [1, MaxSupportedExponent] or capacity < 1.
func NewWithCapacity(maxExponent int, capacity int) *Series {
	if maxExponent < 1 || maxExponent > MaxSupportedExponent {
		panic(fmt.Sprintf("maxExponent must be within [1, %d]", MaxSupportedExponent))
	}
	s := &Series{
		buffer:  NewBuffer(capacity),
		windows: bitset.New(uint(maxExponent + 1)),
		maxima:  make([]*Tracker, maxExponent+1),
		minima:  make([]*Tracker, maxExponent+1),
	}
	for exponent := 1; exponent <= maxExponent; exponent++ {
		windowSize := Pow10(exponent)
		s.windows.Set(uint(exponent))
		s.maxima[exponent] = NewTracker(Max, windowSize)
		s.minima[exponent] = NewTracker(Min, windowSize)
	}
	return s
}

// Append appends the values in order, with the first value being the oldest, and advances every tracker for each value.
func (s *Series) Append(values ...float64) error {
	for _, value := range values {
		position := s.buffer.Append(value)
		for exponent, ok := s.windows.NextSet(0); ok; exponent, ok = s.windows.NextSet(exponent + 1) {
			if err := s.maxima[exponent].Advance(s.buffer, position, value); err != nil {
				return err
			}
			if err := s.minima[exponent].Advance(s.buffer, position, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Buffer returns the Series' buffer.
func (s *Series) Buffer() *Buffer {
	return s.buffer
}

// Trackers returns the Max and Min trackers for the exponent, else false if no trackers are configured for it.
func (s *Series) Trackers(exponent int) (maxima *Tracker, minima *Tracker, ok bool) {
	if exponent < 0 || !s.windows.Test(uint(exponent)) {
		return nil, nil, false
	}
	return s.maxima[exponent], s.minima[exponent], true
}

// MaxExponent returns the largest configured window exponent.
func (s *Series) MaxExponent() int {
	return len(s.maxima) - 1
}

// Len returns the number of values ever appended.
func (s *Series) Len() int64 {
	return s.buffer.LastPosition() + 1
}

// Footprint returns the approximate number of bytes pre-allocated by New(maxExponent).
func Footprint(maxExponent int) uint64 {
	capacity := uint64(Pow10(maxExponent))
	// Values plus both prefix sum arrays
	bytes := 8 * (capacity + 2*(capacity+1))
	for exponent := 1; exponent <= maxExponent; exponent++ {
		// Deques round their capacity up to a power of two
		windowSize := uint64(Pow10(exponent))
		dequeCapacity := uint64(1)
		for dequeCapacity < windowSize {
			dequeCapacity <<= 1
		}
		bytes += 2 * 8 * dequeCapacity
	}
	return bytes
}

// Pow10 returns 10^exponent for small non-negative exponents.
func Pow10(exponent int) int {
	result := 1
	for i := 0; i < exponent; i++ {
		result *= 10
	}
	return result
}
