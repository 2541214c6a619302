package series

import (
	"errors"
	"fmt"

	"github.com/gammazero/deque"
)

// ErrEmptyWindow is returned when the extremum of a Tracker is requested before any value was advanced into it.
var ErrEmptyWindow = errors.New("window is empty")

// Kind indicates which extremum a Tracker keeps.
type Kind int

const (
	// Max trackers keep the largest value in the window at the front.
	Max Kind = iota
	// Min trackers keep the smallest value in the window at the front.
	Min
)

func (k Kind) String() string {
	if k == Max {
		return "max"
	}
	return "min"
}

// Values provides the value recorded at a position. Buffer implements Values.
type Values interface {
	ValueAt(position int64) (float64, error)
}

// Tracker is a monotonic deque of positions that provides the position of the largest, or smallest, value within a
// trailing window in O(1) time. Values read front to back are strictly decreasing for Max trackers, and strictly
// increasing for Min trackers. Trackers only store positions, and read values through a Values implementation.
//
// This type is not concurrency safe and must be guarded externally.
type Tracker struct {
	kind       Kind
	windowSize int64
	positions  *deque.Deque[int64]
}

// NewTracker returns a Tracker of the kind over a trailing window of windowSize positions. Panics if windowSize < 1.
func NewTracker(kind Kind, windowSize int) *Tracker {
	if windowSize < 1 {
		panic("windowSize must be >= 1")
	}
	// The deque never holds more than windowSize positions, so reserve that up front and never shrink below it.
	return &Tracker{
		kind:       kind,
		windowSize: int64(windowSize),
		positions:  deque.New[int64](windowSize, windowSize),
	}
}

// Advance records that value was appended at position. Positions that fell out of the window are purged from the front,
// and positions whose values are dominated by value are purged from the back, so that among equal values the most
// recent occurrence is kept. Returns an error if values cannot provide the value of a retained position.
func (t *Tracker) Advance(values Values, position int64, value float64) error {
	for t.positions.Len() > 0 && t.positions.Front() <= position-t.windowSize {
		t.positions.PopFront()
	}

	for t.positions.Len() > 0 {
		back, err := values.ValueAt(t.positions.Back())
		if err != nil {
			return fmt.Errorf("%s tracker for window %d: %w", t.kind, t.windowSize, err)
		}
		if !t.dominated(back, value) {
			break
		}
		t.positions.PopBack()
	}

	t.positions.PushBack(position)
	return nil
}

func (t *Tracker) dominated(existing, value float64) bool {
	if t.kind == Max {
		return existing <= value
	}
	return existing >= value
}

// Front returns the position holding the extremum of the current window, else ErrEmptyWindow if the Tracker was never
// advanced.
func (t *Tracker) Front() (int64, error) {
	if t.positions.Len() == 0 {
		return 0, fmt.Errorf("%w: %s tracker for window %d", ErrEmptyWindow, t.kind, t.windowSize)
	}
	return t.positions.Front(), nil
}

// Positions returns a copy of the retained positions, front to back.
func (t *Tracker) Positions() []int64 {
	result := make([]int64, t.positions.Len())
	for i := range result {
		result[i] = t.positions.At(i)
	}
	return result
}

// Len returns the number of retained positions.
func (t *Tracker) Len() int {
	return t.positions.Len()
}

// Kind returns the kind of extremum the Tracker keeps.
func (t *Tracker) Kind() Kind {
	return t.kind
}

// WindowSize returns the number of trailing positions the Tracker covers.
func (t *Tracker) WindowSize() int {
	return int(t.windowSize)
}
