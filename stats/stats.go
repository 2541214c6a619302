package stats

import (
	"errors"
	"fmt"

	"github.com/tickstats/tickstats-go/series"
)

// ErrUnknownWindow is returned by Compute when the series has no trackers for the requested exponent.
var ErrUnknownWindow = errors.New("unknown window")

// ErrDequeInconsistency is returned by Compute when a tracker yields a position the series' buffer no longer retains.
var ErrDequeInconsistency = errors.New("deque inconsistency")

// Summary contains the aggregates for the trailing window of a series.
type Summary struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Last float64 `json:"last"`
	Avg  float64 `json:"avg"`
	Var  float64 `json:"var"`
}

// Compute returns the Summary of the most recent min(size, 10^exponent) values of the series. The variance is computed
// as a population variance when the window covers every value the series retains, else as a sample variance.
//
// The series must not be mutated concurrently.
func Compute(s *series.Series, exponent int) (Summary, error) {
	maxima, minima, ok := s.Trackers(exponent)
	if !ok {
		return Summary{}, fmt.Errorf("%w: exponent %d", ErrUnknownWindow, exponent)
	}

	buffer := s.Buffer()
	w, err := newWindow(buffer, series.Pow10(exponent))
	if err != nil {
		return Summary{}, err
	}

	maxValue, err := extremum(buffer, maxima)
	if err != nil {
		return Summary{}, err
	}
	minValue, err := extremum(buffer, minima)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Min:  minValue,
		Max:  maxValue,
		Last: w.last,
		Avg:  w.sum / float64(w.elements),
		Var:  w.variance(),
	}, nil
}

// window holds the sums for a trailing window, derived from the buffer's prefix sums.
type window struct {
	elements   int
	size       int
	last       float64
	sum        float64
	sumSquares float64
}

func newWindow(buffer *series.Buffer, windowSize int) (*window, error) {
	size := buffer.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: no values appended", series.ErrEmptyWindow)
	}
	elements := min(size, windowSize)
	end := buffer.LastPosition()
	start := end - int64(elements) + 1

	last, err := buffer.Read(end)
	if err != nil {
		return nil, err
	}
	w := &window{
		elements:   elements,
		size:       size,
		last:       last.Value,
		sum:        last.Sum,
		sumSquares: last.SumSquares,
	}
	if start > 0 {
		excludedSum, excludedSumSquares, err := buffer.Prefix(start - 1)
		if err != nil {
			return nil, err
		}
		w.sum -= excludedSum
		w.sumSquares -= excludedSumSquares
	}
	return w, nil
}

func (w *window) variance() float64 {
	if w.elements == 1 {
		return 0
	}
	n := float64(w.elements)
	if w.elements == w.size {
		mean := w.sum / n
		return w.sumSquares/n - mean*mean
	}
	return (w.sumSquares - w.sum*w.sum/n) / (n - 1)
}

func extremum(buffer *series.Buffer, tracker *series.Tracker) (float64, error) {
	position, err := tracker.Front()
	if err != nil {
		return 0, err
	}
	value, err := buffer.ValueAt(position)
	if err != nil {
		return 0, fmt.Errorf("%w: %s tracker for window %d yielded position %d: %w", ErrDequeInconsistency,
			tracker.Kind(), tracker.WindowSize(), position, err)
	}
	return value, nil
}
