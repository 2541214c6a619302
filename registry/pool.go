package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tickstats/tickstats-go/series"
)

// ErrSymbolLimitReached is returned when a new symbol is admitted while every Slot in the Pool is already assigned.
var ErrSymbolLimitReached = errors.New("symbol limit reached")

// Slot is a pre-allocated Series along with the lock that guards it. A Slot is assigned to at most one symbol, and is
// never released once assigned.
type Slot struct {
	mu     sync.RWMutex
	series *series.Series
	symbol string
}

// Symbol returns the symbol the Slot is assigned to.
func (s *Slot) Symbol() string {
	return s.symbol
}

// Pool pre-allocates a fixed number of Slots and hands each one out once. Slots are never returned to the Pool, which
// enforces a hard cap on the number of symbols without allocating when a symbol is admitted.
//
// This type is concurrency safe.
type Pool struct {
	slots   []Slot
	claimed atomic.Int64
}

// NewPool returns a Pool of size Slots, each holding a Series covering windows 10^1 through 10^maxExponent.
func NewPool(size int, maxExponent int) *Pool {
	p := &Pool{slots: make([]Slot, size)}
	for i := range p.slots {
		p.slots[i].series = series.New(maxExponent)
	}
	return p
}

// Claim returns the next unassigned Slot, else ErrSymbolLimitReached if every Slot has been claimed.
func (p *Pool) Claim() (*Slot, error) {
	for {
		claimed := p.claimed.Load()
		if claimed >= int64(len(p.slots)) {
			return nil, ErrSymbolLimitReached
		}
		if p.claimed.CompareAndSwap(claimed, claimed+1) {
			return &p.slots[claimed], nil
		}
	}
}

// Claimed returns the number of Slots that have been claimed.
func (p *Pool) Claimed() int {
	return int(p.claimed.Load())
}

// Capacity returns the total number of Slots.
func (p *Pool) Capacity() int {
	return len(p.slots)
}
