package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tickstats/tickstats-go/series"
)

// ErrSymbolNotFound is returned when a symbol is fetched that was never admitted.
var ErrSymbolNotFound = errors.New("symbol not found")

/*
Registry maps symbols to the Pool Slots assigned to them. Symbols move from unassigned to assigned exactly once, and are
never removed.

Lookups for assigned symbols are lock-free. The first admission of a symbol installs a placeholder for it, and whichever
caller installed it claims the Slot exactly once, so that concurrent callers never assign two Slots to the same symbol and
never observe a Slot before it's assigned. Admissions of different symbols share no lock beyond the map's own.

Appends to a symbol's Series run under that Slot's write lock. Views run under its read lock when consistent reads are
enabled, else they may observe a Series in the middle of an append.

This type is concurrency safe.
*/
type Registry struct {
	config  *config
	pool    *Pool
	symbols sync.Map // string -> *admission
}

// admission assigns a Slot to a symbol once. slot is nil until the Slot is claimed.
type admission struct {
	once sync.Once
	slot atomic.Pointer[Slot]
	err  error
}

// Builder builds Registry instances.
//
// This type is not concurrency safe.
type Builder interface {
	// WithConsistentReads configures whether views are guarded against concurrent appends to the same Series. Defaults
	// to true.
	WithConsistentReads(consistentReads bool) Builder

	// OnAdmitted registers the listener to be called once when a symbol is assigned a Slot.
	OnAdmitted(listener func(symbol string)) Builder

	// Build returns a new Registry using the builder's configuration.
	Build() *Registry
}

type config struct {
	pool            *Pool
	consistentReads bool
	onAdmitted      func(string)
}

var _ Builder = &config{}

// NewBuilder returns a Builder for Registries that assign Slots from the pool.
func NewBuilder(pool *Pool) Builder {
	return &config{
		pool:            pool,
		consistentReads: true,
	}
}

// New returns a new Registry that assigns Slots from the pool, with consistent reads enabled.
func New(pool *Pool) *Registry {
	return NewBuilder(pool).Build()
}

func (c *config) WithConsistentReads(consistentReads bool) Builder {
	c.consistentReads = consistentReads
	return c
}

func (c *config) OnAdmitted(listener func(symbol string)) Builder {
	c.onAdmitted = listener
	return c
}

func (c *config) Build() *Registry {
	cCopy := *c
	return &Registry{
		config: &cCopy,
		pool:   c.pool,
	}
}

// AdmitOrFetch returns the Slot assigned to the symbol, assigning one from the Pool if the symbol is new. Returns
// ErrSymbolLimitReached if the symbol is new and the Pool is exhausted.
func (r *Registry) AdmitOrFetch(symbol string) (*Slot, error) {
	if slot, ok := r.load(symbol); ok {
		return slot, nil
	}

	value, _ := r.symbols.LoadOrStore(symbol, &admission{})
	a := value.(*admission)
	a.once.Do(func() {
		slot, err := r.pool.Claim()
		if err != nil {
			a.err = fmt.Errorf("%w: cannot admit %q, %d symbols are tracked", err, symbol, r.pool.Capacity())
			// Leave no mapping behind for a symbol that was never assigned a Slot
			r.symbols.CompareAndDelete(symbol, a)
			return
		}
		slot.symbol = symbol
		a.slot.Store(slot)
		if r.config.onAdmitted != nil {
			r.config.onAdmitted(symbol)
		}
	})
	if a.err != nil {
		return nil, a.err
	}
	return a.slot.Load(), nil
}

// Fetch returns the Slot assigned to the symbol, else ErrSymbolNotFound.
func (r *Registry) Fetch(symbol string) (*Slot, error) {
	if slot, ok := r.load(symbol); ok {
		return slot, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, symbol)
}

// Append admits or fetches the symbol, then appends the values to its Series while holding the Slot's write lock.
func (r *Registry) Append(symbol string, values []float64) error {
	slot, err := r.AdmitOrFetch(symbol)
	if err != nil {
		return err
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.series.Append(values...)
}

// View calls fn with the symbol's Series, else returns ErrSymbolNotFound. fn must not retain or mutate the Series.
func (r *Registry) View(symbol string, fn func(s *series.Series) error) error {
	slot, err := r.Fetch(symbol)
	if err != nil {
		return err
	}

	if r.config.consistentReads {
		slot.mu.RLock()
		defer slot.mu.RUnlock()
	}
	return fn(slot.series)
}

// Symbols returns the admitted symbols in sorted order.
func (r *Registry) Symbols() []string {
	var result []string
	r.symbols.Range(func(key, value any) bool {
		if value.(*admission).slot.Load() != nil {
			result = append(result, key.(string))
		}
		return true
	})
	slices.Sort(result)
	return result
}

// Len returns the number of admitted symbols.
func (r *Registry) Len() int {
	return r.pool.Claimed()
}

// Capacity returns the max number of symbols that can be admitted.
func (r *Registry) Capacity() int {
	return r.pool.Capacity()
}

// ConsistentReads returns whether views are guarded against concurrent appends.
func (r *Registry) ConsistentReads() bool {
	return r.config.consistentReads
}

func (r *Registry) load(symbol string) (*Slot, bool) {
	if value, ok := r.symbols.Load(symbol); ok {
		if slot := value.(*admission).slot.Load(); slot != nil {
			return slot, true
		}
	}
	return nil, false
}
