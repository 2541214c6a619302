package tickstats

import (
	"errors"
	"fmt"
	"math"

	"github.com/tickstats/tickstats-go/registry"
	"github.com/tickstats/tickstats-go/series"
	"github.com/tickstats/tickstats-go/stats"
)

var (
	// ErrBatchTooLarge is returned by Ingest when a batch contains more values than the configured max batch size.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrNonFiniteValue is returned by Ingest when a batch contains a NaN or infinite value.
	ErrNonFiniteValue = errors.New("non-finite value")

	// ErrInvalidWindowExponent is returned by Query when k is outside [1, maxKExponent].
	ErrInvalidWindowExponent = errors.New("invalid window exponent")

	// ErrSymbolLimitReached is returned by Ingest when a new symbol is ingested after the max number of symbols has been
	// admitted.
	ErrSymbolLimitReached = registry.ErrSymbolLimitReached

	// ErrSymbolNotFound is returned by Query for symbols that were never ingested.
	ErrSymbolNotFound = registry.ErrSymbolNotFound

	// ErrInternal wraps failures that indicate a violated invariant, such as a tracker referencing a position the buffer no
	// longer retains. These are not recoverable by retrying.
	ErrInternal = errors.New("internal error")

	// ErrInvalidConfig is returned by Build when a configured limit is out of range.
	ErrInvalidConfig = errors.New("invalid config")
)

const (
	// MaxSupportedKExponent is the largest max window exponent an Engine can be configured with.
	MaxSupportedKExponent = series.MaxSupportedExponent

	DefaultMaxSymbols   = 10
	DefaultMaxKExponent = 5
	DefaultMaxBatchSize = 10000
)

// Stats contains the aggregates of a symbol's trailing window.
type Stats = stats.Summary

// Config contains the limits an Engine was built with. Limits cannot change after an Engine is built.
type Config struct {
	// The max number of distinct symbols that can be ingested.
	MaxSymbols int
	// The largest supported window exponent. Windows are 10^1 through 10^MaxKExponent.
	MaxKExponent int
	// The max number of values accepted by a single Ingest call.
	MaxBatchSize int
	// Whether queries are guarded against concurrent ingestion for the same symbol.
	ConsistentReads bool
}

/*
Engine ingests per-symbol observations and answers aggregate queries over the most recent 10^k observations of a symbol.
Memory for every symbol is pre-allocated when the Engine is built, and ingestion and queries run in O(1) amortized time.

This type is concurrency safe.
*/
type Engine interface {
	// Ingest appends the values to the symbol's series in order, with the first value being the oldest. The symbol is
	// admitted on its first ingest. Returns ErrBatchTooLarge if len(values) exceeds the max batch size, ErrNonFiniteValue
	// if any value is NaN or infinite, and ErrSymbolLimitReached if the symbol is new and the max number of symbols has
	// been admitted. Nothing is appended when an error is returned for a batch. Ingesting an empty batch does nothing.
	//
	// Rejecting NaN and infinite values is stricter than accepting any float64: a single non-finite value would poison
	// the symbol's prefix sums, and every later avg and var, for as long as the Engine runs.
	Ingest(symbol string, values []float64) error

	// Query returns the Stats for the symbol's most recent min(n, 10^k) values. Returns ErrInvalidWindowExponent if k is
	// outside [1, maxKExponent], and ErrSymbolNotFound if the symbol was never ingested.
	Query(symbol string, k int) (Stats, error)

	// Symbols returns the admitted symbols in sorted order.
	Symbols() []string

	// SymbolCount returns the number of admitted symbols.
	SymbolCount() int

	// Config returns the Engine's configuration.
	Config() Config
}

// Builder builds Engine instances.
//
// This type is not concurrency safe.
type Builder interface {
	// WithMaxSymbols configures the max number of distinct symbols. Defaults to DefaultMaxSymbols.
	WithMaxSymbols(maxSymbols int) Builder

	// WithMaxKExponent configures the largest window exponent, which must be within [1, MaxSupportedKExponent]. Each
	// symbol retains 10^maxKExponent values. Defaults to DefaultMaxKExponent.
	WithMaxKExponent(maxKExponent int) Builder

	// WithMaxBatchSize configures the max number of values per Ingest call. Defaults to DefaultMaxBatchSize.
	WithMaxBatchSize(maxBatchSize int) Builder

	// WithConsistentReads configures whether queries are guarded against concurrent ingestion for the same symbol. When
	// disabled, a query may observe a series in the middle of an ingest. Defaults to true.
	WithConsistentReads(consistentReads bool) Builder

	// OnSymbolAdmitted registers the listener to be called once when a symbol is first ingested.
	OnSymbolAdmitted(listener func(event SymbolAdmittedEvent)) Builder

	// OnIngest registers the listener to be called after every Ingest call.
	OnIngest(listener func(event IngestEvent)) Builder

	// OnQuery registers the listener to be called after every Query call.
	OnQuery(listener func(event QueryEvent)) Builder

	// Build returns a new Engine using the builder's configuration, else ErrInvalidConfig.
	Build() (Engine, error)
}

type config struct {
	Config
	onSymbolAdmitted func(SymbolAdmittedEvent)
	onIngest         func(IngestEvent)
	onQuery          func(QueryEvent)
}

var _ Builder = &config{}

// NewBuilder returns a Builder for Engines with the default limits.
func NewBuilder() Builder {
	return &config{
		Config: Config{
			MaxSymbols:      DefaultMaxSymbols,
			MaxKExponent:    DefaultMaxKExponent,
			MaxBatchSize:    DefaultMaxBatchSize,
			ConsistentReads: true,
		},
	}
}

// New returns a new Engine for the limits, else ErrInvalidConfig.
func New(maxSymbols int, maxKExponent int, maxBatchSize int) (Engine, error) {
	return NewBuilder().
		WithMaxSymbols(maxSymbols).
		WithMaxKExponent(maxKExponent).
		WithMaxBatchSize(maxBatchSize).
		Build()
}

func (c *config) WithMaxSymbols(maxSymbols int) Builder {
	c.MaxSymbols = maxSymbols
	return c
}

func (c *config) WithMaxKExponent(maxKExponent int) Builder {
	c.MaxKExponent = maxKExponent
	return c
}

func (c *config) WithMaxBatchSize(maxBatchSize int) Builder {
	c.MaxBatchSize = maxBatchSize
	return c
}

func (c *config) WithConsistentReads(consistentReads bool) Builder {
	c.ConsistentReads = consistentReads
	return c
}

func (c *config) OnSymbolAdmitted(listener func(event SymbolAdmittedEvent)) Builder {
	c.onSymbolAdmitted = listener
	return c
}

func (c *config) OnIngest(listener func(event IngestEvent)) Builder {
	c.onIngest = listener
	return c
}

func (c *config) OnQuery(listener func(event QueryEvent)) Builder {
	c.onQuery = listener
	return c
}

func (c *config) Build() (Engine, error) {
	if err := c.Config.Validate(); err != nil {
		return nil, err
	}

	cCopy := *c
	builder := registry.NewBuilder(registry.NewPool(c.MaxSymbols, c.MaxKExponent)).
		WithConsistentReads(c.ConsistentReads)
	if c.onSymbolAdmitted != nil {
		builder.OnAdmitted(func(symbol string) {
			cCopy.onSymbolAdmitted(SymbolAdmittedEvent{Symbol: symbol})
		})
	}
	return &engine{
		config:   &cCopy,
		registry: builder.Build(),
	}, nil
}

// Validate returns ErrInvalidConfig if any limit is out of range.
func (c Config) Validate() error {
	if c.MaxSymbols < 1 {
		return fmt.Errorf("%w: max symbols must be >= 1, got %d", ErrInvalidConfig, c.MaxSymbols)
	}
	if c.MaxKExponent < 1 || c.MaxKExponent > MaxSupportedKExponent {
		return fmt.Errorf("%w: max k exponent must be within [1, %d], got %d", ErrInvalidConfig, MaxSupportedKExponent,
			c.MaxKExponent)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("%w: max batch size must be >= 1, got %d", ErrInvalidConfig, c.MaxBatchSize)
	}
	return nil
}

// PreallocatedBytes returns the approximate number of bytes an Engine built with the config pre-allocates for series.
func (c Config) PreallocatedBytes() uint64 {
	return uint64(c.MaxSymbols) * series.Footprint(c.MaxKExponent)
}

type engine struct {
	config   *config
	registry *registry.Registry
}

func (e *engine) Ingest(symbol string, values []float64) error {
	err := e.ingest(symbol, values)
	if e.config.onIngest != nil {
		e.config.onIngest(IngestEvent{Symbol: symbol, Values: len(values), Error: err})
	}
	return err
}

func (e *engine) ingest(symbol string, values []float64) error {
	if len(values) > e.config.MaxBatchSize {
		return fmt.Errorf("%w: batch size %d is greater than allowed %d", ErrBatchTooLarge, len(values),
			e.config.MaxBatchSize)
	}
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: %v at index %d", ErrNonFiniteValue, value, i)
		}
	}
	if len(values) == 0 {
		return nil
	}

	if err := e.registry.Append(symbol, values); err != nil {
		if errors.Is(err, registry.ErrSymbolLimitReached) {
			return err
		}
		return fmt.Errorf("%w: ingest %q: %w", ErrInternal, symbol, err)
	}
	return nil
}

func (e *engine) Query(symbol string, k int) (Stats, error) {
	result, err := e.query(symbol, k)
	if e.config.onQuery != nil {
		e.config.onQuery(QueryEvent{Symbol: symbol, K: k, Stats: result, Error: err})
	}
	return result, err
}

func (e *engine) query(symbol string, k int) (Stats, error) {
	if k < 1 || k > e.config.MaxKExponent {
		return Stats{}, fmt.Errorf("%w: k value %d is not within [1, %d]", ErrInvalidWindowExponent, k,
			e.config.MaxKExponent)
	}

	var result Stats
	err := e.registry.View(symbol, func(s *series.Series) error {
		var err error
		result, err = stats.Compute(s, k)
		if err != nil {
			return fmt.Errorf("%w: query %q for k %d: %w", ErrInternal, symbol, k, err)
		}
		return nil
	})
	return result, err
}

func (e *engine) Symbols() []string {
	return e.registry.Symbols()
}

func (e *engine) SymbolCount() int {
	return e.registry.Len()
}

func (e *engine) Config() Config {
	return e.config.Config
}
