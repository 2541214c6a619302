package metrics

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tickstats/tickstats-go"
)

// Result labels.
const (
	ResultOK             = "ok"
	ResultBatchTooLarge  = "batch_too_large"
	ResultNonFinite      = "non_finite_value"
	ResultSymbolLimit    = "symbol_limit_reached"
	ResultNotFound       = "symbol_not_found"
	ResultInvalidWindow  = "invalid_window_exponent"
	ResultInternal       = "internal"
	ResultUnknownFailure = "error"
)

// Result returns the result label for an Engine error.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, tickstats.ErrBatchTooLarge):
		return ResultBatchTooLarge
	case errors.Is(err, tickstats.ErrNonFiniteValue):
		return ResultNonFinite
	case errors.Is(err, tickstats.ErrSymbolLimitReached):
		return ResultSymbolLimit
	case errors.Is(err, tickstats.ErrSymbolNotFound):
		return ResultNotFound
	case errors.Is(err, tickstats.ErrInvalidWindowExponent):
		return ResultInvalidWindow
	case errors.Is(err, tickstats.ErrInternal):
		return ResultInternal
	default:
		return ResultUnknownFailure
	}
}

/*
Metrics is a prometheus.Collector for an Engine. Counters are fed by the listeners Instrument registers on a
tickstats.Builder, and symbol gauges are read from the Engine passed to Observe at collection time.

This type is concurrency safe.
*/
type Metrics struct {
	ingests  *prometheus.CounterVec
	values   prometheus.Counter
	queries  *prometheus.CounterVec
	admitted prometheus.Counter

	symbolsDesc  *prometheus.Desc
	capacityDesc *prometheus.Desc

	mu     sync.RWMutex
	engine tickstats.Engine
}

var _ prometheus.Collector = &Metrics{}

// New returns Metrics whose metric names are prefixed with the namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Ingest calls by result.",
		}, []string{"result"}),
		values: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_values_total",
			Help:      "Values appended to symbol series.",
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Query calls by window exponent and result.",
		}, []string{"k", "result"}),
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_admitted_total",
			Help:      "Symbols assigned a pre-allocated series.",
		}),
		symbolsDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "symbols"),
			"Symbols currently tracked.", nil, nil),
		capacityDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "symbols_capacity"),
			"Max symbols that can be tracked.", nil, nil),
	}
}

// Instrument registers listeners on the builder that record ingests, queries, and admissions, and returns the builder.
func (m *Metrics) Instrument(builder tickstats.Builder) tickstats.Builder {
	return builder.
		OnSymbolAdmitted(func(tickstats.SymbolAdmittedEvent) {
			m.admitted.Inc()
		}).
		OnIngest(func(e tickstats.IngestEvent) {
			m.ingests.WithLabelValues(Result(e.Error)).Inc()
			if e.Error == nil {
				m.values.Add(float64(e.Values))
			}
		}).
		OnQuery(func(e tickstats.QueryEvent) {
			m.queries.WithLabelValues(strconv.Itoa(e.K), Result(e.Error)).Inc()
		})
}

// Observe configures the Engine whose symbol counts are reported.
func (m *Metrics) Observe(engine tickstats.Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine = engine
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.ingests.Describe(ch)
	m.values.Describe(ch)
	m.queries.Describe(ch)
	m.admitted.Describe(ch)
	ch <- m.symbolsDesc
	ch <- m.capacityDesc
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.ingests.Collect(ch)
	m.values.Collect(ch)
	m.queries.Collect(ch)
	m.admitted.Collect(ch)

	m.mu.RLock()
	engine := m.engine
	m.mu.RUnlock()
	if engine != nil {
		ch <- prometheus.MustNewConstMetric(m.symbolsDesc, prometheus.GaugeValue, float64(engine.SymbolCount()))
		ch <- prometheus.MustNewConstMetric(m.capacityDesc, prometheus.GaugeValue, float64(engine.Config().MaxSymbols))
	}
}
