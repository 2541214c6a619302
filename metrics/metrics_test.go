package metrics

import (
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickstats/tickstats-go"
)

func TestMetrics(t *testing.T) {
	m := New("tickstats")
	engine, err := m.Instrument(tickstats.NewBuilder().
		WithMaxSymbols(2).
		WithMaxKExponent(1).
		WithMaxBatchSize(3)).
		Build()
	require.NoError(t, err)
	m.Observe(engine)

	require.NoError(t, engine.Ingest("PLN", []float64{1, 2, 3}))
	require.NoError(t, engine.Ingest("PLN", []float64{4}))
	assert.Error(t, engine.Ingest("PLN", []float64{1, 2, 3, 4}))
	_, err = engine.Query("PLN", 1)
	require.NoError(t, err)
	_, err = engine.Query("EUR", 1)
	assert.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ingests.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingests.WithLabelValues(ResultBatchTooLarge)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.values))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("1", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("1", ResultNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.admitted))

	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(m))
	expected := `
# HELP tickstats_symbols Symbols currently tracked.
# TYPE tickstats_symbols gauge
tickstats_symbols 1
# HELP tickstats_symbols_capacity Max symbols that can be tracked.
# TYPE tickstats_symbols_capacity gauge
tickstats_symbols_capacity 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"tickstats_symbols", "tickstats_symbols_capacity"))
}

func TestResult(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, ResultOK},
		{tickstats.ErrBatchTooLarge, ResultBatchTooLarge},
		{fmt.Errorf("%w: NaN", tickstats.ErrNonFiniteValue), ResultNonFinite},
		{tickstats.ErrSymbolLimitReached, ResultSymbolLimit},
		{tickstats.ErrSymbolNotFound, ResultNotFound},
		{tickstats.ErrInvalidWindowExponent, ResultInvalidWindow},
		{fmt.Errorf("%w: boom", tickstats.ErrInternal), ResultInternal},
		{fmt.Errorf("other"), ResultUnknownFailure},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, Result(tc.err))
	}
}
