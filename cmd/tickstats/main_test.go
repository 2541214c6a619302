package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tickstats/tickstats-go"
	"github.com/tickstats/tickstats-go/metrics"
)

func TestMux(t *testing.T) {
	m := metrics.New("tickstats")
	engine, err := m.Instrument(tickstats.NewBuilder().WithMaxKExponent(1)).Build()
	require.NoError(t, err)
	m.Observe(engine)
	registry := prometheus.NewRegistry()
	registry.MustRegister(m)
	server := httptest.NewServer(newMux(engine, registry, 4, zap.NewNop()))
	defer server.Close()

	resp, err := http.Post(server.URL+"/add_batch", "application/json", strings.NewReader(`{"symbol":"PLN","values":[1,2]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/stats/PLN/1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tickstats_ingest_batches_total{result="ok"} 1`)
	assert.Contains(t, string(body), "tickstats_symbols 1")
}
