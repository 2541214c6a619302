package registry

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tickstats/tickstats-go/series"
)

func TestPoolClaim(t *testing.T) {
	pool := NewPool(2, 1)
	assert.Equal(t, 2, pool.Capacity())

	first, err := pool.Claim()
	require.NoError(t, err)
	second, err := pool.Claim()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, pool.Claimed())

	_, err = pool.Claim()
	assert.ErrorIs(t, err, ErrSymbolLimitReached)
	assert.Equal(t, 2, pool.Claimed())
}

func TestAdmitOrFetch(t *testing.T) {
	registry := New(NewPool(2, 1))

	slot, err := registry.AdmitOrFetch("PLN")
	require.NoError(t, err)
	assert.Equal(t, "PLN", slot.Symbol())

	again, err := registry.AdmitOrFetch("PLN")
	require.NoError(t, err)
	assert.Same(t, slot, again)

	fetched, err := registry.Fetch("PLN")
	require.NoError(t, err)
	assert.Same(t, slot, fetched)
	assert.Equal(t, 1, registry.Len())
}

func TestFetchUnknownSymbol(t *testing.T) {
	registry := New(NewPool(1, 1))

	_, err := registry.Fetch("USD")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	err = registry.View("USD", func(*series.Series) error { return nil })
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestPoolExhaustion(t *testing.T) {
	const maxSymbols = 3
	registry := New(NewPool(maxSymbols, 1))

	for i := 0; i < maxSymbols; i++ {
		require.NoError(t, registry.Append(fmt.Sprintf("S%d", i), []float64{1}))
	}
	err := registry.Append("S3", []float64{1})
	assert.ErrorIs(t, err, ErrSymbolLimitReached)

	// A rejected symbol leaves no mapping behind and stays rejected
	_, ok := registry.symbols.Load("S3")
	assert.False(t, ok)
	_, err = registry.Fetch("S3")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	_, err = registry.AdmitOrFetch("S3")
	assert.ErrorIs(t, err, ErrSymbolLimitReached)

	// Symbols admitted before the limit was reached keep working
	for i := 0; i < maxSymbols; i++ {
		assert.NoError(t, registry.Append(fmt.Sprintf("S%d", i), []float64{2}))
	}
	assert.Equal(t, []string{"S0", "S1", "S2"}, registry.Symbols())
	assert.Equal(t, maxSymbols, registry.Len())
	assert.Equal(t, maxSymbols, registry.Capacity())
}

// Asserts that concurrent first admissions of the same symbol assign a single Slot.
func TestConcurrentAdmissionOfSameSymbol(t *testing.T) {
	var admitted atomic.Int32
	registry := NewBuilder(NewPool(5, 1)).
		OnAdmitted(func(string) { admitted.Add(1) }).
		Build()

	slots := make([]*Slot, 50)
	var g errgroup.Group
	for i := range slots {
		g.Go(func() error {
			slot, err := registry.AdmitOrFetch("PLN")
			slots[i] = slot
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, slot := range slots {
		assert.Same(t, slots[0], slot)
	}
	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, 1, registry.Len())
}

// Asserts that the admission of a symbol does not wait on an in-progress admission of a different symbol.
func TestAdmissionsOfDifferentSymbolsAreIndependent(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	registry := NewBuilder(NewPool(2, 1)).
		OnAdmitted(func(symbol string) {
			if symbol == "PLN" {
				close(entered)
				<-release
			}
		}).
		Build()

	var g errgroup.Group
	g.Go(func() error {
		_, err := registry.AdmitOrFetch("PLN")
		return err
	})
	<-entered

	done := make(chan error, 1)
	go func() {
		_, err := registry.AdmitOrFetch("EUR")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("admission of EUR waited on the admission of PLN")
	}

	close(release)
	require.NoError(t, g.Wait())
	assert.Equal(t, []string{"EUR", "PLN"}, registry.Symbols())
}

// Asserts that racing admissions of more distinct symbols than the Pool holds admit exactly the Pool's capacity.
func TestConcurrentAdmissionOfDistinctSymbols(t *testing.T) {
	const maxSymbols = 8
	const symbolCount = 3 * maxSymbols
	const callersPerSymbol = 4
	pool := NewPool(maxSymbols, 1)
	registry := New(pool)

	symbols := make([]string, symbolCount)
	slots := make([][]*Slot, symbolCount)
	errs := make([][]error, symbolCount)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%02d", i)
		slots[i] = make([]*Slot, callersPerSymbol)
		errs[i] = make([]error, callersPerSymbol)
	}

	var g errgroup.Group
	for i := range symbols {
		for j := 0; j < callersPerSymbol; j++ {
			g.Go(func() error {
				slots[i][j], errs[i][j] = registry.AdmitOrFetch(symbols[i])
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())

	var winners []string
	owners := make(map[*Slot]string)
	for i, symbol := range symbols {
		if errs[i][0] != nil {
			// Every caller for a rejected symbol is rejected
			for j := range errs[i] {
				assert.ErrorIs(t, errs[i][j], ErrSymbolLimitReached, symbol)
				assert.Nil(t, slots[i][j], symbol)
			}
			continue
		}

		winners = append(winners, symbol)
		for j := range slots[i] {
			require.NoError(t, errs[i][j], symbol)
			assert.Same(t, slots[i][0], slots[i][j], symbol)
		}
		assert.Equal(t, symbol, slots[i][0].Symbol())
		owner, ok := owners[slots[i][0]]
		assert.False(t, ok, "slot assigned to both %s and %s", owner, symbol)
		owners[slots[i][0]] = symbol
	}

	assert.Len(t, winners, maxSymbols)
	assert.Equal(t, maxSymbols, pool.Claimed())
	assert.Equal(t, winners, registry.Symbols())
}

// Asserts that concurrent appends to the same symbol are serialized.
func TestConcurrentAppends(t *testing.T) {
	registry := New(NewPool(2, 2))

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		symbol := []string{"PLN", "EUR"}[i%2]
		g.Go(func() error {
			for j := 0; j < 10; j++ {
				if err := registry.Append(symbol, []float64{1, 2, 3}); err != nil {
					return err
				}
			}
			return nil
		})
		g.Go(func() error {
			err := registry.View(symbol, func(s *series.Series) error {
				assert.Equal(t, int64(0), s.Len()%3)
				return nil
			})
			// Views may run before the first append admits the symbol
			if errors.Is(err, ErrSymbolNotFound) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, symbol := range []string{"PLN", "EUR"} {
		require.NoError(t, registry.View(symbol, func(s *series.Series) error {
			assert.Equal(t, int64(300), s.Len())
			return nil
		}))
	}
}

func TestConsistentReadsConfiguration(t *testing.T) {
	assert.True(t, New(NewPool(1, 1)).ConsistentReads())
	assert.False(t, NewBuilder(NewPool(1, 1)).WithConsistentReads(false).Build().ConsistentReads())
}
