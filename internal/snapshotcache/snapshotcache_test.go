package snapshotcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ratewatch/internal/adapters"
)

type countingAdapter struct {
	name    string
	calls   int32
	delay   time.Duration
	symbols []string
}

func (a *countingAdapter) Name() string { return a.name }

func (a *countingAdapter) FetchFunding(ctx context.Context) ([]adapters.NormalizedRate, error) {
	atomic.AddInt32(&a.calls, 1)
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	var out []adapters.NormalizedRate
	for _, s := range a.symbols {
		v := 1.0
		out = append(out, adapters.NormalizedRate{Symbol: s, AnnualizedRate: &v})
	}
	return out, nil
}

func TestGetForcesRefreshOnFirstCall(t *testing.T) {
	a := &countingAdapter{name: "binance", symbols: []string{"BTC", "ETH"}}
	cache := New([]FundingSource{{Exchange: "binance", Adapter: a}}, nil, zerolog.Nop())

	batch, updated := cache.Get(context.Background(), false)
	require.Len(t, batch, 2)
	assert.False(t, updated.IsZero())
	assert.EqualValues(t, 1, atomic.LoadInt32(&a.calls))
}

func TestGetDoesNotRefreshWithinTTL(t *testing.T) {
	a := &countingAdapter{name: "binance", symbols: []string{"BTC"}}
	cache := New([]FundingSource{{Exchange: "binance", Adapter: a}}, nil, zerolog.Nop())

	cache.Get(context.Background(), false)
	cache.Get(context.Background(), false)
	cache.Get(context.Background(), false)

	assert.EqualValues(t, 1, atomic.LoadInt32(&a.calls))
}

func TestGetForceRefreshBypassesTTL(t *testing.T) {
	a := &countingAdapter{name: "binance", symbols: []string{"BTC"}}
	cache := New([]FundingSource{{Exchange: "binance", Adapter: a}}, nil, zerolog.Nop())

	cache.Get(context.Background(), false)
	cache.Get(context.Background(), true)

	assert.EqualValues(t, 2, atomic.LoadInt32(&a.calls))
}

func TestConcurrentGetDuringRefreshSingleFlights(t *testing.T) {
	a := &countingAdapter{name: "binance", symbols: []string{"BTC"}, delay: 100 * time.Millisecond}
	cache := New([]FundingSource{{Exchange: "binance", Adapter: a}}, nil, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Get(context.Background(), true)
		}()
	}
	wg.Wait()

	// All ten concurrent force-refreshes should have collapsed into a
	// small number of actual upstream round-trips, not ten.
	assert.Less(t, int(atomic.LoadInt32(&a.calls)), 10)
}

func TestRefreshAnnotatesBinanceSpotUniverse(t *testing.T) {
	a := &countingAdapter{name: "binance", symbols: []string{"BTC", "DOGE"}}
	universe := func(ctx context.Context) (map[string]bool, error) {
		return map[string]bool{"BTC": true}, nil
	}
	cache := New([]FundingSource{{Exchange: "binance", Adapter: a}}, universe, zerolog.Nop())

	batch, _ := cache.Get(context.Background(), false)
	byCoin := map[string]bool{}
	for _, r := range batch {
		byCoin[r.Symbol] = r.HasBinanceSpot
	}
	assert.True(t, byCoin["BTC"])
	assert.False(t, byCoin["DOGE"])
}
