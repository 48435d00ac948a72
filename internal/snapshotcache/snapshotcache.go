// Package snapshotcache implements §4.D: a single merged "latest
// batch" across every rate-producing adapter, refreshed at most once
// per TTL and single-flighted so concurrent readers during a refresh
// all observe the same round-trip.
package snapshotcache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/ratewatch/internal/adapters"
)

// ttl is the freshness window after which Get forces a refresh even
// without an explicit force_refresh.
const ttl = 60 * time.Second

// Rate is one entry in the cached batch: a normalized rate annotated
// with whether Binance also lists a spot market for the symbol.
type Rate struct {
	adapters.NormalizedRate
	Exchange       string
	HasBinanceSpot bool
}

// FundingSource is one rate-producing adapter the cache composes
// over, paired with the exchange name its rates are tagged with.
type FundingSource struct {
	Exchange string
	Adapter  adapters.FundingAdapter
}

// BinanceSpotUniverse fetches the current set of symbols with a
// Binance spot market, used to annotate has_binance_spot.
type BinanceSpotUniverse func(ctx context.Context) (map[string]bool, error)

// Cache is the single merged snapshot described by §4.D.
type Cache struct {
	sources       []FundingSource
	spotUniverse  BinanceSpotUniverse
	group         singleflight.Group
	log           zerolog.Logger

	mu          sync.RWMutex
	batch       []Rate
	lastUpdated time.Time
}

// New builds a Cache over the given funding sources.
func New(sources []FundingSource, spotUniverse BinanceSpotUniverse, log zerolog.Logger) *Cache {
	return &Cache{
		sources:      sources,
		spotUniverse: spotUniverse,
		log:          log.With().Str("component", "snapshot_cache").Logger(),
	}
}

// Get returns the cached batch and its freshness timestamp, refreshing
// first if forceRefresh is set or the cache has exceeded its TTL.
// Concurrent Get calls during an in-flight refresh share the same
// round-trip via singleflight.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) ([]Rate, time.Time) {
	c.mu.RLock()
	stale := forceRefresh || time.Since(c.lastUpdated) > ttl
	batch, updated := c.batch, c.lastUpdated
	c.mu.RUnlock()

	if !stale {
		return batch, updated
	}

	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		return c.refresh(ctx), nil
	})
	if err != nil {
		// refresh never actually returns an error; this branch exists
		// only to satisfy singleflight's signature.
		return batch, updated
	}
	refreshed := v.([]Rate)

	c.mu.RLock()
	defer c.mu.RUnlock()
	return refreshed, c.lastUpdated
}

func (c *Cache) refresh(ctx context.Context) []Rate {
	var spotUniverse map[string]bool
	if c.spotUniverse != nil {
		if u, err := c.spotUniverse(ctx); err != nil {
			c.log.Error().Err(err).Msg("binance spot universe fetch failed")
		} else {
			spotUniverse = u
		}
	}

	type result struct {
		exchange string
		rates    []adapters.NormalizedRate
		err      error
	}
	results := make([]result, len(c.sources))

	var wg sync.WaitGroup
	for i, src := range c.sources {
		wg.Add(1)
		go func(i int, src FundingSource) {
			defer wg.Done()
			rates, err := src.Adapter.FetchFunding(ctx)
			results[i] = result{exchange: src.Exchange, rates: rates, err: err}
		}(i, src)
	}
	wg.Wait()

	var merged []Rate
	for _, r := range results {
		if r.err != nil {
			c.log.Error().Err(r.err).Str("exchange", r.exchange).Msg("snapshot cache source refresh failed")
			continue
		}
		for _, rate := range r.rates {
			merged = append(merged, Rate{
				NormalizedRate: rate,
				Exchange:       r.exchange,
				HasBinanceSpot: spotUniverse[rate.Symbol],
			})
		}
	}

	c.mu.Lock()
	c.batch = merged
	c.lastUpdated = time.Now().UTC()
	c.mu.Unlock()

	return merged
}
