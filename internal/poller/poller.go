// Package poller runs one Poller goroutine per adapter (§4.B): a
// warm-up delay, then a fetch/sleep loop that normalizes a batch
// through the Top-N volume filter and writes it to the Store,
// cooperatively exiting on context cancellation.
package poller

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ratewatch/internal/adapters"
	"github.com/aristath/ratewatch/internal/domain"
)

// warmupDelay is the fixed pause before a Poller's first iteration, so
// that a fleet of pollers starting together does not all hit their
// upstreams in the same instant.
const warmupDelay = 5 * time.Second

// defaultTopN is the default cutoff §4.B's Top-N volume filter keeps.
const defaultTopN = 50

// FetchFunc fetches one batch of rates for a single adapter iteration.
// Returning an error means the fetch failed outright; a nil error
// with an empty slice is a legitimate empty batch.
type FetchFunc func(ctx context.Context) ([]adapters.NormalizedRate, error)

// ToSampleFunc converts one normalized rate into the Sample(s) it is
// persisted as. A funding adapter typically emits one Sample (the
// annualized rate); a spot adapter may emit one per field it carries.
type ToSampleFunc func(rate adapters.NormalizedRate) []domain.Sample

// Sink persists a Sample. In production this is *store.Store.Insert;
// tests can substitute an in-memory sink.
type Sink interface {
	Insert(sample domain.Sample) (domain.Sample, error)
}

// Poller periodically invokes Fetch, applies the Top-N volume filter,
// converts the survivors to Samples, and writes them to Sink.
type Poller struct {
	Name      string
	Interval  time.Duration
	Fetch     FetchFunc
	ToSamples ToSampleFunc
	Sink      Sink
	TopN      int // 0 means defaultTopN; negative disables the filter

	log zerolog.Logger
}

// New builds a Poller. topN == 0 uses the §4.B default of 50.
func New(name string, interval time.Duration, fetch FetchFunc, toSamples ToSampleFunc, sink Sink, topN int, log zerolog.Logger) *Poller {
	if topN == 0 {
		topN = defaultTopN
	}
	return &Poller{
		Name:      name,
		Interval:  interval,
		Fetch:     fetch,
		ToSamples: toSamples,
		Sink:      sink,
		TopN:      topN,
		log:       log.With().Str("poller", name).Logger(),
	}
}

// Run blocks, looping until ctx is cancelled. It never returns an
// error: per-iteration fetch failures are logged and the loop
// continues, never propagating to sibling pollers.
func (p *Poller) Run(ctx context.Context) {
	select {
	case <-time.After(warmupDelay):
	case <-ctx.Done():
		return
	}

	for {
		p.tick(ctx)

		select {
		case <-time.After(p.Interval):
		case <-ctx.Done():
			p.log.Debug().Msg("poller stopping")
			return
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	rates, err := p.Fetch(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("fetch failed")
		return
	}
	if len(rates) == 0 {
		return
	}

	rates = applyTopN(rates, p.TopN)

	stored := 0
	for _, rate := range rates {
		for _, sample := range p.ToSamples(rate) {
			if _, err := p.Sink.Insert(sample); err != nil {
				p.log.Error().Err(err).Str("source_id", sample.SourceID).Msg("store write failed")
				continue
			}
			stored++
		}
	}
	p.log.Debug().Int("stored", stored).Msg("poller tick complete")
}

// SampleFetchFunc fetches one batch of Samples directly, already
// shaped for storage. Account and hedge pollers use this instead of
// FetchFunc/ToSampleFunc since §4.B's Top-N volume filter only
// applies to rate-producing adapters.
type SampleFetchFunc func(ctx context.Context) ([]domain.Sample, error)

// TaskPoller is a Poller variant for producers that already emit
// Samples directly (account and hedge pollers), skipping the Top-N
// filter.
type TaskPoller struct {
	Name     string
	Interval time.Duration
	Fetch    SampleFetchFunc
	Sink     Sink

	log zerolog.Logger
}

// NewTask builds a TaskPoller.
func NewTask(name string, interval time.Duration, fetch SampleFetchFunc, sink Sink, log zerolog.Logger) *TaskPoller {
	return &TaskPoller{Name: name, Interval: interval, Fetch: fetch, Sink: sink, log: log.With().Str("poller", name).Logger()}
}

// Run blocks, looping until ctx is cancelled, following the same
// warm-up/fetch/sleep/cooperative-cancel shape as Poller.Run.
func (p *TaskPoller) Run(ctx context.Context) {
	select {
	case <-time.After(warmupDelay):
	case <-ctx.Done():
		return
	}

	for {
		samples, err := p.Fetch(ctx)
		if err != nil {
			p.log.Error().Err(err).Msg("fetch failed")
		} else {
			for _, sample := range samples {
				if _, err := p.Sink.Insert(sample); err != nil {
					p.log.Error().Err(err).Str("source_id", sample.SourceID).Msg("store write failed")
				}
			}
		}

		select {
		case <-time.After(p.Interval):
		case <-ctx.Done():
			p.log.Debug().Msg("poller stopping")
			return
		}
	}
}

// applyTopN implements §4.B's Top-N volume filter: when a batch
// carries volume_24h or turnover_24h data and has more than n
// entries, retain only the top n by volume (falling back to
// turnover). Batches without volume data pass through unchanged.
func applyTopN(rates []adapters.NormalizedRate, n int) []adapters.NormalizedRate {
	if n <= 0 || len(rates) <= n {
		return rates
	}

	hasVolume := false
	for _, r := range rates {
		if r.Volume24h != nil || r.Turnover24h != nil {
			hasVolume = true
			break
		}
	}
	if !hasVolume {
		return rates
	}

	sorted := make([]adapters.NormalizedRate, len(rates))
	copy(sorted, rates)
	volumeOf := func(r adapters.NormalizedRate) float64 {
		if r.Volume24h != nil {
			return *r.Volume24h
		}
		if r.Turnover24h != nil {
			return *r.Turnover24h
		}
		return 0
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return volumeOf(sorted[i]) > volumeOf(sorted[j])
	})
	return sorted[:n]
}
