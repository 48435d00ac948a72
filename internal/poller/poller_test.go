package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ratewatch/internal/adapters"
	"github.com/aristath/ratewatch/internal/domain"
)

type memSink struct {
	mu      sync.Mutex
	samples []domain.Sample
}

func (m *memSink) Insert(sample domain.Sample) (domain.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
	return sample, nil
}

func (m *memSink) all() []domain.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

func rate(symbol string, annualized float64) adapters.NormalizedRate {
	v := annualized
	return adapters.NormalizedRate{Symbol: symbol, AnnualizedRate: &v}
}

func TestApplyTopNPassesThroughWithoutVolume(t *testing.T) {
	rates := []adapters.NormalizedRate{rate("A", 1), rate("B", 2), rate("C", 3)}
	out := applyTopN(rates, 2)
	assert.Len(t, out, 3)
}

func TestApplyTopNKeepsHighestVolume(t *testing.T) {
	v1, v2, v3 := 100.0, 500.0, 10.0
	rates := []adapters.NormalizedRate{
		{Symbol: "A", Volume24h: &v1},
		{Symbol: "B", Volume24h: &v2},
		{Symbol: "C", Volume24h: &v3},
	}
	out := applyTopN(rates, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].Symbol)
	assert.Equal(t, "A", out[1].Symbol)
}

func TestPollerTickWritesThroughToSamples(t *testing.T) {
	sink := &memSink{}
	calls := 0
	fetch := func(ctx context.Context) ([]adapters.NormalizedRate, error) {
		calls++
		return []adapters.NormalizedRate{rate("BTC", 12.3)}, nil
	}

	p := New("test", time.Hour, fetch, FundingToSamples("binance"), sink, -1, zerolog.Nop())
	p.tick(context.Background())

	require.Len(t, sink.all(), 1)
	assert.Equal(t, "binance_funding_BTC", sink.all()[0].SourceID)
	assert.Equal(t, 1, calls)
}

func TestPollerTickContinuesAfterFetchError(t *testing.T) {
	sink := &memSink{}
	fetch := func(ctx context.Context) ([]adapters.NormalizedRate, error) {
		return nil, assert.AnError
	}

	p := New("test", time.Hour, fetch, FundingToSamples("binance"), sink, -1, zerolog.Nop())
	// Should not panic and should leave the sink untouched.
	p.tick(context.Background())
	assert.Empty(t, sink.all())
}

func TestPollerRunExitsOnCancel(t *testing.T) {
	sink := &memSink{}
	fetch := func(ctx context.Context) ([]adapters.NormalizedRate, error) { return nil, nil }
	p := New("test", time.Hour, fetch, FundingToSamples("binance"), sink, -1, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not exit promptly on cancellation")
	}
}
