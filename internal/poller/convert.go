package poller

import (
	"time"

	"github.com/aristath/ratewatch/internal/adapters"
	"github.com/aristath/ratewatch/internal/domain"
	"github.com/aristath/ratewatch/internal/store"
)

// FundingToSamples builds the ToSampleFunc a funding-rate Poller uses:
// one Sample per rate, keyed by store.FundingSourceID, carrying the
// annualized rate as its Value (the figure formula references to
// `${funding:exchange-SYMBOL}` resolve against, per §4.E).
func FundingToSamples(exchange string) ToSampleFunc {
	return func(rate adapters.NormalizedRate) []domain.Sample {
		if rate.AnnualizedRate == nil {
			return nil
		}
		sample := domain.Sample{
			SourceID:    store.FundingSourceID(exchange, rate.Symbol),
			DisplayName: exchange + " " + rate.Symbol + " funding",
			Value:       rate.AnnualizedRate,
			Unit:        "%apy",
			Timestamp:   time.Now().UTC(),
		}
		return []domain.Sample{sample}
	}
}

// SpotToSamples builds the ToSampleFunc a spot-price Poller uses: one
// Sample per rate, keyed by store.SpotSourceID, carrying the mark
// price as its Value.
func SpotToSamples(exchange string) ToSampleFunc {
	return func(rate adapters.NormalizedRate) []domain.Sample {
		if rate.MarkPrice == nil {
			return nil
		}
		sample := domain.Sample{
			SourceID:    store.SpotSourceID(exchange, rate.Symbol),
			DisplayName: exchange + " " + rate.Symbol + " price",
			Value:       rate.MarkPrice,
			Unit:        "$",
			Timestamp:   time.Now().UTC(),
		}
		return []domain.Sample{sample}
	}
}

// AccountFetchFunc fetches one account's value/position snapshot.
type AccountFetchFunc func() (adapters.AccountSnapshot, error)

// AccountSamples converts an AccountSnapshot to the Samples an
// account Poller writes: one for the total account value, one per
// non-dust position.
func AccountSamples(label string, snap adapters.AccountSnapshot) []domain.Sample {
	now := time.Now().UTC()
	samples := []domain.Sample{{
		SourceID:    store.AccountValueSourceID(label),
		DisplayName: label + " account value",
		Value:       floatPtr(snap.AccountValue),
		Unit:        "$",
		Timestamp:   now,
	}}
	for symbol, size := range snap.Positions {
		samples = append(samples, domain.Sample{
			SourceID:    store.AccountPositionSourceID(label, symbol),
			DisplayName: label + " " + symbol + " position",
			Value:       floatPtr(size),
			Timestamp:   now,
		})
	}
	return samples
}

func floatPtr(v float64) *float64 { return &v }
