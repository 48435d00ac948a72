package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/ratewatch/internal/adapters"
	"github.com/aristath/ratewatch/internal/config"
	"github.com/aristath/ratewatch/internal/domain"
	"github.com/aristath/ratewatch/internal/poller"
	"github.com/aristath/ratewatch/internal/store"
)

// fundingAdapterSet pairs each FundingAdapter with the exchange tag its
// samples are stored under.
type fundingAdapterSet struct {
	exchange string
	adapter  adapters.FundingAdapter
}

// spotAdapterSet is the SpotAdapter analogue.
type spotAdapterSet struct {
	exchange string
	adapter  adapters.SpotAdapter
}

// buildPollers assembles the full poller fleet named in §4.A's
// supplemented adapter list: one funding poller and one spot poller
// per venue that supports it, one account poller per on-chain label,
// and one hedge poller per custody basket. Funding, spot and account
// pollers can each be disabled by class via config; the hedge pollers
// always run.
func buildPollers(cfg *config.Config, sink poller.Sink, log zerolog.Logger) []runner {
	var out []runner

	if !cfg.DisableFundingPollers {
		for _, fs := range []fundingAdapterSet{
			{"binance", adapters.NewBinanceAdapter()},
			{"bybit", adapters.NewBybitAdapter()},
			{"okx", adapters.NewOKXAdapter()},
			{"backpack", adapters.NewBackpackAdapter()},
			{"aster", adapters.NewAsterAdapter()},
			{"hyperliquid", adapters.NewHyperliquidAdapter()},
			{"grvt", adapters.NewGRVTAdapter()},
			{"lighter", adapters.NewLighterAdapter()},
		} {
			out = append(out, fundingPoller(fs, sink, log))
		}
	}

	if !cfg.DisableSpotPollers {
		for _, ss := range []spotAdapterSet{
			{"binance", adapters.NewBinanceAdapter()},
			{"bybit", adapters.NewBybitAdapter()},
			{"okx", adapters.NewOKXAdapter()},
			{"jupiter", adapters.NewJupiterAdapter()},
			{"pyth", adapters.NewPythAdapter()},
		} {
			out = append(out, spotPoller(ss, sink, log))
		}
	}

	if !cfg.DisableAccountPollers && cfg.LighterAccountIndex != "" {
		out = append(out, accountPoller(cfg.LighterAccountIndex, "lighter", adapters.NewLighterAccountAdapter(), sink, log))
	}

	out = append(out, hedgePoller(adapters.NewHedgeCalculator(adapters.ALPHedgeConfig), sink, log))
	out = append(out, hedgePoller(adapters.NewHedgeCalculator(adapters.JLPHedgeConfig), sink, log))

	return out
}

func fundingPoller(fs fundingAdapterSet, sink poller.Sink, log zerolog.Logger) *poller.Poller {
	toSamples := func(rate adapters.NormalizedRate) []domain.Sample {
		if rate.Rate8h == nil {
			return nil
		}
		var annualized float64
		if rate.AnnualizedRate != nil {
			annualized = *rate.AnnualizedRate
		} else {
			annualized = adapters.Annualize8h(*rate.Rate8h)
		}
		return []domain.Sample{{
			SourceID:    store.FundingSourceID(fs.exchange, rate.Symbol),
			DisplayName: fmt.Sprintf("%s %s funding", fs.exchange, rate.Symbol),
			Value:       &annualized,
			Unit:        "%",
		}}
	}
	return poller.New(fs.exchange+"_funding", fundingPollInterval, fs.adapter.FetchFunding, toSamples, sink, 0, log)
}

func spotPoller(ss spotAdapterSet, sink poller.Sink, log zerolog.Logger) *poller.Poller {
	toSamples := func(rate adapters.NormalizedRate) []domain.Sample {
		if rate.MarkPrice == nil {
			return nil
		}
		price := *rate.MarkPrice
		return []domain.Sample{{
			SourceID:    store.SpotSourceID(ss.exchange, rate.Symbol),
			DisplayName: fmt.Sprintf("%s %s spot", ss.exchange, rate.Symbol),
			Value:       &price,
			Unit:        "$",
		}}
	}
	return poller.New(ss.exchange+"_spot", spotPollInterval, ss.adapter.FetchSpot, toSamples, sink, 0, log)
}

func accountPoller(address, label string, a adapters.AccountAdapter, sink poller.Sink, log zerolog.Logger) *poller.TaskPoller {
	fetch := func(ctx context.Context) ([]domain.Sample, error) {
		snap, err := a.FetchAccountData(ctx, address, label)
		if err != nil {
			return nil, err
		}
		samples := []domain.Sample{{
			SourceID:    store.AccountValueSourceID(label),
			DisplayName: fmt.Sprintf("%s account value", label),
			Value:       &snap.AccountValue,
			Unit:        "$",
		}}
		for symbol, size := range snap.Positions {
			size := size
			samples = append(samples, domain.Sample{
				SourceID:    store.AccountPositionSourceID(label, symbol),
				DisplayName: fmt.Sprintf("%s %s position", label, symbol),
				Value:       &size,
			})
		}
		return samples, nil
	}
	return poller.NewTask(a.Name(), accountPollInterval, fetch, sink, log)
}

// hedgePoller wires a HedgeCalculator as a webhook-style producer:
// its computed per-asset hedge sizes are written under
// "hedge_<pool>_<symbol>" source ids so formulas can reference them as
// ${webhook:hedge_<pool>_<symbol>}, the same syntax any distilled value
// uses.
func hedgePoller(h *adapters.HedgeCalculator, sink poller.Sink, log zerolog.Logger) *poller.TaskPoller {
	fetch := func(ctx context.Context) ([]domain.Sample, error) {
		// The pool token amount a holder is hedging is itself a
		// configured monitor value in production; polling the
		// calculator with a fixed amount of 1 reports the *per-unit*
		// hedge ratio, which formulas scale by the actual holding.
		hedges, err := h.Calculate(ctx, 1)
		if err != nil {
			return nil, err
		}
		samples := make([]domain.Sample, 0, len(hedges))
		for symbol, size := range hedges {
			size := size
			samples = append(samples, domain.Sample{
				SourceID:    fmt.Sprintf("hedge_%s_%s", h.Name(), symbol),
				DisplayName: fmt.Sprintf("%s %s hedge ratio", h.Name(), symbol),
				Value:       &size,
			})
		}
		return samples, nil
	}
	return poller.NewTask("hedge_"+h.Name(), hedgePollInterval, fetch, sink, log)
}
