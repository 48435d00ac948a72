package adapters

import (
	"context"
	"strings"
)

const (
	backpackMarketsURL    = "https://api.backpack.exchange/api/v1/markets"
	backpackFundingURL    = "https://api.backpack.exchange/api/v1/fundingRates"
	backpackTickerURL     = "https://api.backpack.exchange/api/v1/ticker"
)

type backpackMarket struct {
	Symbol string `json:"symbol"`
}

type backpackFundingEntry struct {
	FundingRate string `json:"fundingRate"`
}

type backpackTicker struct {
	QuoteVolume string `json:"quoteVolume"`
}

// BackpackAdapter fetches funding rates and volumes from Backpack
// Exchange. Backpack quotes 1-hour funding (since switching in Aug
// 2025), scaled to 8h per §4.A.
type BackpackAdapter struct{}

func NewBackpackAdapter() *BackpackAdapter { return &BackpackAdapter{} }

func (a *BackpackAdapter) Name() string { return "backpack" }

func (a *BackpackAdapter) FetchFunding(ctx context.Context) ([]NormalizedRate, error) {
	var markets []backpackMarket
	if err := httpGetJSON(ctx, a.Name(), backpackMarketsURL, &markets); err != nil {
		return nil, err
	}

	var perpSymbols []string
	for _, m := range markets {
		if strings.HasSuffix(m.Symbol, "_USDC_PERP") {
			perpSymbols = append(perpSymbols, m.Symbol)
		}
	}
	if len(perpSymbols) == 0 {
		return nil, nil
	}

	rates := make([]*NormalizedRate, len(perpSymbols))
	boundedForEach(len(perpSymbols), func(i int) {
		symbol := perpSymbols[i]
		baseSymbol := strings.TrimSuffix(symbol, "_USDC_PERP")

		var funding []backpackFundingEntry
		if err := httpGetJSON(ctx, a.Name(), backpackFundingURL+"?symbol="+symbol+"&limit=1", &funding); err != nil || len(funding) == 0 {
			return
		}
		rate1h, err := parseFloat(funding[0].FundingRate)
		if err != nil {
			return
		}

		rate := &NormalizedRate{
			Symbol:               baseSymbol,
			Rate8h:               floatPtr(ScaleToEightHour(rate1h, 1)),
			AnnualizedRate:       floatPtr(Annualize1h(rate1h)),
			FundingIntervalHours: 1,
		}

		var ticker backpackTicker
		if err := httpGetJSON(ctx, a.Name(), backpackTickerURL+"?symbol="+symbol, &ticker); err == nil {
			if v, err := parseFloat(ticker.QuoteVolume); err == nil {
				rate.Volume24h = floatPtr(v)
			}
		}
		rates[i] = rate
	})

	var out []NormalizedRate
	for _, r := range rates {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}
