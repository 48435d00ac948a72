package adapters

import (
	"context"
	"strings"
)

const lighterFundingURL = "https://mainnet.zklighter.elliot.ai/api/v1/funding-rates"

var lighterTargetSymbols = map[string]bool{"BTC": true, "ETH": true, "SOL": true}

type lighterFundingResponse struct {
	FundingRates []lighterFundingEntry `json:"funding_rates"`
}

type lighterFundingEntry struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Rate     string `json:"rate"`
}

// LighterAdapter fetches funding rates from Lighter, a zk-rollup
// perpetuals venue. Lighter does not provide mark price or next
// funding time.
type LighterAdapter struct{}

func NewLighterAdapter() *LighterAdapter { return &LighterAdapter{} }

func (a *LighterAdapter) Name() string { return "lighter" }

func (a *LighterAdapter) FetchFunding(ctx context.Context) ([]NormalizedRate, error) {
	var resp lighterFundingResponse
	if err := httpGetJSON(ctx, a.Name(), lighterFundingURL, &resp); err != nil {
		return nil, err
	}

	var out []NormalizedRate
	for _, e := range resp.FundingRates {
		symbol := strings.ToUpper(e.Symbol)
		exchange := strings.ToLower(e.Exchange)
		if exchange == "" {
			exchange = "lighter"
		}
		if exchange != "lighter" || !lighterTargetSymbols[symbol] || e.Rate == "" {
			continue
		}
		rate8h, err := parseFloat(e.Rate)
		if err != nil {
			continue
		}
		out = append(out, NormalizedRate{
			Symbol:               symbol,
			Rate8h:               floatPtr(rate8h),
			AnnualizedRate:       floatPtr(Annualize8h(rate8h)),
			FundingIntervalHours: 8,
		})
	}
	return out, nil
}
