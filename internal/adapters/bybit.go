package adapters

import (
	"context"
	"strings"
)

const bybitTickersURL = "https://api.bybit.com/v5/market/tickers?category=linear"
const bybitSpotTickersURL = "https://api.bybit.com/v5/market/tickers?category=spot"

type bybitTickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []bybitTickerEntry `json:"list"`
	} `json:"result"`
}

type bybitTickerEntry struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	FundingRate  string `json:"fundingRate"`
	Turnover24h  string `json:"turnover24h"`
	Volume24h    string `json:"volume24h"`
}

// BybitAdapter fetches funding rates and spot prices from Bybit's
// unified v5 tickers endpoint.
type BybitAdapter struct{}

func NewBybitAdapter() *BybitAdapter { return &BybitAdapter{} }

func (a *BybitAdapter) Name() string { return "bybit" }

func (a *BybitAdapter) FetchFunding(ctx context.Context) ([]NormalizedRate, error) {
	var resp bybitTickersResponse
	if err := httpGetJSON(ctx, a.Name(), bybitTickersURL, &resp); err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, fetchFailed(a.Name(), strErr(resp.RetMsg))
	}

	var out []NormalizedRate
	for _, e := range resp.Result.List {
		if !strings.HasSuffix(e.Symbol, "USDT") || e.FundingRate == "" {
			continue
		}
		rate8h, err := parseFloat(e.FundingRate)
		if err != nil {
			continue
		}
		symbol := strings.TrimSuffix(e.Symbol, "USDT")
		rate := NormalizedRate{
			Symbol:               symbol,
			Rate8h:               floatPtr(rate8h),
			AnnualizedRate:       floatPtr(Annualize8h(rate8h)),
			FundingIntervalHours: 8,
		}
		if mp, err := parseFloat(e.LastPrice); err == nil {
			rate.MarkPrice = floatPtr(mp)
		}
		if v, err := parseFloat(e.Turnover24h); err == nil {
			rate.Turnover24h = floatPtr(v)
		}
		out = append(out, rate)
	}
	return out, nil
}

func (a *BybitAdapter) FetchSpot(ctx context.Context) ([]NormalizedRate, error) {
	var resp bybitTickersResponse
	if err := httpGetJSON(ctx, a.Name(), bybitSpotTickersURL, &resp); err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, fetchFailed(a.Name(), strErr(resp.RetMsg))
	}

	var out []NormalizedRate
	for _, e := range resp.Result.List {
		if !strings.HasSuffix(e.Symbol, "USDT") || e.LastPrice == "" {
			continue
		}
		price, err := parseFloat(e.LastPrice)
		if err != nil {
			continue
		}
		symbol := strings.TrimSuffix(e.Symbol, "USDT")
		rate := NormalizedRate{Symbol: symbol, MarkPrice: floatPtr(price)}
		if v, err := parseFloat(e.Volume24h); err == nil {
			rate.Volume24h = floatPtr(v)
		}
		out = append(out, rate)
	}
	return out, nil
}

type stringError string

func (e stringError) Error() string { return string(e) }
func strErr(s string) error         { return stringError(s) }
