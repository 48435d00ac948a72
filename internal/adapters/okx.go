package adapters

import (
	"context"
	"strings"
)

const okxTickersURL = "https://www.okx.com/api/v5/market/tickers?instType=SPOT"

type okxTickersResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data []okxTickerItem `json:"data"`
}

type okxTickerItem struct {
	InstID   string `json:"instId"`
	Last     string `json:"last"`
	VolCcy24h string `json:"volCcy24h"`
}

// OKXAdapter fetches spot prices from OKX. OKX does not supply
// perpetual funding rates for the venues this system tracks, so
// FetchFunding always returns an empty batch, matching §4.A's "return
// an empty list, never a partial success".
type OKXAdapter struct{}

func NewOKXAdapter() *OKXAdapter { return &OKXAdapter{} }

func (a *OKXAdapter) Name() string { return "okx" }

func (a *OKXAdapter) FetchFunding(ctx context.Context) ([]NormalizedRate, error) {
	return nil, nil
}

func (a *OKXAdapter) FetchSpot(ctx context.Context) ([]NormalizedRate, error) {
	var resp okxTickersResponse
	if err := httpGetJSON(ctx, a.Name(), okxTickersURL, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fetchFailed(a.Name(), strErr(resp.Msg))
	}

	var out []NormalizedRate
	for _, item := range resp.Data {
		if !strings.HasSuffix(item.InstID, "-USDT") || item.Last == "" {
			continue
		}
		price, err := parseFloat(item.Last)
		if err != nil {
			continue
		}
		symbol := strings.TrimSuffix(item.InstID, "-USDT")
		rate := NormalizedRate{Symbol: symbol, MarkPrice: floatPtr(price)}
		if v, err := parseFloat(item.VolCcy24h); err == nil {
			rate.Volume24h = floatPtr(v)
		}
		out = append(out, rate)
	}
	return out, nil
}
