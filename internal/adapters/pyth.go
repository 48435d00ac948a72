package adapters

import (
	"context"
	"math"
)

const pythPriceURL = "https://hermes.pyth.network/v2/updates/price/latest"

// pythTargetFeeds maps Pyth price-feed ids to our normalized symbol.
var pythTargetFeeds = map[string]string{
	"0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43": "BTC",
	"0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace": "ETH",
	"0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d": "SOL",
}

type pythUpdateResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price string `json:"price"`
			Expo  int    `json:"expo"`
		} `json:"price"`
	} `json:"parsed"`
}

// PythAdapter fetches oracle spot prices from the Pyth Network. Prices
// are quoted as an integer mantissa with a power-of-ten exponent.
type PythAdapter struct{}

func NewPythAdapter() *PythAdapter { return &PythAdapter{} }

func (a *PythAdapter) Name() string { return "pyth" }

func (a *PythAdapter) FetchSpot(ctx context.Context) ([]NormalizedRate, error) {
	query := ""
	for id := range pythTargetFeeds {
		if query != "" {
			query += "&"
		}
		query += "ids[]=" + id
	}

	var resp pythUpdateResponse
	if err := httpGetJSON(ctx, a.Name(), pythPriceURL+"?"+query, &resp); err != nil {
		return nil, err
	}

	var out []NormalizedRate
	for _, feed := range resp.Parsed {
		symbol, ok := pythTargetFeeds[feed.ID]
		if !ok || feed.Price.Price == "" {
			continue
		}
		mantissa, err := parseFloat(feed.Price.Price)
		if err != nil {
			continue
		}
		price := mantissa * math.Pow(10, float64(feed.Price.Expo))
		out = append(out, NormalizedRate{Symbol: symbol, MarkPrice: floatPtr(price)})
	}
	return out, nil
}
