package adapters

import "context"

const (
	binanceFundingURL = "https://fapi.binance.com/fapi/v1/premiumIndex"
	binanceSpotURL     = "https://api.binance.com/api/v3/ticker/24hr"
)

// binanceFundingSymbols maps Binance's futures pair naming to our
// normalized coin symbol.
var binanceFundingSymbols = map[string]string{
	"BTCUSDT": "BTC",
	"ETHUSDT": "ETH",
	"SOLUSDT": "SOL",
}

type binancePremiumEntry struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
	MarkPrice       string `json:"markPrice"`
	NextFundingTime int64  `json:"nextFundingTime"`
}

type binanceTickerEntry struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

// BinanceAdapter fetches funding rates and spot prices from Binance.
type BinanceAdapter struct{}

func NewBinanceAdapter() *BinanceAdapter { return &BinanceAdapter{} }

func (a *BinanceAdapter) Name() string { return "binance" }

func (a *BinanceAdapter) FetchFunding(ctx context.Context) ([]NormalizedRate, error) {
	var entries []binancePremiumEntry
	if err := httpGetJSON(ctx, a.Name(), binanceFundingURL, &entries); err != nil {
		return nil, err
	}

	var out []NormalizedRate
	for _, e := range entries {
		symbol, ok := binanceFundingSymbols[e.Symbol]
		if !ok || e.LastFundingRate == "" {
			continue
		}
		rate8h, err := parseFloat(e.LastFundingRate)
		if err != nil {
			continue
		}
		rate := NormalizedRate{
			Symbol:               symbol,
			Rate8h:               floatPtr(rate8h),
			AnnualizedRate:       floatPtr(Annualize8h(rate8h)),
			FundingIntervalHours: 8,
		}
		if mp, err := parseFloat(e.MarkPrice); err == nil {
			rate.MarkPrice = floatPtr(mp)
		}
		if e.NextFundingTime > 0 {
			rate.NextFundingTime = timePtr(millisToTime(e.NextFundingTime))
		}
		out = append(out, rate)
	}
	return out, nil
}

func (a *BinanceAdapter) FetchSpot(ctx context.Context) ([]NormalizedRate, error) {
	var entries []binanceTickerEntry
	if err := httpGetJSON(ctx, a.Name(), binanceSpotURL, &entries); err != nil {
		return nil, err
	}

	target := map[string]bool{"BTCUSDT": true, "ETHUSDT": true, "SOLUSDT": true}
	var out []NormalizedRate
	for _, e := range entries {
		if !target[e.Symbol] {
			continue
		}
		price, err := parseFloat(e.LastPrice)
		if err != nil {
			continue
		}
		symbol := e.Symbol[:len(e.Symbol)-4]
		rate := NormalizedRate{Symbol: symbol, MarkPrice: floatPtr(price)}
		if v, err := parseFloat(e.QuoteVolume); err == nil {
			rate.Volume24h = floatPtr(v)
			rate.Turnover24h = floatPtr(v)
		}
		out = append(out, rate)
	}
	return out, nil
}
