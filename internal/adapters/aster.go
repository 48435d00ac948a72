package adapters

import (
	"context"
	"strings"
)

const (
	asterPremiumURL = "https://api.prod.aster.app/v1/premium-index"
	asterFundingURL = "https://api.prod.aster.app/v1/funding-info"
)

type asterPremiumEntry struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
	MarkPrice       string `json:"markPrice"`
}

type asterFundingInfoEntry struct {
	Symbol              string `json:"symbol"`
	FundingIntervalHours float64 `json:"fundingIntervalHours"`
}

// AsterAdapter fetches funding rates from Aster. It reads the venue's
// own declared per-symbol interval from a second endpoint rather than
// assuming 8h, per §9's interval-provenance note.
type AsterAdapter struct{}

func NewAsterAdapter() *AsterAdapter { return &AsterAdapter{} }

func (a *AsterAdapter) Name() string { return "aster" }

func (a *AsterAdapter) FetchFunding(ctx context.Context) ([]NormalizedRate, error) {
	var premium []asterPremiumEntry
	var fundingInfo []asterFundingInfoEntry

	if err := httpGetJSON(ctx, a.Name(), asterPremiumURL, &premium); err != nil {
		return nil, err
	}
	if err := httpGetJSON(ctx, a.Name(), asterFundingURL, &fundingInfo); err != nil {
		return nil, err
	}

	intervalBySymbol := make(map[string]float64, len(fundingInfo))
	for _, e := range fundingInfo {
		symbol := strings.ToUpper(e.Symbol)
		interval := e.FundingIntervalHours
		if interval <= 0 {
			interval = 8
		}
		intervalBySymbol[symbol] = interval
	}

	var out []NormalizedRate
	for _, e := range premium {
		symbol := strings.ToUpper(e.Symbol)
		if e.LastFundingRate == "" {
			continue
		}
		rate, err := parseFloat(e.LastFundingRate)
		if err != nil {
			continue
		}
		interval, ok := intervalBySymbol[symbol]
		if !ok {
			interval = 8
		}

		nr := NormalizedRate{
			Symbol:               symbol,
			Rate8h:               floatPtr(ScaleToEightHour(rate, interval)),
			FundingIntervalHours: interval,
		}
		if interval == 1 {
			nr.AnnualizedRate = floatPtr(Annualize1h(rate))
		} else {
			nr.AnnualizedRate = floatPtr(Annualize8h(*nr.Rate8h))
		}
		if mp, err := parseFloat(e.MarkPrice); err == nil {
			nr.MarkPrice = floatPtr(mp)
		}
		out = append(out, nr)
	}
	return out, nil
}
