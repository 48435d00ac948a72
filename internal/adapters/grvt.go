package adapters

import (
	"context"
	"strings"
)

const (
	grvtInstrumentsURL = "https://market-data.grvt.io/full/v1/instruments"
	grvtFundingURL     = "https://market-data.grvt.io/full/v1/funding"
)

type grvtInstrumentsRequest struct {
	Kind     []string `json:"kind"`
	Quote    []string `json:"quote"`
	IsActive bool     `json:"is_active"`
}

type grvtFundingRequest struct {
	Kind  []string `json:"kind"`
	Quote []string `json:"quote"`
}

type grvtInstrumentsResponse struct {
	Result []struct {
		Instrument string `json:"instrument"`
		Base       string `json:"base"`
	} `json:"result"`
}

type grvtFundingResponse struct {
	Result []struct {
		Instrument       string `json:"instrument"`
		FundingRate8hAvg string `json:"funding_rate_8_h_avg"`
		FundingRate      string `json:"funding_rate"`
		MarkPrice        string `json:"mark_price"`
	} `json:"result"`
}

// GRVTAdapter fetches funding rates from GRVT. GRVT publishes an
// 8-hour-average field that is preferred when present; the plain
// funding_rate field is of ambiguous period (§9), so it is treated as
// already-8h only as a last resort.
type GRVTAdapter struct{}

func NewGRVTAdapter() *GRVTAdapter { return &GRVTAdapter{} }

func (a *GRVTAdapter) Name() string { return "grvt" }

func (a *GRVTAdapter) FetchFunding(ctx context.Context) ([]NormalizedRate, error) {
	var instruments grvtInstrumentsResponse
	instrumentsReq := grvtInstrumentsRequest{Kind: []string{"PERPETUAL"}, Quote: []string{"USDT"}, IsActive: true}
	if err := httpPostJSON(ctx, a.Name(), grvtInstrumentsURL, instrumentsReq, &instruments); err != nil {
		return nil, err
	}

	var funding grvtFundingResponse
	fundingReq := grvtFundingRequest{Kind: []string{"PERPETUAL"}, Quote: []string{"USDT"}}
	if err := httpPostJSON(ctx, a.Name(), grvtFundingURL, fundingReq, &funding); err != nil {
		return nil, err
	}

	instrumentMap := make(map[string]string, len(instruments.Result))
	for _, inst := range instruments.Result {
		if inst.Instrument != "" && inst.Base != "" {
			instrumentMap[inst.Instrument] = strings.ToUpper(inst.Base)
		}
	}

	var out []NormalizedRate
	for _, e := range funding.Result {
		symbol, ok := instrumentMap[e.Instrument]
		if !ok {
			continue
		}
		rateStr := e.FundingRate8hAvg
		if rateStr == "" {
			rateStr = e.FundingRate
		}
		if rateStr == "" {
			continue
		}
		rate8h, err := parseFloat(rateStr)
		if err != nil {
			continue
		}
		nr := NormalizedRate{
			Symbol:               symbol,
			Rate8h:               floatPtr(rate8h),
			AnnualizedRate:       floatPtr(Annualize8h(rate8h)),
			FundingIntervalHours: 8,
		}
		if mp, err := parseFloat(e.MarkPrice); err == nil {
			nr.MarkPrice = floatPtr(mp)
		}
		out = append(out, nr)
	}
	return out, nil
}
