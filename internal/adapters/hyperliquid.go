package adapters

import (
	"context"
	"encoding/json"
)

const hyperliquidURL = "https://api.hyperliquid.xyz/info"

type hyperliquidMetaAndCtx struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

type hyperliquidAssetCtx struct {
	Funding string `json:"funding"`
	MarkPx  string `json:"markPx"`
}

// HyperliquidAdapter fetches funding rates from Hyperliquid. The venue
// quotes a 1-hour rate, which is scaled to the 8-hour figure per
// §4.A's "rate_1h * 8" rule.
type HyperliquidAdapter struct{}

func NewHyperliquidAdapter() *HyperliquidAdapter { return &HyperliquidAdapter{} }

func (a *HyperliquidAdapter) Name() string { return "hyperliquid" }

func (a *HyperliquidAdapter) FetchFunding(ctx context.Context) ([]NormalizedRate, error) {
	payload := map[string]string{"type": "metaAndAssetCtxs"}
	var resp []json.RawMessage
	if err := httpPostJSON(ctx, a.Name(), hyperliquidURL, payload, &resp); err != nil {
		return nil, err
	}
	if len(resp) < 2 {
		return nil, fetchFailed(a.Name(), strErr("unexpected response shape"))
	}

	var meta hyperliquidMetaAndCtx
	if err := json.Unmarshal(resp[0], &meta); err != nil {
		return nil, fetchFailed(a.Name(), err)
	}
	var ctxs []hyperliquidAssetCtx
	if err := json.Unmarshal(resp[1], &ctxs); err != nil {
		return nil, fetchFailed(a.Name(), err)
	}
	if len(meta.Universe) != len(ctxs) {
		return nil, fetchFailed(a.Name(), strErr("universe/ctx length mismatch"))
	}

	var out []NormalizedRate
	for i, asset := range meta.Universe {
		c := ctxs[i]
		if c.Funding == "" {
			continue
		}
		rate1h, err := parseFloat(c.Funding)
		if err != nil {
			continue
		}
		rate := NormalizedRate{
			Symbol:               asset.Name,
			Rate8h:               floatPtr(ScaleToEightHour(rate1h, 1)),
			AnnualizedRate:       floatPtr(Annualize1h(rate1h)),
			FundingIntervalHours: 1,
		}
		if mp, err := parseFloat(c.MarkPx); err == nil {
			rate.MarkPrice = floatPtr(mp)
		}
		out = append(out, rate)
	}
	return out, nil
}
