package adapters

import "context"

const jupiterPriceURL = "https://price.jup.ag/v4/price"

// jupiterTargetTokens maps Solana mint addresses to our normalized
// symbol for the tokens this system tracks spot prices for.
var jupiterTargetTokens = map[string]string{
	"So11111111111111111111111111111111111111112":  "SOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
}

type jupiterPriceResponse struct {
	Data map[string]struct {
		Price string `json:"price"`
	} `json:"data"`
}

// JupiterAdapter fetches Solana spot prices from Jupiter's aggregator
// price API. Jupiter is a DEX aggregator, not a perpetuals venue, so
// it has no funding rates.
type JupiterAdapter struct{}

func NewJupiterAdapter() *JupiterAdapter { return &JupiterAdapter{} }

func (a *JupiterAdapter) Name() string { return "jupiter" }

func (a *JupiterAdapter) FetchSpot(ctx context.Context) ([]NormalizedRate, error) {
	ids := make([]string, 0, len(jupiterTargetTokens))
	for id := range jupiterTargetTokens {
		ids = append(ids, id)
	}
	query := ""
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += id
	}

	var resp jupiterPriceResponse
	if err := httpGetJSON(ctx, a.Name(), jupiterPriceURL+"?ids="+query, &resp); err != nil {
		return nil, err
	}

	var out []NormalizedRate
	for tokenID, priceData := range resp.Data {
		symbol, ok := jupiterTargetTokens[tokenID]
		if !ok || priceData.Price == "" {
			continue
		}
		price, err := parseFloat(priceData.Price)
		if err != nil {
			continue
		}
		out = append(out, NormalizedRate{Symbol: symbol, MarkPrice: floatPtr(price)})
	}
	return out, nil
}
