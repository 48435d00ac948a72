package adapters

import "context"

const lighterAccountURL = "https://mainnet.zklighter.elliot.ai/api/v1/account"

type lighterAccountResponse struct {
	Accounts []struct {
		Collateral string `json:"collateral"`
		Positions  []struct {
			Symbol        string `json:"symbol"`
			Position      string `json:"position"`
			Sign          float64 `json:"sign"`
			UnrealizedPnl string `json:"unrealized_pnl"`
		} `json:"positions"`
	} `json:"accounts"`
}

// LighterAccountAdapter fetches account value and positions from
// Lighter's public read-only account endpoint, keyed by account
// index — no API key or private key required.
type LighterAccountAdapter struct{}

func NewLighterAccountAdapter() *LighterAccountAdapter { return &LighterAccountAdapter{} }

func (a *LighterAccountAdapter) Name() string { return "lighter_account" }

func (a *LighterAccountAdapter) FetchAccountData(ctx context.Context, address, label string) (AccountSnapshot, error) {
	var resp lighterAccountResponse
	url := lighterAccountURL + "?by=index&value=" + address
	if err := httpGetJSON(ctx, a.Name(), url, &resp); err != nil {
		return AccountSnapshot{}, err
	}
	if len(resp.Accounts) == 0 {
		return AccountSnapshot{}, fetchFailed(a.Name(), strErr("no account found for "+label))
	}

	acct := resp.Accounts[0]
	collateral, _ := parseFloat(acct.Collateral)

	var unrealizedPnl float64
	positions := make(map[string]float64, len(acct.Positions))
	for _, p := range acct.Positions {
		if p.UnrealizedPnl != "" {
			if pnl, err := parseFloat(p.UnrealizedPnl); err == nil {
				unrealizedPnl += pnl
			}
		}
		if p.Symbol == "" || p.Position == "" {
			continue
		}
		size, err := parseFloat(p.Position)
		if err != nil {
			continue
		}
		sign := p.Sign
		if sign == 0 {
			sign = 1
		}
		positions[p.Symbol] = size * sign
	}

	return AccountSnapshot{
		AccountValue: collateral + unrealizedPnl,
		Positions:    FilterDust(positions),
	}, nil
}
