package adapters

import "context"

// CustodyAccount is one asset custody within a liquidity pool whose
// on-chain position this system hedges against.
type CustodyAccount struct {
	Symbol   string
	Address  string
	Decimals int
}

// HedgeConfig parametrizes one pool's hedge calculation. Both the ALP
// and JLP monitors in the original system shared this shape: a pool
// token with an assets/locked/short-interest layout at fixed byte
// offsets, and a set of per-asset custody accounts.
type HedgeConfig struct {
	PoolName           string
	PoolMintAddress    string
	AssetsOffset       int
	ShortPositionOffset int
	FeesUserShare      float64 // 0 if the pool has no fee-reserve term
	Custodies          []CustodyAccount
	StablecoinSymbols  map[string]bool
}

// HedgeCalculator computes the position a holder of `poolAmount` pool
// tokens would need to short per underlying asset to stay
// delta-neutral: hedge = (owned - locked + shortOI [+ fees*share]) /
// totalSupply * poolAmount.
type HedgeCalculator struct {
	cfg HedgeConfig
}

func NewHedgeCalculator(cfg HedgeConfig) *HedgeCalculator {
	return &HedgeCalculator{cfg: cfg}
}

func (h *HedgeCalculator) Name() string { return h.cfg.PoolName }

// Calculate returns, for each non-stablecoin custody, the required
// signed hedge size for holding poolAmount units of the pool token.
func (h *HedgeCalculator) Calculate(ctx context.Context, poolAmount float64) (map[string]float64, error) {
	if poolAmount <= 0 {
		return nil, nil
	}

	mintData, err := fetchAccountData(ctx, h.cfg.PoolName, h.cfg.PoolMintAddress)
	if err != nil {
		return nil, err
	}
	totalSupplyRaw, err := readUint64LE(mintData, h.cfg.AssetsOffset)
	if err != nil {
		return nil, err
	}
	if totalSupplyRaw == 0 {
		return nil, fetchFailed(h.cfg.PoolName, errZeroSupply)
	}

	positions := make(map[string]float64, len(h.cfg.Custodies))
	boundedForEach(len(h.cfg.Custodies), func(i int) {
		custody := h.cfg.Custodies[i]
		if h.cfg.StablecoinSymbols[custody.Symbol] {
			return
		}

		data, err := fetchAccountData(ctx, h.cfg.PoolName, custody.Address)
		if err != nil {
			return
		}
		owned, err := readInt64LE(data, h.cfg.AssetsOffset)
		if err != nil {
			return
		}
		var locked, shortOI int64
		if h.cfg.ShortPositionOffset > 0 {
			shortOI, _ = readInt64LE(data, h.cfg.ShortPositionOffset)
		}

		net := scaleByDecimals(owned-locked+shortOI, custody.Decimals)
		totalSupply := scaleByDecimals(int64(totalSupplyRaw), custody.Decimals)
		if totalSupply == 0 {
			return
		}
		hedge := net / totalSupply * poolAmount
		if h.cfg.FeesUserShare > 0 {
			hedge += h.cfg.FeesUserShare * poolAmount
		}
		positions[custody.Symbol] = hedge
	})

	return positions, nil
}

var errZeroSupply = fetchFailed("hedge", strErr("pool total supply is zero"))

// ALPHedgeConfig is the ALP pool's hedge configuration, grounded on
// the offsets the original monitor read directly off-chain.
var ALPHedgeConfig = HedgeConfig{
	PoolName:            "alp",
	PoolMintAddress:     "4yCLi5yWGzpTWMQ1iWHG5CrGYAdBkhyEdsuSugjDUqwj",
	AssetsOffset:        368,
	ShortPositionOffset: 600,
	Custodies: []CustodyAccount{
		{Symbol: "BONK", Address: "9n5qQNwjnYH9763vF9LForC37XZhb7pDsMGBDKWLpump", Decimals: 5},
		{Symbol: "JITOSOL", Address: "DzKfaYgdbuM8cHaJRrFF7EqB6fJ7Y8sjYLBmpYiH8NrW", Decimals: 9},
		{Symbol: "WBTC", Address: "3FJuhXYYPn2PTpLBRzG8Ci8SDfDdJtGpTHS1g9k22nqr", Decimals: 8},
	},
	StablecoinSymbols: map[string]bool{},
}

// JLPHedgeConfig is the JLP pool's hedge configuration. JLP additionally
// carries a fee-reserve term the holder is entitled to a 75% share of.
var JLPHedgeConfig = HedgeConfig{
	PoolName:      "jlp",
	PoolMintAddress: "27G8MtK7VtTcCHkpASjSDdkWWYfoqT6ggEuKidVJidD4",
	AssetsOffset:  214,
	FeesUserShare: 0.75,
	Custodies: []CustodyAccount{
		{Symbol: "SOL", Address: "7xS2gz2bTp3fwCC7knJvUWTEU9Tycczu6VhJYKgi1wdz", Decimals: 9},
		{Symbol: "ETH", Address: "AQCGyheWPLeo6Qp9WpYS9m3Qj479t7R636N9ey1rEjEn", Decimals: 8},
		{Symbol: "WBTC", Address: "5Pv3gM9JrFFH883SWAhvJC9RPYmo8UNxuFtv5bMMALkm", Decimals: 8},
		{Symbol: "USDC", Address: "G18jKKXQwBbrHeiK3C9MRXhkHsLHf7XgCSisykV46EZa", Decimals: 6},
		{Symbol: "USDT", Address: "4vkNeXiYEUizLdrpdPS1eC2mccyM4NUPRtERrk6ZETkk", Decimals: 6},
	},
	StablecoinSymbols: map[string]bool{"USDC": true, "USDT": true},
}
