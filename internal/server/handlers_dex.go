package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/ratewatch/internal/apperror"
	"github.com/aristath/ratewatch/internal/snapshotcache"
)

// fundingRateView is the JSON shape of one snapshotcache.Rate, named
// to match the wire format rather than the internal struct's Go
// field names.
type fundingRateView struct {
	Exchange             string     `json:"exchange"`
	Symbol               string     `json:"symbol"`
	Rate8h               *float64   `json:"rate_8h"`
	AnnualizedRate       *float64   `json:"annualized_rate"`
	MarkPrice            *float64   `json:"mark_price"`
	NextFundingTime      *time.Time `json:"next_funding_time,omitempty"`
	Volume24h            *float64   `json:"volume_24h"`
	FundingIntervalHours float64    `json:"funding_interval_hours"`
	HasBinanceSpot       bool       `json:"has_binance_spot"`
}

func toView(r snapshotcache.Rate) fundingRateView {
	return fundingRateView{
		Exchange:             r.Exchange,
		Symbol:               r.Symbol,
		Rate8h:               r.Rate8h,
		AnnualizedRate:       r.AnnualizedRate,
		MarkPrice:            r.MarkPrice,
		NextFundingTime:      r.NextFundingTime,
		Volume24h:            r.Volume24h,
		FundingIntervalHours: r.FundingIntervalHours,
		HasBinanceSpot:       r.HasBinanceSpot,
	}
}

// handleDexFundingRates is `GET /dex/funding-rates?force_refresh=bool`.
func (s *Server) handleDexFundingRates(w http.ResponseWriter, r *http.Request) {
	forceRefresh := r.URL.Query().Get("force_refresh") == "true"
	rates, updatedAt := s.eng.SnapshotCache.Get(r.Context(), forceRefresh)

	views := make([]fundingRateView, 0, len(rates))
	for _, rate := range rates {
		views = append(views, toView(rate))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"updated_at": updatedAt,
		"rates":      views,
	})
}

// handleDexFundingRate is `GET /dex/funding-rates/{symbol}?force_refresh=bool`.
func (s *Server) handleDexFundingRate(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	forceRefresh := r.URL.Query().Get("force_refresh") == "true"
	rates, updatedAt := s.eng.SnapshotCache.Get(r.Context(), forceRefresh)

	var matches []fundingRateView
	for _, rate := range rates {
		if strings.ToUpper(rate.Symbol) == symbol {
			matches = append(matches, toView(rate))
		}
	}

	if len(matches) == 0 {
		writeError(w, apperror.New(apperror.KindNotFound, "no funding rate found for symbol: "+symbol))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":     symbol,
		"updated_at": updatedAt,
		"rates":      matches,
	})
}
