package models

import "strings"

// Requests accepted on the inbound HTTP surface. Defined in domain so the router and handlers share them.

type Constraints struct {
	EarningsWindowOK *bool    `json:"earnings_window_ok,omitempty"`
	MaxSpreadPct     *float64 `json:"max_spread_pct,omitempty" validate:"omitempty,gte=0"`
}

type RecommendationRequest struct {
	Symbol      string       `json:"symbol" validate:"required"`
	RiskProfile string       `json:"risk_profile" validate:"required,oneof=conservative neutral aggressive"`
	CapitalUSD  float64      `json:"capital_usd" validate:"gt=0"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Normalize trims and upper-cases the symbol so "aapl " and "AAPL" share one rate-limit window.
func (r *RecommendationRequest) Normalize() {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
}
