package models

// AccountStats is the aggregate input to one account's scoring pass,
// built from that account's episodes and/or an exchange-reported
// cumulative PnL series. Recomputed per scoring cycle, never persisted.
type AccountStats struct {
	Address     string     `json:"address"`
	RealizedPnl float64    `json:"realized_pnl"`
	NumTrades   int        `json:"num_trades"`
	NumWins     int        `json:"num_wins"`
	NumLosses   int        `json:"num_losses"`
	PnlSeries   []PnlPoint `json:"pnl_series,omitempty"`
}

// ScoreDetails carries the per-component breakdown behind a composite
// score, for attribution and the leaderboard surface.
type ScoreDetails struct {
	StabilityScore     float64 `json:"stability_score"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	UlcerIndex         float64 `json:"ulcer_index"`
	UpFraction         float64 `json:"up_fraction"`
	DownsideVolatility float64 `json:"downside_volatility"`
	WinRateScore       float64 `json:"win_rate_score"`
	TradeFreqScore     float64 `json:"trade_freq_score"`
	NormalizedPnl      float64 `json:"normalized_pnl"`

	// Weighted contributions, showing each component's impact on the
	// composite.
	WeightedStability float64 `json:"weighted_stability"`
	WeightedWinRate   float64 `json:"weighted_win_rate"`
	WeightedTradeFreq float64 `json:"weighted_trade_freq"`
	WeightedPnl       float64 `json:"weighted_pnl"`
}

// ScoringResult is one account's composite score for a scoring cycle.
type ScoringResult struct {
	Address      string       `json:"address"`
	Score        float64      `json:"score"`
	Filtered     bool         `json:"filtered"`
	FilterReason string       `json:"filter_reason,omitempty"`
	Details      ScoreDetails `json:"details"`
}

// RankedAccount is a ScoringResult placed in the population ranking. Rank
// is 1-indexed; Weight is the normalized share among the top N and exactly
// zero outside it. The full set is superseded wholesale each cycle.
type RankedAccount struct {
	ScoringResult
	Rank   int     `json:"rank"`
	Weight float64 `json:"weight"`
}
