// Package scoring computes composite skill scores for the account
// population and ranks the top performers. The composite blends four
// components — equity-curve stability, win rate, trade frequency, and
// normalized PnL — with stability dominating, so accounts that grind out
// smooth growth outrank lucky streaks of similar size.
package scoring

import (
	"fmt"
	"math"

	"github.com/signalherd/signalherd/internal/models"
)

// PenaltyBucket is one rung of a progressive penalty ladder: the
// multiplier applies when the measured deficit (or excess) is at most
// UpperBound. Ladders are ordered tables so thresholds stay data-driven
// and individually testable.
type PenaltyBucket struct {
	UpperBound float64 `yaml:"upper_bound"`
	Multiplier float64 `yaml:"multiplier"`
}

// Params holds every tunable of the scoring formula.
type Params struct {
	// Component weights, expected to sum to 1.0.
	StabilityWeight float64 `yaml:"stability_weight"`
	WinRateWeight   float64 `yaml:"win_rate_weight"`
	TradeFreqWeight float64 `yaml:"trade_freq_weight"`
	PnlWeight       float64 `yaml:"pnl_weight"`

	// Stability tolerances: smaller punishes harder.
	DrawdownTolerance float64 `yaml:"drawdown_tolerance"` // D0
	DownsideTolerance float64 `yaml:"downside_tolerance"` // S0

	// Win-rate component.
	WinRateThreshold  float64         `yaml:"win_rate_threshold"`
	SuspiciousWinRate float64         `yaml:"suspicious_win_rate"`
	WinRatePenalties  []PenaltyBucket `yaml:"win_rate_penalties"` // keyed by deficit below threshold

	// Trade-frequency component.
	MinTrades          int             `yaml:"min_trades"`
	MaxTrades          int             `yaml:"max_trades"`
	TradeFreqThreshold int             `yaml:"trade_freq_threshold"`
	TradeFreqPenalties []PenaltyBucket `yaml:"trade_freq_penalties"` // keyed by excess above threshold

	// Normalized-PnL component.
	PnlReference float64 `yaml:"pnl_reference"`

	// ComputeFullScore scores filtered accounts anyway, for diagnostics.
	ComputeFullScore bool `yaml:"compute_full_score"`
}

// DefaultParams returns the production scoring formula.
func DefaultParams() Params {
	return Params{
		StabilityWeight: 0.50,
		WinRateWeight:   0.25,
		TradeFreqWeight: 0.15,
		PnlWeight:       0.10,

		DrawdownTolerance: 0.20,
		DownsideTolerance: 0.03,

		WinRateThreshold:  0.60,
		SuspiciousWinRate: 0.999,
		WinRatePenalties: []PenaltyBucket{
			{UpperBound: 0.05, Multiplier: 0.85},
			{UpperBound: 0.10, Multiplier: 0.70},
			{UpperBound: 0.15, Multiplier: 0.50},
			{UpperBound: 0.20, Multiplier: 0.30},
			{UpperBound: 0.25, Multiplier: 0.15},
			{UpperBound: math.Inf(1), Multiplier: 0.05},
		},

		MinTrades:          3,
		MaxTrades:          200,
		TradeFreqThreshold: 100,
		TradeFreqPenalties: []PenaltyBucket{
			{UpperBound: 25, Multiplier: 0.85},
			{UpperBound: 50, Multiplier: 0.70},
			{UpperBound: 75, Multiplier: 0.50},
			{UpperBound: math.Inf(1), Multiplier: 0.30},
		},

		PnlReference: 100000,
	}
}

// Validate rejects configurations that would silently distort scores.
// Run once at load time; the hot path assumes a valid Params.
func (p Params) Validate() error {
	sum := p.StabilityWeight + p.WinRateWeight + p.TradeFreqWeight + p.PnlWeight
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("component weights sum to %.4f, want 1.0", sum)
	}
	if p.DrawdownTolerance <= 0 || p.DownsideTolerance <= 0 {
		return fmt.Errorf("stability tolerances must be positive (D0=%.3f, S0=%.3f)",
			p.DrawdownTolerance, p.DownsideTolerance)
	}
	if p.WinRateThreshold <= 0 || p.WinRateThreshold >= 1 {
		return fmt.Errorf("win rate threshold %.3f outside (0,1)", p.WinRateThreshold)
	}
	if p.MinTrades > p.MaxTrades {
		return fmt.Errorf("min trades %d exceeds max trades %d", p.MinTrades, p.MaxTrades)
	}
	if err := validateLadder("win_rate_penalties", p.WinRatePenalties); err != nil {
		return err
	}
	if err := validateLadder("trade_freq_penalties", p.TradeFreqPenalties); err != nil {
		return err
	}
	if p.PnlReference <= 0 {
		return fmt.Errorf("pnl reference must be positive, got %.2f", p.PnlReference)
	}
	return nil
}

func validateLadder(name string, ladder []PenaltyBucket) error {
	if len(ladder) == 0 {
		return fmt.Errorf("%s: empty penalty ladder", name)
	}
	for i := 1; i < len(ladder); i++ {
		if ladder[i].UpperBound <= ladder[i-1].UpperBound {
			return fmt.Errorf("%s: bucket %d upper bound %.3f not increasing", name, i, ladder[i].UpperBound)
		}
	}
	if !math.IsInf(ladder[len(ladder)-1].UpperBound, 1) {
		return fmt.Errorf("%s: last bucket must be unbounded", name)
	}
	return nil
}

// ladderMultiplier finds the first bucket covering x. Ladders are short,
// so a linear scan wins over binary search.
func ladderMultiplier(ladder []PenaltyBucket, x float64) float64 {
	for _, b := range ladder {
		if x <= b.UpperBound {
			return b.Multiplier
		}
	}
	return ladder[len(ladder)-1].Multiplier
}

// ComputePerformanceScore scores one account. Insufficient-data and
// not-profitable conditions surface as Filtered results, never errors.
func ComputePerformanceScore(stats models.AccountStats, params Params) models.ScoringResult {
	result := models.ScoringResult{Address: stats.Address}

	stability := stabilityScore(stats.PnlSeries, params, &result.Details)

	switch {
	case len(stats.PnlSeries) < 2:
		result.Filtered = true
		result.FilterReason = "pnl series too short"
	case !profitable(stats.PnlSeries):
		result.Filtered = true
		result.FilterReason = "not profitable"
	}
	if result.Filtered && !params.ComputeFullScore {
		return result
	}

	winRate := winRateScore(stats, params)
	tradeFreq := tradeFreqScore(stats.NumTrades, params)
	normPnl := normalizedPnl(stats.RealizedPnl, params)

	result.Details.StabilityScore = stability
	result.Details.WinRateScore = winRate
	result.Details.TradeFreqScore = tradeFreq
	result.Details.NormalizedPnl = normPnl

	result.Details.WeightedStability = stability * params.StabilityWeight
	result.Details.WeightedWinRate = winRate * params.WinRateWeight
	result.Details.WeightedTradeFreq = tradeFreq * params.TradeFreqWeight
	result.Details.WeightedPnl = normPnl * params.PnlWeight

	result.Score = result.Details.WeightedStability +
		result.Details.WeightedWinRate +
		result.Details.WeightedTradeFreq +
		result.Details.WeightedPnl

	// In diagnostic mode a filtered account reports its full composite;
	// Filtered stays set, so ranking still excludes it.
	return result
}

func profitable(series []models.PnlPoint) bool {
	return len(series) >= 2 && series[len(series)-1].Value > series[0].Value
}

// stabilityScore measures how smoothly the rebased equity curve grew.
// The curve is normalized into [0,1]; up-fraction rewards steady gains
// while the exponential terms punish drawdown depth, ulcer index, and
// downside volatility against their tolerance scales.
func stabilityScore(series []models.PnlPoint, params Params, details *models.ScoreDetails) float64 {
	if len(series) < 2 || !profitable(series) {
		return 0
	}

	base := series[0].Value
	rebased := make([]float64, len(series))
	minV, maxV := math.Inf(1), math.Inf(-1)
	for i, p := range series {
		rebased[i] = p.Value - base
		minV = math.Min(minV, rebased[i])
		maxV = math.Max(maxV, rebased[i])
	}
	if maxV == minV {
		return 0
	}

	curve := make([]float64, len(rebased))
	for i, v := range rebased {
		curve[i] = (v - minV) / (maxV - minV)
	}

	var ups int
	var downSquares float64
	var downCount int
	for i := 1; i < len(curve); i++ {
		d := curve[i] - curve[i-1]
		if d > 0 {
			ups++
		} else if d < 0 {
			downSquares += d * d
			downCount++
		}
	}
	upFraction := float64(ups) / float64(len(curve)-1)

	downsideVol := 0.0
	if downCount > 0 {
		downsideVol = math.Sqrt(downSquares / float64(downCount))
	}

	peak := curve[0]
	var maxDrawdown, ddSquares float64
	for _, v := range curve {
		peak = math.Max(peak, v)
		dd := 0.0
		if peak > 0 {
			dd = (peak - v) / peak
		}
		maxDrawdown = math.Max(maxDrawdown, dd)
		ddSquares += dd * dd
	}
	ulcer := math.Sqrt(ddSquares / float64(len(curve)))

	details.UpFraction = upFraction
	details.DownsideVolatility = downsideVol
	details.MaxDrawdown = maxDrawdown
	details.UlcerIndex = ulcer

	return upFraction *
		math.Exp(-maxDrawdown/params.DrawdownTolerance) *
		math.Exp(-ulcer/params.DrawdownTolerance) *
		math.Exp(-downsideVol/params.DownsideTolerance)
}

// winRateScore applies the progressive deficit ladder below threshold and
// zeroes implausibly perfect records outright.
func winRateScore(stats models.AccountStats, params Params) float64 {
	decided := stats.NumWins + stats.NumLosses
	if decided == 0 {
		return 0
	}
	winRate := float64(stats.NumWins) / float64(decided)

	if winRate >= params.SuspiciousWinRate {
		return 0
	}
	if winRate >= params.WinRateThreshold {
		return math.Min(1, winRate)
	}

	deficit := params.WinRateThreshold - winRate
	return winRate * ladderMultiplier(params.WinRatePenalties, deficit)
}

// tradeFreqScore hard-filters degenerate activity levels and discounts
// overtrading above the soft threshold.
func tradeFreqScore(numTrades int, params Params) float64 {
	if numTrades < params.MinTrades || numTrades > params.MaxTrades {
		return 0
	}
	if numTrades <= params.TradeFreqThreshold {
		return 1
	}
	excess := float64(numTrades - params.TradeFreqThreshold)
	return ladderMultiplier(params.TradeFreqPenalties, excess)
}

// normalizedPnl compresses absolute PnL into [0,1] on a log scale so it
// only ever acts as a tiebreaker.
func normalizedPnl(pnl float64, params Params) float64 {
	if pnl <= 0 {
		return 0
	}
	v := math.Log(1+pnl/params.PnlReference) / math.Log(11)
	return math.Max(0, math.Min(1, v))
}
