package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalherd/signalherd/internal/models"
)

func series(values ...float64) []models.PnlPoint {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]models.PnlPoint, len(values))
	for i, v := range values {
		pts[i] = models.PnlPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return pts
}

func statsWith(pnl float64, wins, losses int, pts []models.PnlPoint) models.AccountStats {
	return models.AccountStats{
		Address:     "0xabc",
		RealizedPnl: pnl,
		NumTrades:   wins + losses,
		NumWins:     wins,
		NumLosses:   losses,
		PnlSeries:   pts,
	}
}

func TestStability_ZeroForUnprofitableOrShort(t *testing.T) {
	params := DefaultParams()
	var d models.ScoreDetails

	assert.Zero(t, stabilityScore(series(100), params, &d))
	assert.Zero(t, stabilityScore(series(100, 90), params, &d))
	assert.Zero(t, stabilityScore(series(100, 100), params, &d))
	assert.Zero(t, stabilityScore(nil, params, &d))
}

func TestStability_MonotoneCurveScoresHigh(t *testing.T) {
	params := DefaultParams()
	var d models.ScoreDetails

	smooth := stabilityScore(series(0, 10, 20, 30, 40, 50), params, &d)
	assert.InDelta(t, 1.0, d.UpFraction, 1e-9)
	assert.Zero(t, d.MaxDrawdown)
	assert.Zero(t, d.DownsideVolatility)
	assert.InDelta(t, 1.0, smooth, 1e-9)

	var d2 models.ScoreDetails
	choppy := stabilityScore(series(0, 30, 5, 35, 10, 50), params, &d2)
	assert.Less(t, choppy, smooth)
	assert.Greater(t, d2.MaxDrawdown, 0.0)
	assert.Greater(t, d2.UlcerIndex, 0.0)
}

func TestStability_TighterTolerancePunishesMore(t *testing.T) {
	loose := DefaultParams()
	tight := DefaultParams()
	tight.DrawdownTolerance = 0.05

	pts := series(0, 30, 5, 35, 10, 50)
	var d1, d2 models.ScoreDetails
	assert.Less(t, stabilityScore(pts, tight, &d2), stabilityScore(pts, loose, &d1))
}

func TestWinRateScore_Ladder(t *testing.T) {
	params := DefaultParams()

	cases := []struct {
		name         string
		wins, losses int
		want         float64
	}{
		{"suspicious perfect record", 1000, 0, 0},
		{"above threshold unpenalized", 65, 35, 0.65},
		{"deficit within 0.05", 56, 44, 0.56 * 0.85},
		{"deficit within 0.10", 51, 49, 0.51 * 0.70},
		{"deficit within 0.15", 46, 54, 0.46 * 0.50},
		{"deficit within 0.20", 41, 59, 0.41 * 0.30},
		{"deficit within 0.25", 36, 64, 0.36 * 0.15},
		{"deep deficit", 20, 80, 0.20 * 0.05},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := winRateScore(statsWith(0, tc.wins, tc.losses, nil), params)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestWinRateScore_StrictlyDecreasingBelowThreshold(t *testing.T) {
	params := DefaultParams()
	prev := math.Inf(1)
	// Sample win rates descending through every ladder rung.
	for _, wins := range []int{59, 56, 51, 46, 41, 36, 20, 5} {
		got := winRateScore(statsWith(0, wins, 100-wins, nil), params)
		assert.Less(t, got, prev, "win rate %d%%", wins)
		prev = got
	}
}

func TestTradeFreqScore_HardBoundsAndLadder(t *testing.T) {
	params := DefaultParams()

	assert.Zero(t, tradeFreqScore(2, params))   // below MinTrades
	assert.Zero(t, tradeFreqScore(201, params)) // above MaxTrades
	assert.Equal(t, 1.0, tradeFreqScore(3, params))
	assert.Equal(t, 1.0, tradeFreqScore(100, params))
	assert.Equal(t, 0.85, tradeFreqScore(125, params))
	assert.Equal(t, 0.70, tradeFreqScore(150, params))
	assert.Equal(t, 0.50, tradeFreqScore(175, params))
	assert.Equal(t, 0.30, tradeFreqScore(200, params))
}

func TestNormalizedPnl(t *testing.T) {
	params := DefaultParams()

	assert.Zero(t, normalizedPnl(-500, params))
	assert.Zero(t, normalizedPnl(0, params))
	// pnl = 10× reference hits the log ceiling exactly.
	assert.InDelta(t, 1.0, normalizedPnl(1000000, params), 1e-9)
	mid := normalizedPnl(100000, params)
	assert.Greater(t, mid, 0.0)
	assert.Less(t, mid, 1.0)
}

func TestComputePerformanceScore_FilteredShortSeries(t *testing.T) {
	res := ComputePerformanceScore(statsWith(500, 6, 4, series(100)), DefaultParams())
	assert.True(t, res.Filtered)
	assert.Equal(t, "pnl series too short", res.FilterReason)
	assert.Zero(t, res.Score)
}

func TestComputePerformanceScore_FilteredUnprofitable(t *testing.T) {
	res := ComputePerformanceScore(statsWith(-50, 6, 4, series(100, 80)), DefaultParams())
	assert.True(t, res.Filtered)
	assert.Equal(t, "not profitable", res.FilterReason)
	assert.Zero(t, res.Score)
}

func TestComputePerformanceScore_FullScoreModeReportsComposite(t *testing.T) {
	params := DefaultParams()
	params.ComputeFullScore = true

	res := ComputePerformanceScore(statsWith(500, 6, 4, series(100, 80)), params)
	assert.True(t, res.Filtered)
	assert.Equal(t, "not profitable", res.FilterReason)

	// Diagnostic mode reports the real composite despite the filter.
	want := res.Details.WeightedStability + res.Details.WeightedWinRate +
		res.Details.WeightedTradeFreq + res.Details.WeightedPnl
	assert.Greater(t, res.Score, 0.0)
	assert.InDelta(t, want, res.Score, 1e-9)
	assert.Greater(t, res.Details.WinRateScore, 0.0)
}

func TestComputePerformanceScore_CompositeIsWeightedSum(t *testing.T) {
	params := DefaultParams()
	res := ComputePerformanceScore(statsWith(50000, 7, 3, series(0, 10, 20, 30)), params)

	require.False(t, res.Filtered)
	want := res.Details.WeightedStability + res.Details.WeightedWinRate +
		res.Details.WeightedTradeFreq + res.Details.WeightedPnl
	assert.InDelta(t, want, res.Score, 1e-9)
	assert.InDelta(t, res.Details.StabilityScore*params.StabilityWeight,
		res.Details.WeightedStability, 1e-9)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	bad := DefaultParams()
	bad.StabilityWeight = 0.9
	assert.Error(t, bad.Validate())

	inverted := DefaultParams()
	inverted.MinTrades = 500
	assert.Error(t, inverted.Validate())

	unordered := DefaultParams()
	unordered.WinRatePenalties[1].UpperBound = 0.01
	assert.Error(t, unordered.Validate())
}
