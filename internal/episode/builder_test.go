package episode

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalherd/signalherd/internal/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fill(id string, side models.Side, size, price float64, offsetMs int64) models.Fill {
	return models.Fill{
		FillID:    id,
		Address:   "0xabc",
		Asset:     "ETH",
		Side:      side,
		Size:      size,
		Price:     price,
		Timestamp: t0.Add(time.Duration(offsetMs) * time.Millisecond),
		Seq:       uint64(offsetMs),
	}
}

func TestBuildEpisodes_SimpleRoundTrip(t *testing.T) {
	fills := []models.Fill{
		fill("f1", models.SideBuy, 1, 100, 0),
		fill("f2", models.SideSell, 1, 110, 1),
	}

	episodes := BuildEpisodes(fills, DefaultConfig())
	require.Len(t, episodes, 1)

	e := episodes[0]
	assert.Equal(t, models.DirectionLong, e.Dir)
	assert.Equal(t, models.EpisodeClosed, e.Status)
	assert.Equal(t, models.CloseFullClose, e.CloseReason)
	assert.InDelta(t, 100.0, e.EntryVWAP, 1e-9)
	assert.InDelta(t, 110.0, e.ExitVWAP, 1e-9)
	assert.InDelta(t, 10.0, e.RealizedPnl, 1e-9)
	assert.InDelta(t, 1.0, e.RiskAmount, 1e-9) // 100 notional × 1% stop
	assert.InDelta(t, 2.0, e.RMultiple, 1e-9)  // 10R clamped to RMax
	assert.InDelta(t, 100.0, e.StopDistanceBps, 1e-9)
}

func TestBuildEpisodes_EntryGrowthRecomputesVWAP(t *testing.T) {
	fills := []models.Fill{
		fill("f1", models.SideBuy, 1, 100, 0),
		fill("f2", models.SideBuy, 3, 104, 1),
		fill("f3", models.SideSell, 4, 106, 2),
	}

	episodes := BuildEpisodes(fills, DefaultConfig())
	require.Len(t, episodes, 1)

	e := episodes[0]
	assert.InDelta(t, 103.0, e.EntryVWAP, 1e-9) // (1×100 + 3×104)/4
	assert.InDelta(t, 4.0, e.EntrySize, 1e-9)
	assert.InDelta(t, 412.0, e.EntryNotional, 1e-9)
	assert.InDelta(t, 4.12, e.RiskAmount, 1e-9)
	assert.InDelta(t, (106.0-103.0)*4, e.RealizedPnl, 1e-9)
}

func TestBuildEpisodes_PartialExitStaysOpen(t *testing.T) {
	fills := []models.Fill{
		fill("f1", models.SideBuy, 2, 100, 0),
		fill("f2", models.SideSell, 1, 105, 1),
	}

	episodes := BuildEpisodes(fills, DefaultConfig())
	require.Len(t, episodes, 1)

	e := episodes[0]
	assert.Equal(t, models.EpisodeOpen, e.Status)
	require.Len(t, e.ExitFills, 1)
	assert.Nil(t, e.ExitTime)
	assert.Zero(t, e.RealizedPnl)
}

func TestBuildEpisodes_DirectionFlipSharesFill(t *testing.T) {
	fills := []models.Fill{
		fill("f1", models.SideBuy, 1, 100, 0),
		fill("f2", models.SideSell, 3, 98, 1),
	}

	episodes := BuildEpisodes(fills, DefaultConfig())
	require.Len(t, episodes, 2)

	closed := episodes[0]
	assert.Equal(t, models.EpisodeClosed, closed.Status)
	assert.Equal(t, models.CloseDirectionFlip, closed.CloseReason)
	assert.Equal(t, models.DirectionLong, closed.Dir)

	flipped := episodes[1]
	assert.Equal(t, models.EpisodeOpen, flipped.Status)
	assert.Equal(t, models.DirectionShort, flipped.Dir)
	require.Len(t, flipped.EntryFills, 1)
	assert.Equal(t, "f2", flipped.EntryFills[0].FillID)
	assert.InDelta(t, 2.0, flipped.EntrySize, 1e-9) // only the overshoot opens the successor
	assert.InDelta(t, 1.0, closed.ExitSize, 1e-9)
	assert.Greater(t, flipped.StopPrice, flipped.EntryVWAP) // short stop sits above entry
}

func TestBuildEpisodes_ShortEpisodePnlSign(t *testing.T) {
	fills := []models.Fill{
		fill("f1", models.SideSell, 2, 100, 0),
		fill("f2", models.SideBuy, 2, 90, 1),
	}

	episodes := BuildEpisodes(fills, DefaultConfig())
	require.Len(t, episodes, 1)

	e := episodes[0]
	assert.Equal(t, models.DirectionShort, e.Dir)
	assert.InDelta(t, 20.0, e.RealizedPnl, 1e-9)
	assert.True(t, e.IsWin())
}

func TestBuildEpisodes_PrefersReportedPnl(t *testing.T) {
	reported := 7.5
	exit := fill("f2", models.SideSell, 1, 110, 1)
	exit.RealizedPnl = &reported

	episodes := BuildEpisodes([]models.Fill{
		fill("f1", models.SideBuy, 1, 100, 0),
		exit,
	}, DefaultConfig())
	require.Len(t, episodes, 1)
	assert.InDelta(t, 7.5, episodes[0].RealizedPnl, 1e-9)
}

func TestBuildEpisodes_RMultipleWinsorized(t *testing.T) {
	cfg := DefaultConfig()

	losing := BuildEpisodes([]models.Fill{
		fill("f1", models.SideBuy, 1, 100, 0),
		fill("f2", models.SideSell, 1, 50, 1), // -50R raw
	}, cfg)
	require.Len(t, losing, 1)
	assert.InDelta(t, cfg.RMin, losing[0].RMultiple, 1e-9)

	winning := BuildEpisodes([]models.Fill{
		fill("f3", models.SideBuy, 1, 100, 2),
		fill("f4", models.SideSell, 1, 200, 3), // +100R raw
	}, cfg)
	require.Len(t, winning, 1)
	assert.InDelta(t, cfg.RMax, winning[0].RMultiple, 1e-9)
}

func TestBuildEpisodes_EqualTimestampsOrderedBySeq(t *testing.T) {
	a := fill("f1", models.SideBuy, 1, 100, 0)
	b := fill("f2", models.SideSell, 1, 110, 0)
	b.Seq = a.Seq + 1

	// Pass in reversed arrival order; Seq must restore determinism.
	episodes := BuildEpisodes([]models.Fill{b, a}, DefaultConfig())
	require.Len(t, episodes, 1)
	assert.Equal(t, models.EpisodeClosed, episodes[0].Status)
	assert.InDelta(t, 10.0, episodes[0].RealizedPnl, 1e-9)
}

func TestBuildEpisodes_ZeroSizeFillsSkipped(t *testing.T) {
	fills := []models.Fill{
		fill("f0", models.SideBuy, 0, 99, 0), // no position yet
		fill("f1", models.SideBuy, 1, 100, 1),
		fill("f2", models.SideSell, 0, 105, 2), // mid-episode
		fill("f3", models.SideSell, 1, 110, 3),
	}

	episodes := BuildEpisodes(fills, DefaultConfig())
	require.Len(t, episodes, 1)

	e := episodes[0]
	assert.Equal(t, models.CloseFullClose, e.CloseReason)
	assert.InDelta(t, 100.0, e.EntryVWAP, 1e-9)
	assert.InDelta(t, 110.0, e.ExitVWAP, 1e-9)
	for _, f := range e.EntryFills {
		assert.NotZero(t, f.Size)
	}
	for _, f := range e.ExitFills {
		assert.NotZero(t, f.Size)
	}
}

func TestBuildEpisodes_IndependentKeys(t *testing.T) {
	other := fill("f3", models.SideBuy, 5, 40, 1)
	other.Asset = "SOL"

	episodes := BuildEpisodes([]models.Fill{
		fill("f1", models.SideBuy, 1, 100, 0),
		other,
		fill("f2", models.SideSell, 1, 101, 2),
	}, DefaultConfig())

	require.Len(t, episodes, 2)
	byAsset := map[string]models.Episode{}
	for _, e := range episodes {
		byAsset[e.Asset] = e
	}
	assert.Equal(t, models.EpisodeClosed, byAsset["ETH"].Status)
	assert.Equal(t, models.EpisodeOpen, byAsset["SOL"].Status)
}

func TestValidateEpisodes_CleanStream(t *testing.T) {
	fills := []models.Fill{
		fill("f1", models.SideBuy, 1, 100, 0),
		fill("f2", models.SideSell, 1, 110, 1),
		fill("f3", models.SideSell, 2, 110, 2),
		fill("f4", models.SideBuy, 2, 108, 3),
	}

	episodes := BuildEpisodes(fills, DefaultConfig())
	res := ValidateEpisodes(episodes, fills)
	assert.True(t, res.Valid, "diagnostics: %v", res.Diagnostics)
}

func TestValidateEpisodes_FlaggedGapsAndDuplicates(t *testing.T) {
	fills := []models.Fill{
		fill("f1", models.SideBuy, 1, 100, 0),
		fill("f2", models.SideSell, 1, 110, 1),
		fill("orphan", models.SideBuy, 1, 100, 2),
	}
	episodes := BuildEpisodes(fills[:2], DefaultConfig())

	res := ValidateEpisodes(episodes, fills)
	require.False(t, res.Valid)
	assert.Contains(t, res.Diagnostics[0], "orphan")

	// Duplicate a fill across two entry sets.
	dup := append([]models.Episode{}, episodes...)
	dup = append(dup, episodes[0])
	res = ValidateEpisodes(dup, fills[:2])
	assert.False(t, res.Valid)
}

func TestBuildEpisodes_EveryFillInExactlyOneEpisode(t *testing.T) {
	var fills []models.Fill
	sides := []models.Side{
		models.SideBuy, models.SideBuy, models.SideSell, models.SideSell,
		models.SideSell, models.SideBuy, models.SideBuy, models.SideSell,
	}
	sizes := []float64{2, 1, 1, 2, 3, 1, 2, 3}
	for i := range sides {
		fills = append(fills, fill(fmt.Sprintf("f%d", i), sides[i], sizes[i], 100+float64(i), int64(i)))
	}

	episodes := BuildEpisodes(fills, DefaultConfig())
	res := ValidateEpisodes(episodes, fills)
	assert.True(t, res.Valid, "diagnostics: %v", res.Diagnostics)
}
