package application

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalherd/signalherd/internal/models"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverlaysYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	payload := []byte(`
top_n: 5
consensus:
  min_traders: 4
`)
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.TopN)
	assert.Equal(t, 4, cfg.Consensus.MinTraders)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.70, cfg.Consensus.MinPct, 1e-9)
	assert.Equal(t, 8, cfg.ScoringWorkers)
}

func TestValidateRejectsInvertedEpisodeBounds(t *testing.T) {
	cfg := Default()
	cfg.Episode.RMin = 3.0
	cfg.Episode.RMax = -1.0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSmallVoteBuffer(t *testing.T) {
	cfg := Default()
	cfg.VoteBufferSize = cfg.Consensus.MinTraders - 1
	assert.Error(t, cfg.Validate())
}

func TestScoreParallelPreservesOrder(t *testing.T) {
	accounts := make([]models.AccountStats, 20)
	for i := range accounts {
		accounts[i] = models.AccountStats{Address: string(rune('a' + i))}
	}

	scored := scoreParallel(accounts, Default().Scoring, 4)
	require.Len(t, scored, len(accounts))
	for i, s := range scored {
		assert.Equal(t, accounts[i].Address, s.Address)
	}
}

func TestScoringCycleRunOnce(t *testing.T) {
	stats := statsStub{accounts: []models.AccountStats{
		{Address: "0xa", RealizedPnl: 100, NumTrades: 40, NumWins: 25, NumLosses: 15, PnlSeries: risingSeries(30)},
		{Address: "0xb", RealizedPnl: -5, NumTrades: 40, NumWins: 10, NumLosses: 30, PnlSeries: fallingSeries(30)},
	}}
	var published []models.RankedAccount
	sink := sinkFunc(func(ctx context.Context, ranked []models.RankedAccount) error {
		published = ranked
		return nil
	})

	cfg := Default()
	cycle := NewScoringCycle(cfg, stats, sink)
	ranked, err := cycle.RunOnce(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, ranked)
	assert.Equal(t, "0xa", ranked[0].Address)
	assert.Equal(t, ranked, published)
}

func TestBuildWinRates(t *testing.T) {
	rates := BuildWinRates([]models.AccountStats{
		{Address: "0xa", NumWins: 6, NumLosses: 4},
		{Address: "0xb"}, // no closed trades
	})

	require.Contains(t, rates, "0xa")
	assert.NotContains(t, rates, "0xb")
	assert.InDelta(t, 0.6, rates["0xa"].WinRate, 1e-9)
	assert.Equal(t, 10, rates["0xa"].Samples)
}

func TestBuildCorrelationsIdenticalSeries(t *testing.T) {
	series := risingSeries(10)
	matrix := BuildCorrelations([]models.AccountStats{
		{Address: "0xa", PnlSeries: series},
		{Address: "0xb", PnlSeries: series},
	}, 5)

	rho, ok := matrix.Lookup("0xa", "0xb")
	require.True(t, ok)
	assert.InDelta(t, 1.0, rho, 1e-9)
}

func TestBuildCorrelationsSparseOverlapOmitted(t *testing.T) {
	matrix := BuildCorrelations([]models.AccountStats{
		{Address: "0xa", PnlSeries: risingSeries(3)},
		{Address: "0xb", PnlSeries: risingSeries(3)},
	}, 5)
	assert.Empty(t, matrix)
}

type statsStub struct {
	accounts []models.AccountStats
}

func (s statsStub) AccountStats(ctx context.Context) ([]models.AccountStats, error) {
	return s.accounts, nil
}

type sinkFunc func(ctx context.Context, ranked []models.RankedAccount) error

func (f sinkFunc) PublishRanking(ctx context.Context, ranked []models.RankedAccount) error {
	return f(ctx, ranked)
}

// risingSeries grows superlinearly so daily increments vary; constant
// increments have zero variance and no defined correlation.
func risingSeries(n int) []models.PnlPoint {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PnlPoint, n)
	for i := range out {
		out[i] = models.PnlPoint{Timestamp: start.AddDate(0, 0, i), Value: float64(i*i) / 2}
	}
	return out
}

func fallingSeries(n int) []models.PnlPoint {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PnlPoint, n)
	for i := range out {
		out[i] = models.PnlPoint{Timestamp: start.AddDate(0, 0, i), Value: -float64(i)}
	}
	return out
}
