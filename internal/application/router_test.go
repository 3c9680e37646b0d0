package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalherd/signalherd/internal/models"
)

func rankedAccount(address string, weight float64) models.RankedAccount {
	return models.RankedAccount{
		ScoringResult: models.ScoringResult{Address: address, Score: weight},
		Rank:          1,
		Weight:        weight,
	}
}

func fill(address, asset string, side models.Side, size float64) models.Fill {
	return models.Fill{
		Address:   address,
		Asset:     asset,
		Side:      side,
		Size:      size,
		Price:     100,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRouterUnrankedAccountProducesNoVote(t *testing.T) {
	r := NewVoteRouter()

	vote, _, ok := r.applyFill(fill("0xnobody", "BTC", models.SideBuy, 1))
	assert.False(t, ok)
	assert.Empty(t, vote.Address)
}

func TestRouterEntryProducesVote(t *testing.T) {
	r := NewVoteRouter()
	r.SetRanking([]models.RankedAccount{rankedAccount("0xa", 0.4)})
	r.Register("BTC", &Evaluator{})

	vote, ev, ok := r.applyFill(fill("0xa", "BTC", models.SideBuy, 1))
	require.True(t, ok)
	require.NotNil(t, ev)
	assert.Equal(t, models.DirectionLong, vote.Dir)
	assert.InDelta(t, 0.4, vote.Weight, 1e-9)
}

func TestRouterExitProducesNoVote(t *testing.T) {
	r := NewVoteRouter()
	r.SetRanking([]models.RankedAccount{rankedAccount("0xa", 0.4)})
	r.Register("BTC", &Evaluator{})

	_, _, ok := r.applyFill(fill("0xa", "BTC", models.SideBuy, 2))
	require.True(t, ok)

	// Partial exit, then full close: neither is a vote.
	_, _, ok = r.applyFill(fill("0xa", "BTC", models.SideSell, 1))
	assert.False(t, ok)
	_, _, ok = r.applyFill(fill("0xa", "BTC", models.SideSell, 1))
	assert.False(t, ok)
}

func TestRouterFlipVotesInNewDirection(t *testing.T) {
	r := NewVoteRouter()
	r.SetRanking([]models.RankedAccount{rankedAccount("0xa", 0.4)})
	r.Register("BTC", &Evaluator{})

	_, _, ok := r.applyFill(fill("0xa", "BTC", models.SideBuy, 1))
	require.True(t, ok)

	vote, _, ok := r.applyFill(fill("0xa", "BTC", models.SideSell, 3))
	require.True(t, ok)
	assert.Equal(t, models.DirectionShort, vote.Dir)
}

func TestRouterIgnoresUnregisteredAsset(t *testing.T) {
	r := NewVoteRouter()
	r.SetRanking([]models.RankedAccount{rankedAccount("0xa", 0.4)})

	_, _, ok := r.applyFill(fill("0xa", "DOGE", models.SideBuy, 1))
	assert.False(t, ok)
}
