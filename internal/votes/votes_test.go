package votes

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalherd/signalherd/internal/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func rankedAccount(addr string, weight float64) models.RankedAccount {
	return models.RankedAccount{
		ScoringResult: models.ScoringResult{Address: addr, Score: weight},
		Rank:          1,
		Weight:        weight,
	}
}

func TestConstructor_FromEntry(t *testing.T) {
	c := NewConstructor([]models.RankedAccount{
		rankedAccount("0xa", 0.6),
		rankedAccount("0xb", 0.4),
		rankedAccount("0xunranked", 0),
	})

	e := &models.Episode{
		ID:      "ep-1",
		Address: "0xa",
		Asset:   "ETH",
		Dir:     models.DirectionShort,
	}
	f := models.Fill{Price: 2500, Timestamp: t0}

	v, ok := c.FromEntry(e, f)
	require.True(t, ok)
	assert.Equal(t, models.DirectionShort, v.Dir)
	assert.Equal(t, 0.6, v.Weight)
	assert.Equal(t, 2500.0, v.Price)
	assert.Equal(t, "ep-1", v.EpisodeID)

	e.Address = "0xunranked"
	_, ok = c.FromEntry(e, f)
	assert.False(t, ok, "zero-weight accounts produce no votes")

	e.Address = "0xunknown"
	_, ok = c.FromEntry(e, f)
	assert.False(t, ok)
}

func TestBuffer_DropOldestAtCapacity(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Add(models.Vote{
			Address:   fmt.Sprintf("0x%d", i),
			Timestamp: t0.Add(time.Duration(i) * time.Second),
		})
	}

	require.Equal(t, 3, b.Len())
	window := b.Window(t0.Add(10*time.Second), time.Minute)
	require.Len(t, window, 3)
	assert.Equal(t, "0x2", window[0].Address)
	assert.Equal(t, "0x4", window[2].Address)
}

func TestBuffer_NewerVoteReplacesSameAddress(t *testing.T) {
	b := NewBuffer(10)
	b.Add(models.Vote{Address: "0xa", Price: 100, Timestamp: t0})
	b.Add(models.Vote{Address: "0xb", Price: 100, Timestamp: t0.Add(time.Second)})
	b.Add(models.Vote{Address: "0xa", Price: 105, Timestamp: t0.Add(2 * time.Second)})

	window := b.Window(t0.Add(3*time.Second), time.Minute)
	require.Len(t, window, 2)
	assert.Equal(t, "0xb", window[0].Address)
	assert.Equal(t, 105.0, window[1].Price)
}

func TestBuffer_WindowPrunesExpired(t *testing.T) {
	b := NewBuffer(10)
	b.Add(models.Vote{Address: "0xold", Timestamp: t0})
	b.Add(models.Vote{Address: "0xnew", Timestamp: t0.Add(50 * time.Second)})

	window := b.Window(t0.Add(time.Minute), 30*time.Second)
	require.Len(t, window, 1)
	assert.Equal(t, "0xnew", window[0].Address)
	assert.Equal(t, 1, b.Len())
}
