// Package votes turns position changes on ranked accounts into consensus
// votes and buffers them per instrument for evaluation.
package votes

import (
	"math"

	"github.com/signalherd/signalherd/internal/models"
)

// Constructor builds votes from episode activity using the latest
// ranking's weights. Swap in a new Constructor when a scoring cycle
// publishes fresh weights; instances are cheap and immutable.
type Constructor struct {
	weights map[string]float64
}

// NewConstructor indexes ranking weights by address. Accounts outside the
// top N carry zero weight and produce no votes.
func NewConstructor(ranked []models.RankedAccount) *Constructor {
	weights := make(map[string]float64, len(ranked))
	for _, r := range ranked {
		if r.Weight > 0 {
			weights[r.Address] = r.Weight
		}
	}
	return &Constructor{weights: weights}
}

// FromEntry converts a new or grown entry on an episode into a vote.
// Returns false when the account is unranked.
func (c *Constructor) FromEntry(e *models.Episode, f models.Fill) (models.Vote, bool) {
	w, ok := c.weights[e.Address]
	if !ok {
		return models.Vote{}, false
	}
	return models.Vote{
		Address:   e.Address,
		Dir:       e.Dir,
		Weight:    math.Min(w, 1.0),
		Price:     f.Price,
		Timestamp: f.Timestamp,
		EpisodeID: e.ID,
	}, true
}
