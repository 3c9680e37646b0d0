package consensus

import (
	"math"
	"time"

	"github.com/signalherd/signalherd/internal/models"
)

// Ticket is the execution/alerting summary derived from one consensus
// evaluation: headline numbers plus the voter list, flattened for
// downstream systems that do not want to walk GateResults.
type Ticket struct {
	Asset     string           `json:"asset"`
	Passes    bool             `json:"passes"`
	Direction models.Direction `json:"direction,omitempty"`

	TotalVotes    int     `json:"total_votes"`
	AgreeingVotes int     `json:"agreeing_votes"`
	EffectiveK    float64 `json:"effective_k"`

	MedianPrice     float64 `json:"median_price"`
	PriceDispersion float64 `json:"price_dispersion_bps"` // max |vote − median| in bps
	StalenessFactor float64 `json:"staleness_factor"`
	DriftR          float64 `json:"drift_r"`

	PWin   float64 `json:"p_win"`
	EvNetR float64 `json:"ev_net_r"`

	Voters      []string  `json:"voters,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// BuildTicket flattens a ConsensusResult for the execution collaborator.
// totalVotes is the full window population the evaluation saw, agreeing
// and disagreeing alike.
func BuildTicket(asset string, res models.ConsensusResult, totalVotes int) Ticket {
	t := Ticket{
		Asset:           asset,
		Passes:          res.Passes,
		Direction:       res.Dir,
		TotalVotes:      totalVotes,
		AgreeingVotes:   int(res.Gates.Supermajority.Value),
		EffectiveK:      res.EffectiveK,
		MedianPrice:     res.MedianPrice,
		StalenessFactor: res.Gates.Freshness.Value,
		DriftR:          res.Gates.PriceDrift.Value,
		PWin:            res.Confidence,
		EvNetR:          res.EvNetR,
		EvaluatedAt:     res.EvaluatedAt,
	}

	// Evaluations rejected before the drift gate never set MedianPrice;
	// derive it here so rejection tickets still report dispersion.
	median := res.MedianPrice
	if median == 0 && len(res.Votes) > 0 {
		median = medianPrice(res.Votes)
		t.MedianPrice = median
	}
	if median > 0 {
		for _, v := range res.Votes {
			bps := math.Abs(v.Price-median) / median * 10000
			t.PriceDispersion = math.Max(t.PriceDispersion, bps)
		}
	}
	for _, v := range res.Votes {
		t.Voters = append(t.Voters, v.Address)
	}
	return t
}

// FirstFailingGate names the first gate that was reached and failed, or
// "pass" when the evaluation cleared everything. Used for metrics labels.
func FirstFailingGate(res models.ConsensusResult) string {
	for _, g := range res.Gates.Ordered() {
		if g.Evaluated && !g.Passed {
			return g.Name
		}
	}
	return "pass"
}
