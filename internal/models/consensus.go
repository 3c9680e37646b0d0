package models

import "time"

// Vote is one ranked account's directional input to a consensus
// evaluation: its latest position change, weighted by ranking weight.
type Vote struct {
	Address   string    `json:"address"`
	Dir       Direction `json:"direction"`
	Weight    float64   `json:"weight"` // ∈ [0,1], capped by the constructor
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	EpisodeID string    `json:"episode_id,omitempty"`
}

// GateCheck is one consensus gate's outcome with the measured value and
// the threshold it was held against, kept even on failure for audit.
type GateCheck struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Evaluated bool    `json:"evaluated"` // false when an earlier gate short-circuited
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// GateResults holds the five consensus gates in evaluation order.
type GateResults struct {
	Supermajority GateCheck `json:"supermajority"`
	EffectiveK    GateCheck `json:"effective_k"`
	Freshness     GateCheck `json:"freshness"`
	PriceDrift    GateCheck `json:"price_drift"`
	ExpectedValue GateCheck `json:"expected_value"`
}

// Ordered returns the gates in evaluation order.
func (g GateResults) Ordered() []GateCheck {
	return []GateCheck{g.Supermajority, g.EffectiveK, g.Freshness, g.PriceDrift, g.ExpectedValue}
}

// ConsensusResult is the outcome of one consensus evaluation. Gates is
// always fully populated so a caller can tell "gate never reached" from
// "gate reached and failed".
type ConsensusResult struct {
	Passes      bool        `json:"passes"`
	Dir         Direction   `json:"direction,omitempty"`
	Confidence  float64     `json:"confidence"` // implied win probability
	EffectiveK  float64     `json:"effective_k"`
	EvNetR      float64     `json:"ev_net_r"`
	MedianPrice float64     `json:"median_price"`
	Votes       []Vote      `json:"votes,omitempty"` // the agreeing subset
	Gates       GateResults `json:"gates"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// WinRatePosterior is one address's historical win-rate estimate with its
// supporting sample count, supplied by the posterior collaborator.
type WinRatePosterior struct {
	WinRate float64 `json:"win_rate"`
	Samples int     `json:"samples"`
}
