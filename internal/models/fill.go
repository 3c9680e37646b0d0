package models

import "time"

// Side is the taker direction of a fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Fill is one executed trade reported by the feed for (Address, Asset).
// Fills are immutable facts owned by the feed; the episode builder never
// mutates them. Seq is assigned at the ingestion boundary and breaks ties
// between fills sharing a timestamp, keeping episode reconstruction
// deterministic across re-runs.
type Fill struct {
	FillID      string    `json:"fill_id"`
	Address     string    `json:"address"`
	Asset       string    `json:"asset"`
	Side        Side      `json:"side"`
	Size        float64   `json:"size"` // always positive
	Price       float64   `json:"price"`
	Timestamp   time.Time `json:"timestamp"`
	Seq         uint64    `json:"seq"`
	RealizedPnl *float64  `json:"realized_pnl,omitempty"` // exchange-reported, preferred when present
	Fees        float64   `json:"fees,omitempty"`
}

// Signed returns the position contribution of the fill: +Size for buys,
// -Size for sells.
func (f Fill) Signed() float64 {
	if f.Side == SideBuy {
		return f.Size
	}
	return -f.Size
}

// Notional returns Size*Price.
func (f Fill) Notional() float64 {
	return f.Size * f.Price
}
