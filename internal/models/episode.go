package models

import "time"

// Direction is the sign of an episode's position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// EpisodeStatus tracks whether an episode's position is still open.
type EpisodeStatus string

const (
	EpisodeOpen   EpisodeStatus = "open"
	EpisodeClosed EpisodeStatus = "closed"
)

// CloseReason records why a closed episode ended.
type CloseReason string

const (
	CloseFullClose     CloseReason = "full_close"
	CloseDirectionFlip CloseReason = "direction_flip"
	CloseTimeout       CloseReason = "timeout"
)

// Episode is one continuous signed-position lifecycle for (Address, Asset):
// opened when the position leaves flat, grown by same-direction fills,
// reduced by opposite fills, and closed when the position returns to zero
// or flips sign. Every fill belongs to exactly one episode.
type Episode struct {
	ID      string    `json:"id"`
	Address string    `json:"address"`
	Asset   string    `json:"asset"`
	Dir     Direction `json:"direction"`

	EntryFills    []Fill    `json:"entry_fills"`
	EntryVWAP     float64   `json:"entry_vwap"`
	EntrySize     float64   `json:"entry_size"`
	EntryNotional float64   `json:"entry_notional"`
	EntryTime     time.Time `json:"entry_time"`

	ExitFills    []Fill     `json:"exit_fills,omitempty"`
	ExitVWAP     float64    `json:"exit_vwap,omitempty"`
	ExitSize     float64    `json:"exit_size,omitempty"`
	ExitNotional float64    `json:"exit_notional,omitempty"`
	ExitTime     *time.Time `json:"exit_time,omitempty"`

	// Stop placement derived from policy, not from observed orders.
	StopPrice       float64 `json:"stop_price"`
	StopDistanceBps float64 `json:"stop_distance_bps"`
	RiskAmount      float64 `json:"risk_amount"` // entry notional × stop fraction

	RealizedPnl float64 `json:"realized_pnl"`
	RMultiple   float64 `json:"r_multiple"` // winsorized to [RMin, RMax]
	Fees        float64 `json:"fees"`

	Status      EpisodeStatus `json:"status"`
	CloseReason CloseReason   `json:"close_reason,omitempty"`
}

// IsWin reports whether a closed episode realized a positive PnL.
func (e *Episode) IsWin() bool {
	return e.Status == EpisodeClosed && e.RealizedPnl > 0
}
