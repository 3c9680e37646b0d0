// Package episode reconstructs discrete position lifecycles from a raw
// fill stream. The builder is pure and deterministic: given the same fills
// and config it always produces the same episodes, so reconstruction can
// be re-run from scratch after any upstream correction.
package episode

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/signalherd/signalherd/internal/models"
)

// Config holds the policy inputs for episode reconstruction.
type Config struct {
	StopFraction float64 `yaml:"stop_fraction"` // e.g. 0.01 = 1% policy stop
	RMin         float64 `yaml:"r_min"`         // winsorization floor for R-multiples
	RMax         float64 `yaml:"r_max"`         // winsorization ceiling
}

// DefaultConfig returns the production stop/winsorization policy.
func DefaultConfig() Config {
	return Config{
		StopFraction: 0.01,
		RMin:         -3.0,
		RMax:         2.0,
	}
}

// key partitions builder state per (account, instrument). Different keys
// share nothing and can be rebuilt in parallel.
type key struct {
	address string
	asset   string
}

// tracker is the running position state for one key during a build.
type tracker struct {
	position float64
	open     *models.Episode
}

// BuildEpisodes replays fills in (timestamp, seq) order and returns every
// episode they imply, closed and still-open alike. The input slice is not
// mutated; ordering is normalized internally so callers may pass fills in
// arrival order.
func BuildEpisodes(fills []models.Fill, cfg Config) []models.Episode {
	ordered := make([]models.Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Seq < ordered[j].Seq
		}
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	trackers := make(map[key]*tracker)
	var episodes []models.Episode

	for _, f := range ordered {
		// The feed rejects these; guard here for replays from raw files.
		if f.Size <= 0 {
			continue
		}

		k := key{address: f.Address, asset: f.Asset}
		t := trackers[k]
		if t == nil {
			t = &tracker{}
			trackers[k] = t
		}

		prev := t.position
		next := prev + f.Signed()

		switch {
		case prev == 0:
			t.open = openEpisode(f, next, cfg)

		case sameDirection(t.open.Dir, f):
			appendEntry(t.open, f)

		case next != 0 && signOf(next) == signOf(prev):
			// Partial reduction: exit accumulates, episode stays open.
			appendExit(t.open, f)

		case next == 0:
			appendExit(t.open, f)
			closeEpisode(t.open, cfg, models.CloseFullClose)
			episodes = append(episodes, *t.open)
			t.open = nil

		default:
			// Overshoot: the fill closes the old episode with the portion
			// that zeroes it, then atomically opens an episode in the
			// opposite direction with the remainder. Both portions keep
			// the fill id, so the fill is shared across the boundary.
			closePart, openPart := splitFill(f, math.Abs(prev))
			appendExit(t.open, closePart)
			closeEpisode(t.open, cfg, models.CloseDirectionFlip)
			episodes = append(episodes, *t.open)
			t.open = openEpisode(openPart, next, cfg)
		}

		t.position = next
	}

	// Still-open episodes are emitted as-is, in a stable key order.
	openKeys := make([]key, 0, len(trackers))
	for k, t := range trackers {
		if t.open != nil {
			openKeys = append(openKeys, k)
		}
	}
	sort.Slice(openKeys, func(i, j int) bool {
		if openKeys[i].address == openKeys[j].address {
			return openKeys[i].asset < openKeys[j].asset
		}
		return openKeys[i].address < openKeys[j].address
	})
	for _, k := range openKeys {
		episodes = append(episodes, *trackers[k].open)
	}

	return episodes
}

// splitFill divides a flip fill into the portion that closes the running
// position and the portion that opens the successor. Fees split pro rata;
// the reported realized PnL belongs to the closing portion.
func splitFill(f models.Fill, closeSize float64) (closePart, openPart models.Fill) {
	closePart = f
	openPart = f
	closePart.Size = closeSize
	openPart.Size = f.Size - closeSize
	if f.Size > 0 {
		closePart.Fees = f.Fees * closeSize / f.Size
		openPart.Fees = f.Fees - closePart.Fees
	}
	openPart.RealizedPnl = nil
	return closePart, openPart
}

func openEpisode(f models.Fill, position float64, cfg Config) *models.Episode {
	dir := models.DirectionLong
	stop := f.Price * (1 - cfg.StopFraction)
	if position < 0 {
		dir = models.DirectionShort
		stop = f.Price * (1 + cfg.StopFraction)
	}

	e := &models.Episode{
		ID:              uuid.NewString(),
		Address:         f.Address,
		Asset:           f.Asset,
		Dir:             dir,
		EntryFills:      []models.Fill{f},
		EntryVWAP:       f.Price,
		EntrySize:       f.Size,
		EntryNotional:   f.Notional(),
		EntryTime:       f.Timestamp,
		StopPrice:       stop,
		StopDistanceBps: math.Abs(f.Price-stop) / f.Price * 10000,
		RiskAmount:      f.Notional() * cfg.StopFraction,
		Fees:            f.Fees,
		Status:          models.EpisodeOpen,
	}
	return e
}

func appendEntry(e *models.Episode, f models.Fill) {
	e.EntryFills = append(e.EntryFills, f)
	e.EntrySize += f.Size
	e.EntryNotional += f.Notional()
	e.EntryVWAP = vwap(e.EntryFills)
	e.Fees += f.Fees
	// Risk scales with the grown entry; stop distance is unchanged policy.
	e.RiskAmount = e.EntryNotional * (e.StopDistanceBps / 10000)
}

func appendExit(e *models.Episode, f models.Fill) {
	e.ExitFills = append(e.ExitFills, f)
	e.ExitSize += f.Size
	e.ExitNotional += f.Notional()
	e.Fees += f.Fees
}

func closeEpisode(e *models.Episode, cfg Config, reason models.CloseReason) {
	e.ExitVWAP = vwap(e.ExitFills)
	last := e.ExitFills[len(e.ExitFills)-1]
	ts := last.Timestamp
	e.ExitTime = &ts

	e.RealizedPnl = realizedPnl(e)
	e.RMultiple = clampR(e.RealizedPnl, e.RiskAmount, cfg)
	e.Status = models.EpisodeClosed
	e.CloseReason = reason
}

// realizedPnl prefers the exchange-reported figure on the exit fills and
// falls back to the VWAP spread over the entry size.
func realizedPnl(e *models.Episode) float64 {
	var reported float64
	haveReported := false
	for _, f := range e.ExitFills {
		if f.RealizedPnl != nil {
			reported += *f.RealizedPnl
			haveReported = true
		}
	}
	if haveReported {
		return reported
	}

	pnl := (e.ExitVWAP - e.EntryVWAP) * e.EntrySize
	if e.Dir == models.DirectionShort {
		pnl = -pnl
	}
	return pnl
}

func clampR(pnl, risk float64, cfg Config) float64 {
	if risk <= 0 {
		return 0
	}
	r := pnl / risk
	if r < cfg.RMin {
		return cfg.RMin
	}
	if r > cfg.RMax {
		return cfg.RMax
	}
	return r
}

func vwap(fills []models.Fill) float64 {
	var notional, size float64
	for _, f := range fills {
		notional += f.Notional()
		size += f.Size
	}
	if size == 0 {
		return 0
	}
	return notional / size
}

func sameDirection(dir models.Direction, f models.Fill) bool {
	if dir == models.DirectionLong {
		return f.Side == models.SideBuy
	}
	return f.Side == models.SideSell
}

func signOf(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
