package episode

import (
	"fmt"
	"math"

	"github.com/signalherd/signalherd/internal/models"
)

// ValidationResult reports structural integrity problems as diagnostics,
// never as errors: a violation means upstream data is suspect, not that
// reconstruction failed.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// ValidateEpisodes checks that episodes partition the fill stream exactly
// (every fill id in exactly one episode, counting a flip fill's shared
// membership as its exit side plus the entry side of the successor), and
// that the summed realized PnL of closed episodes approximates the total
// reported PnL within fee tolerance.
func ValidateEpisodes(episodes []models.Episode, fills []models.Fill) ValidationResult {
	var diags []string

	// Membership: a fill id may appear at most once as an exit and at most
	// once as an entry, and a double appearance is legal only for flip
	// fills (exit of one episode, entry of the next).
	entrySeen := make(map[string]int)
	exitSeen := make(map[string]int)
	for _, e := range episodes {
		for _, f := range e.EntryFills {
			entrySeen[f.FillID]++
		}
		for _, f := range e.ExitFills {
			exitSeen[f.FillID]++
		}
	}

	for id, n := range entrySeen {
		if n > 1 {
			diags = append(diags, fmt.Sprintf("fill %s appears in %d entry sets", id, n))
		}
	}
	for id, n := range exitSeen {
		if n > 1 {
			diags = append(diags, fmt.Sprintf("fill %s appears in %d exit sets", id, n))
		}
	}

	for _, f := range fills {
		if entrySeen[f.FillID] == 0 && exitSeen[f.FillID] == 0 {
			diags = append(diags, fmt.Sprintf("fill %s belongs to no episode", f.FillID))
		}
	}

	// PnL conservation across closed episodes, versus what the fills
	// themselves report. Tolerance is the accumulated fees plus a small
	// absolute floor for VWAP rounding.
	var closedPnl, reportedPnl, fees float64
	haveReported := false
	for _, e := range episodes {
		if e.Status != models.EpisodeClosed {
			continue
		}
		closedPnl += e.RealizedPnl
	}
	for _, f := range fills {
		if f.RealizedPnl != nil {
			reportedPnl += *f.RealizedPnl
			haveReported = true
		}
		fees += f.Fees
	}
	if haveReported {
		tolerance := fees + 1e-6
		if diff := math.Abs(closedPnl - reportedPnl); diff > tolerance {
			diags = append(diags, fmt.Sprintf(
				"closed-episode pnl %.6f differs from reported pnl %.6f by %.6f (tolerance %.6f)",
				closedPnl, reportedPnl, diff, tolerance))
		}
	}

	return ValidationResult{Valid: len(diags) == 0, Diagnostics: diags}
}
