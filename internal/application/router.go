package application

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmetrics "github.com/signalherd/signalherd/internal/interfaces/http"
	"github.com/signalherd/signalherd/internal/models"
	"github.com/signalherd/signalherd/internal/votes"
)

// VoteRouter is the live bridge between the fill stream and the
// per-instrument evaluators. It tracks each (account, asset) open
// position so that only position-opening or position-growing fills on
// ranked accounts become votes; exits and unranked accounts are ignored.
type VoteRouter struct {
	mu          sync.Mutex
	constructor *votes.Constructor
	open        map[string]*models.Episode
	evaluators  map[string]*Evaluator
}

// NewVoteRouter starts with an empty ranking: no account produces votes
// until the first scoring cycle publishes weights.
func NewVoteRouter() *VoteRouter {
	return &VoteRouter{
		constructor: votes.NewConstructor(nil),
		open:        make(map[string]*models.Episode),
		evaluators:  make(map[string]*Evaluator),
	}
}

// Register attaches the evaluator for one instrument. Fills on assets
// with no registered evaluator update position state but emit nothing.
func (r *VoteRouter) Register(asset string, ev *Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[asset] = ev
}

// SetRanking swaps in a fresh ranking's weights after a scoring cycle.
func (r *VoteRouter) SetRanking(ranked []models.RankedAccount) {
	c := votes.NewConstructor(ranked)
	r.mu.Lock()
	r.constructor = c
	r.mu.Unlock()
}

// OnFill updates the live position for the fill's (account, asset) key
// and, when the fill opens or grows a position on a ranked account,
// routes the resulting vote to that asset's evaluator.
func (r *VoteRouter) OnFill(ctx context.Context, f models.Fill) {
	r.mu.Lock()
	vote, ev, ok := r.applyFill(f)
	r.mu.Unlock()
	if !ok {
		return
	}

	if _, err := ev.OnVote(ctx, vote); err != nil {
		log.Error().Err(err).
			Str("asset", f.Asset).
			Str("address", f.Address).
			Msg("vote evaluation failed")
	}
}

// applyFill mutates position state under the router lock and returns
// the vote to dispatch, if any.
func (r *VoteRouter) applyFill(f models.Fill) (models.Vote, *Evaluator, bool) {
	key := f.Address + "|" + f.Asset
	e := r.open[key]

	entry := false
	switch {
	case e == nil:
		e = newOpenEpisode(f, f.Size)
		r.open[key] = e
		entry = true

	case sameSide(e.Dir, f.Side):
		e.EntrySize += f.Size
		entry = true

	default:
		// Exit. A flip closes the old episode and opens a reversed one;
		// the overshoot counts as a fresh entry.
		e.ExitSize += f.Size
		if e.ExitSize >= e.EntrySize {
			overshoot := e.ExitSize - e.EntrySize
			delete(r.open, key)
			if overshoot > 0 {
				httpmetrics.RecordEpisode(string(models.CloseDirectionFlip))
				e = newOpenEpisode(f, overshoot)
				r.open[key] = e
				entry = true
			} else {
				httpmetrics.RecordEpisode(string(models.CloseFullClose))
			}
		}
	}

	if !entry {
		return models.Vote{}, nil, false
	}
	vote, ok := r.constructor.FromEntry(e, f)
	if !ok {
		return models.Vote{}, nil, false
	}
	ev := r.evaluators[f.Asset]
	if ev == nil {
		return models.Vote{}, nil, false
	}
	return vote, ev, true
}

func newOpenEpisode(f models.Fill, size float64) *models.Episode {
	return &models.Episode{
		ID:        uuid.NewString(),
		Address:   f.Address,
		Asset:     f.Asset,
		Dir:       directionOf(f.Side),
		EntrySize: size,
	}
}

func directionOf(s models.Side) models.Direction {
	if s == models.SideBuy {
		return models.DirectionLong
	}
	return models.DirectionShort
}

func sameSide(dir models.Direction, s models.Side) bool {
	return (dir == models.DirectionLong) == (s == models.SideBuy)
}
