package application

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/signalherd/signalherd/internal/consensus"
	httpmetrics "github.com/signalherd/signalherd/internal/interfaces/http"
	"github.com/signalherd/signalherd/internal/models"
	"github.com/signalherd/signalherd/internal/votes"
)

// MidPriceSource supplies the current mid price and policy stop distance
// for an instrument.
type MidPriceSource interface {
	Mid(ctx context.Context, asset string) (price float64, stopBps float64, err error)
}

// VolatilitySource supplies the current volatility percentile for an
// instrument, used to scale the evaluation window.
type VolatilitySource interface {
	VolPercentile(ctx context.Context, asset string) (float64, error)
}

// TicketSink receives the derived ticket for every evaluation; passing
// tickets are the emitted signals.
type TicketSink interface {
	EmitTicket(ctx context.Context, ticket consensus.Ticket, res models.ConsensusResult) error
}

// Evaluator owns one instrument scope: a bounded rolling vote buffer and
// the read-only snapshots one evaluation needs. Each scope is driven by
// a single goroutine, so the buffer needs no locking; independent scopes
// run concurrently.
type Evaluator struct {
	asset     string
	cfg       Config
	buffer    *votes.Buffer
	mids      MidPriceSource
	vol       VolatilitySource
	snapshots SnapshotSource
	sink      TicketSink
}

// NewEvaluator creates the evaluation worker for one instrument.
func NewEvaluator(asset string, cfg Config, mids MidPriceSource, vol VolatilitySource, snapshots SnapshotSource, sink TicketSink) *Evaluator {
	return &Evaluator{
		asset:     asset,
		cfg:       cfg,
		buffer:    votes.NewBuffer(cfg.VoteBufferSize),
		mids:      mids,
		vol:       vol,
		snapshots: snapshots,
		sink:      sink,
	}
}

// OnVote buffers an incoming vote and evaluates consensus for the scope.
func (ev *Evaluator) OnVote(ctx context.Context, v models.Vote) (models.ConsensusResult, error) {
	ev.buffer.Add(v)
	return ev.Evaluate(ctx, v.Timestamp)
}

// Evaluate runs one consensus evaluation over the current window.
func (ev *Evaluator) Evaluate(ctx context.Context, now time.Time) (models.ConsensusResult, error) {
	volPct, err := ev.vol.VolPercentile(ctx, ev.asset)
	if err != nil {
		return models.ConsensusResult{}, err
	}
	window := consensus.AdaptiveWindow(volPct, ev.cfg.Window)

	windowVotes := ev.buffer.Window(now, window)
	httpmetrics.SetVoteBufferDepth(ev.asset, len(windowVotes))

	mid, stopBps, err := ev.mids.Mid(ctx, ev.asset)
	if err != nil {
		return models.ConsensusResult{}, err
	}

	// Snapshots are immutable for the duration of this evaluation; the
	// updater publishes replacements rather than mutating in place.
	corr, err := ev.snapshots.CorrelationSnapshot(ctx)
	if err != nil {
		return models.ConsensusResult{}, err
	}
	winRates, err := ev.snapshots.WinRateSnapshot(ctx)
	if err != nil {
		return models.ConsensusResult{}, err
	}

	res := consensus.CheckConsensus(windowVotes, now, mid, window, stopBps, corr, winRates, ev.cfg.Consensus)

	outcome := consensus.FirstFailingGate(res)
	httpmetrics.RecordConsensusEvaluation(outcome)
	if res.Passes {
		httpmetrics.RecordSignal(string(res.Dir))
		log.Info().
			Str("asset", ev.asset).
			Str("direction", string(res.Dir)).
			Float64("confidence", res.Confidence).
			Float64("effective_k", res.EffectiveK).
			Float64("ev_net_r", res.EvNetR).
			Msg("consensus signal emitted")
	} else {
		log.Debug().
			Str("asset", ev.asset).
			Str("failed_gate", outcome).
			Int("votes", len(windowVotes)).
			Msg("consensus rejected")
	}

	if ev.sink != nil {
		ticket := consensus.BuildTicket(ev.asset, res, len(windowVotes))
		if err := ev.sink.EmitTicket(ctx, ticket, res); err != nil {
			return res, err
		}
	}
	return res, nil
}
