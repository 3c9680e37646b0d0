package application

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/signalherd/signalherd/internal/consensus"
	httpmetrics "github.com/signalherd/signalherd/internal/interfaces/http"
	"github.com/signalherd/signalherd/internal/models"
	"github.com/signalherd/signalherd/internal/scoring"
)

// StatsProvider supplies per-account aggregate stats for a scoring
// cycle, built from episodes and/or the exchange-reported PnL series.
type StatsProvider interface {
	AccountStats(ctx context.Context) ([]models.AccountStats, error)
}

// RankingSink receives the full ranking after each scoring cycle.
type RankingSink interface {
	PublishRanking(ctx context.Context, ranked []models.RankedAccount) error
}

// ScoringCycle runs the periodic population scoring: fan per-account
// scoring out over a worker pool, then a single-threaded rank/normalize
// reduction over the complete scored set.
type ScoringCycle struct {
	cfg   Config
	stats StatsProvider
	sink  RankingSink
}

// NewScoringCycle wires a scoring cycle runner.
func NewScoringCycle(cfg Config, stats StatsProvider, sink RankingSink) *ScoringCycle {
	return &ScoringCycle{cfg: cfg, stats: stats, sink: sink}
}

// RunOnce executes one full cycle and returns the published ranking.
func (sc *ScoringCycle) RunOnce(ctx context.Context) ([]models.RankedAccount, error) {
	start := time.Now()

	accounts, err := sc.stats.AccountStats(ctx)
	if err != nil {
		return nil, err
	}

	scored := scoreParallel(accounts, sc.cfg.Scoring, sc.cfg.ScoringWorkers)
	ranked := scoring.RankScored(scored, sc.cfg.TopN)

	filtered := 0
	for _, s := range scored {
		if s.Filtered {
			filtered++
			httpmetrics.RecordFilteredAccount(s.FilterReason)
		}
	}
	httpmetrics.RecordScoringCycle(time.Since(start), len(scored), filtered)

	log.Info().
		Int("accounts", len(accounts)).
		Int("filtered", filtered).
		Int("ranked", len(ranked)).
		Dur("elapsed", time.Since(start)).
		Msg("scoring cycle complete")

	if sc.sink != nil {
		if err := sc.sink.PublishRanking(ctx, ranked); err != nil {
			return ranked, err
		}
	}
	return ranked, nil
}

// Run executes cycles on the configured interval until ctx is cancelled.
func (sc *ScoringCycle) Run(ctx context.Context) error {
	ticker := time.NewTicker(sc.cfg.ScoringInterval)
	defer ticker.Stop()

	for {
		if _, err := sc.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("scoring cycle failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// scoreParallel maps ComputePerformanceScore over the population. Order
// is preserved so the reduction stays deterministic.
func scoreParallel(accounts []models.AccountStats, params scoring.Params, workers int) []models.ScoringResult {
	if workers < 1 {
		workers = 1
	}
	scored := make([]models.ScoringResult, len(accounts))

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				scored[i] = scoring.ComputePerformanceScore(accounts[i], params)
			}
		}()
	}
	for i := range accounts {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return scored
}

// SnapshotSource supplies the read-only inputs one consensus evaluation
// needs. Implementations publish new immutable snapshots instead of
// mutating in place.
type SnapshotSource interface {
	CorrelationSnapshot(ctx context.Context) (consensus.CorrelationMatrix, error)
	WinRateSnapshot(ctx context.Context) (map[string]models.WinRatePosterior, error)
}
