package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/signalherd/signalherd/internal/application"
	"github.com/signalherd/signalherd/internal/consensus"
	"github.com/signalherd/signalherd/internal/feed"
	"github.com/signalherd/signalherd/internal/infrastructure/cache"
	httpiface "github.com/signalherd/signalherd/internal/interfaces/http"
	"github.com/signalherd/signalherd/internal/models"
	"github.com/signalherd/signalherd/internal/persistence"
	"github.com/signalherd/signalherd/internal/persistence/postgres"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the full live pipeline",
		Long: `Consumes the tracked-account fill stream, runs periodic scoring
cycles, evaluates consensus per instrument on every ranked entry, and
serves signals and metrics over HTTP. Redis and Postgres are optional;
with both disabled the service runs entirely in memory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Universe.Accounts) == 0 || len(cfg.Universe.Assets) == 0 {
		return fmt.Errorf("serve requires universe.accounts and universe.assets in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional infrastructure.
	var hub snapshotHub = newMemorySnapshots()
	var store *cache.SnapshotStore
	if cfg.Redis.Enabled {
		store = cache.NewSnapshotStore(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.DefaultTTL)
		defer store.Close()
		if err := store.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		hub = store
	}

	var repo *persistence.Repository
	if cfg.DB.Enabled {
		db, r, err := postgres.Connect(postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
			QueryTimeout:    cfg.DB.QueryTimeout,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		repo = r
	}

	stats := feed.NewStatsClient(cfg.Feed.StatsURL, cfg.Feed.RequestsPerSec, cfg.Feed.RequestBurst, 10*time.Second)
	market := feed.NewMarketClient(cfg.Feed.StatsURL, cfg.Feed.RequestsPerSec, cfg.Feed.RequestBurst, 10*time.Second, 5*time.Second)

	router := application.NewVoteRouter()
	sink := &ticketSink{store: store, repo: repo}
	for _, asset := range cfg.Universe.Assets {
		ev := application.NewEvaluator(asset, cfg, market, market, hub, sink)
		router.Register(asset, ev)
	}

	provider := &universeStats{client: stats, accounts: cfg.Universe.Accounts}
	publisher := &rankingPublisher{router: router, hub: hub, repo: repo, provider: provider}
	cycle := application.NewScoringCycle(cfg, provider, publisher)

	var signals httpiface.SignalSource
	if store != nil {
		signals = store
	}
	var episodeSource httpiface.EpisodeSource
	if repo != nil {
		episodeSource = repo.Episodes
	}
	server := httpiface.NewServer(cfg.HTTP.Addr, signals, episodeSource)

	stream := feed.NewStream(cfg.Feed.WebsocketURL, cfg.Universe.Accounts,
		cfg.Feed.ReconnectBase, cfg.Feed.ReconnectMax)

	// Prime the ranking before any fills arrive so early entries are
	// not all dropped as unranked.
	if _, err := cycle.RunOnce(ctx); err != nil {
		log.Warn().Err(err).Msg("initial scoring cycle failed, starting unranked")
	}

	go func() {
		if err := server.Start(ctx); err != nil {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()
	go func() {
		if err := cycle.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scoring loop stopped")
		}
	}()

	fills := make(chan models.Fill, 256)
	go func() {
		if err := stream.Run(ctx, fills); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("fill stream stopped")
			stop()
		}
	}()

	log.Info().
		Int("accounts", len(cfg.Universe.Accounts)).
		Int("assets", len(cfg.Universe.Assets)).
		Str("http", cfg.HTTP.Addr).
		Msg("signalherd serving")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return nil
		case f := <-fills:
			router.OnFill(ctx, f)
		}
	}
}

// snapshotHub is the read+publish surface the live pipeline needs for
// consensus snapshots, satisfied by the redis store or the in-memory
// fallback.
type snapshotHub interface {
	application.SnapshotSource
	PublishCorrelations(ctx context.Context, m consensus.CorrelationMatrix) error
	PublishWinRates(ctx context.Context, rates map[string]models.WinRatePosterior) error
}

// memorySnapshots is the zero-infrastructure snapshotHub.
type memorySnapshots struct {
	mu       sync.RWMutex
	corr     consensus.CorrelationMatrix
	winRates map[string]models.WinRatePosterior
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{
		corr:     consensus.CorrelationMatrix{},
		winRates: map[string]models.WinRatePosterior{},
	}
}

func (m *memorySnapshots) CorrelationSnapshot(ctx context.Context) (consensus.CorrelationMatrix, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.corr, nil
}

func (m *memorySnapshots) WinRateSnapshot(ctx context.Context) (map[string]models.WinRatePosterior, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.winRates, nil
}

func (m *memorySnapshots) PublishCorrelations(ctx context.Context, corr consensus.CorrelationMatrix) error {
	m.mu.Lock()
	m.corr = corr
	m.mu.Unlock()
	return nil
}

func (m *memorySnapshots) PublishWinRates(ctx context.Context, rates map[string]models.WinRatePosterior) error {
	m.mu.Lock()
	m.winRates = rates
	m.mu.Unlock()
	return nil
}

// universeStats fetches the cycle's account stats and remembers the last
// successful fetch for snapshot derivation.
type universeStats struct {
	client   *feed.StatsClient
	accounts []string

	mu   sync.Mutex
	last []models.AccountStats
}

func (u *universeStats) AccountStats(ctx context.Context) ([]models.AccountStats, error) {
	out := make([]models.AccountStats, 0, len(u.accounts))
	for _, addr := range u.accounts {
		s, err := u.client.Fetch(ctx, addr)
		if err != nil {
			log.Warn().Err(err).Str("address", addr).Msg("stats fetch failed, account skipped this cycle")
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no account stats available")
	}
	u.mu.Lock()
	u.last = out
	u.mu.Unlock()
	return out, nil
}

func (u *universeStats) lastStats() []models.AccountStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last
}

// rankingPublisher fans a fresh ranking out to the vote router, the
// snapshot hub, and postgres.
type rankingPublisher struct {
	router   *application.VoteRouter
	hub      snapshotHub
	repo     *persistence.Repository
	provider *universeStats
}

func (p *rankingPublisher) PublishRanking(ctx context.Context, ranked []models.RankedAccount) error {
	p.router.SetRanking(ranked)

	stats := p.provider.lastStats()
	if err := p.hub.PublishWinRates(ctx, application.BuildWinRates(stats)); err != nil {
		return fmt.Errorf("publish win rates: %w", err)
	}
	if err := p.hub.PublishCorrelations(ctx, application.BuildCorrelations(stats, 5)); err != nil {
		return fmt.Errorf("publish correlations: %w", err)
	}

	if p.repo != nil {
		if err := p.repo.Rankings.InsertRun(ctx, time.Now().UTC(), ranked); err != nil {
			return fmt.Errorf("persist ranking: %w", err)
		}
	}
	return nil
}

// ticketSink records every emitted ticket: redis for the latest-signal
// surface, postgres for history.
type ticketSink struct {
	store *cache.SnapshotStore
	repo  *persistence.Repository
}

func (t *ticketSink) EmitTicket(ctx context.Context, ticket consensus.Ticket, res models.ConsensusResult) error {
	if t.store != nil && res.Passes {
		if err := t.store.PublishSignal(ctx, ticket.Asset, res); err != nil {
			return fmt.Errorf("publish signal: %w", err)
		}
	}
	if t.repo != nil {
		if err := t.repo.Signals.Insert(ctx, ticket, res); err != nil {
			return fmt.Errorf("persist signal: %w", err)
		}
	}
	return nil
}
