// Package persistence defines the storage contracts for episodes,
// scoring runs, and emitted signals. The analytic core never touches
// these; they exist for the surrounding service.
package persistence

import (
	"context"
	"time"

	"github.com/signalherd/signalherd/internal/consensus"
	"github.com/signalherd/signalherd/internal/models"
)

// EpisodesRepo stores reconstructed episodes. Episodes are append-only
// facts keyed by id; a rebuild replaces an account's episode set
// wholesale.
type EpisodesRepo interface {
	ReplaceForAccount(ctx context.Context, address string, episodes []models.Episode) error
	ListByAccount(ctx context.Context, address string, limit int) ([]models.Episode, error)
	ListOpen(ctx context.Context, asset string) ([]models.Episode, error)
}

// RankingsRepo stores scoring cycle outputs. Each cycle supersedes the
// previous ranking wholesale.
type RankingsRepo interface {
	InsertRun(ctx context.Context, runAt time.Time, ranked []models.RankedAccount) error
	LatestRun(ctx context.Context) ([]models.RankedAccount, error)
}

// SignalsRepo stores consensus evaluations that produced a signal,
// with their ticket summaries.
type SignalsRepo interface {
	Insert(ctx context.Context, ticket consensus.Ticket, res models.ConsensusResult) error
	LatestByAsset(ctx context.Context, asset string) (*models.ConsensusResult, error)
}

// Repository bundles the repos behind one connection manager.
type Repository struct {
	Episodes EpisodesRepo
	Rankings RankingsRepo
	Signals  SignalsRepo
}
