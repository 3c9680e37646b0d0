package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/signalherd/signalherd/internal/models"
	"github.com/signalherd/signalherd/internal/persistence"
)

type rankingsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRankingsRepo creates the postgres rankings repository.
func NewRankingsRepo(db *sqlx.DB, timeout time.Duration) persistence.RankingsRepo {
	return &rankingsRepo{db: db, timeout: timeout}
}

// InsertRun stores one scoring cycle's full ranking as a single run row;
// the ranking is consumed wholesale, so it lives as one JSONB document.
func (r *rankingsRepo) InsertRun(ctx context.Context, runAt time.Time, ranked []models.RankedAccount) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(ranked)
	if err != nil {
		return fmt.Errorf("marshal ranking: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scoring_runs (run_at, accounts, ranking)
		VALUES ($1, $2, $3)`, runAt, len(ranked), payload)
	if err != nil {
		return fmt.Errorf("insert scoring run: %w", err)
	}
	return nil
}

// LatestRun returns the most recent ranking, or nil when none exists.
func (r *rankingsRepo) LatestRun(ctx context.Context) ([]models.RankedAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload []byte
	err := r.db.GetContext(ctx, &payload, `
		SELECT ranking FROM scoring_runs
		ORDER BY run_at DESC
		LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest scoring run: %w", err)
	}

	var ranked []models.RankedAccount
	if err := json.Unmarshal(payload, &ranked); err != nil {
		return nil, fmt.Errorf("decode ranking: %w", err)
	}
	return ranked, nil
}
