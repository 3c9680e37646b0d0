package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/signalherd/signalherd/internal/models"
	"github.com/signalherd/signalherd/internal/persistence"
)

type episodesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEpisodesRepo creates the postgres episodes repository.
func NewEpisodesRepo(db *sqlx.DB, timeout time.Duration) persistence.EpisodesRepo {
	return &episodesRepo{db: db, timeout: timeout}
}

// episodeRow flattens an episode for storage. Fill lists go to JSONB;
// the queryable columns stay relational.
type episodeRow struct {
	ID          string          `db:"id"`
	Address     string          `db:"address"`
	Asset       string          `db:"asset"`
	Direction   string          `db:"direction"`
	EntryVWAP   float64         `db:"entry_vwap"`
	EntrySize   float64         `db:"entry_size"`
	EntryTime   time.Time       `db:"entry_time"`
	ExitVWAP    sql.NullFloat64 `db:"exit_vwap"`
	ExitTime    sql.NullTime    `db:"exit_time"`
	RiskAmount  float64         `db:"risk_amount"`
	RealizedPnl float64         `db:"realized_pnl"`
	RMultiple   float64         `db:"r_multiple"`
	Status      string          `db:"status"`
	CloseReason sql.NullString  `db:"close_reason"`
	Payload     []byte          `db:"payload"`
}

// ReplaceForAccount swaps an account's episode set atomically: a rebuild
// from the full fill history supersedes whatever was stored.
func (r *episodesRepo) ReplaceForAccount(ctx context.Context, address string, episodes []models.Episode) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin episodes tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE address = $1`, address); err != nil {
		return fmt.Errorf("clear episodes for %s: %w", address, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO episodes (id, address, asset, direction, entry_vwap, entry_size, entry_time,
		                      exit_vwap, exit_time, risk_amount, realized_pnl, r_multiple,
		                      status, close_reason, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`)
	if err != nil {
		return fmt.Errorf("prepare episode insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range episodes {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal episode %s: %w", e.ID, err)
		}

		var exitVWAP sql.NullFloat64
		var exitTime sql.NullTime
		var closeReason sql.NullString
		if e.Status == models.EpisodeClosed {
			exitVWAP = sql.NullFloat64{Float64: e.ExitVWAP, Valid: true}
			closeReason = sql.NullString{String: string(e.CloseReason), Valid: true}
		}
		if e.ExitTime != nil {
			exitTime = sql.NullTime{Time: *e.ExitTime, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			e.ID, e.Address, e.Asset, string(e.Dir), e.EntryVWAP, e.EntrySize, e.EntryTime,
			exitVWAP, exitTime, e.RiskAmount, e.RealizedPnl, e.RMultiple,
			string(e.Status), closeReason, payload); err != nil {
			return fmt.Errorf("insert episode %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// ListByAccount returns an account's episodes newest-entry first.
func (r *episodesRepo) ListByAccount(ctx context.Context, address string, limit int) ([]models.Episode, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []episodeRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, address, asset, direction, entry_vwap, entry_size, entry_time,
		       exit_vwap, exit_time, risk_amount, realized_pnl, r_multiple,
		       status, close_reason, payload
		FROM episodes
		WHERE address = $1
		ORDER BY entry_time DESC
		LIMIT $2`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("list episodes for %s: %w", address, err)
	}
	return decodeEpisodes(rows)
}

// ListOpen returns the open episodes for an asset across all accounts.
func (r *episodesRepo) ListOpen(ctx context.Context, asset string) ([]models.Episode, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []episodeRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, address, asset, direction, entry_vwap, entry_size, entry_time,
		       exit_vwap, exit_time, risk_amount, realized_pnl, r_multiple,
		       status, close_reason, payload
		FROM episodes
		WHERE asset = $1 AND status = 'open'
		ORDER BY entry_time DESC`, asset)
	if err != nil {
		return nil, fmt.Errorf("list open episodes for %s: %w", asset, err)
	}
	return decodeEpisodes(rows)
}

func decodeEpisodes(rows []episodeRow) ([]models.Episode, error) {
	episodes := make([]models.Episode, 0, len(rows))
	for _, row := range rows {
		var e models.Episode
		if err := json.Unmarshal(row.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode episode %s: %w", row.ID, err)
		}
		episodes = append(episodes, e)
	}
	return episodes, nil
}
