package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/signalherd/signalherd/internal/consensus"
	"github.com/signalherd/signalherd/internal/models"
	"github.com/signalherd/signalherd/internal/persistence"
)

type signalsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalsRepo creates the postgres signals repository.
func NewSignalsRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalsRepo {
	return &signalsRepo{db: db, timeout: timeout}
}

// Insert stores one evaluation with its ticket summary. Both passing and
// failing evaluations are kept; the gate diagnostics are the audit trail.
func (r *signalsRepo) Insert(ctx context.Context, ticket consensus.Ticket, res models.ConsensusResult) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ticketJSON, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("marshal ticket: %w", err)
	}
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal consensus result: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO signals (id, asset, passes, direction, evaluated_at, ticket, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), ticket.Asset, res.Passes, string(res.Dir), res.EvaluatedAt,
		ticketJSON, resultJSON)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// LatestByAsset returns the newest passing signal for an asset, or nil.
func (r *signalsRepo) LatestByAsset(ctx context.Context, asset string) (*models.ConsensusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload []byte
	err := r.db.GetContext(ctx, &payload, `
		SELECT result FROM signals
		WHERE asset = $1 AND passes = true
		ORDER BY evaluated_at DESC
		LIMIT 1`, asset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest signal for %s: %w", asset, err)
	}

	var res models.ConsensusResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode signal: %w", err)
	}
	return &res, nil
}
