// Package cache publishes the read-only snapshots consensus evaluation
// depends on — the pairwise correlation matrix and the per-address
// win-rate posteriors — plus the latest emitted signal for the dashboard.
// Snapshots are immutable: the updater writes a complete replacement
// under a fresh value and readers always see one coherent version.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalherd/signalherd/internal/consensus"
	"github.com/signalherd/signalherd/internal/models"
)

const (
	keyCorrelations = "signalherd:snapshots:correlations"
	keyWinRates     = "signalherd:snapshots:winrates"
	keySignalPrefix = "signalherd:signals:latest:"
)

// SnapshotStore keeps evaluation snapshots in Redis.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotStore connects a snapshot store. ttl bounds how long a
// stale snapshot can outlive its updater.
func NewSnapshotStore(addr string, db int, ttl time.Duration) *SnapshotStore {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &SnapshotStore{client: client, ttl: ttl}
}

// PublishCorrelations replaces the correlation snapshot wholesale.
func (s *SnapshotStore) PublishCorrelations(ctx context.Context, m consensus.CorrelationMatrix) error {
	return s.setJSON(ctx, keyCorrelations, m)
}

// CorrelationSnapshot reads the current correlation snapshot. A missing
// snapshot is an empty matrix, which downstream treats as "no measured
// pairs" and falls back to the base correlation.
func (s *SnapshotStore) CorrelationSnapshot(ctx context.Context) (consensus.CorrelationMatrix, error) {
	m := consensus.CorrelationMatrix{}
	ok, err := s.getJSON(ctx, keyCorrelations, &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return consensus.CorrelationMatrix{}, nil
	}
	return m, nil
}

// PublishWinRates replaces the win-rate posterior snapshot wholesale.
func (s *SnapshotStore) PublishWinRates(ctx context.Context, rates map[string]models.WinRatePosterior) error {
	return s.setJSON(ctx, keyWinRates, rates)
}

// WinRateSnapshot reads the current posterior snapshot; missing means
// no qualifying history, and the engine falls back to its neutral prior.
func (s *SnapshotStore) WinRateSnapshot(ctx context.Context) (map[string]models.WinRatePosterior, error) {
	rates := map[string]models.WinRatePosterior{}
	ok, err := s.getJSON(ctx, keyWinRates, &rates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]models.WinRatePosterior{}, nil
	}
	return rates, nil
}

// PublishSignal caches the latest consensus result for an asset.
func (s *SnapshotStore) PublishSignal(ctx context.Context, asset string, res models.ConsensusResult) error {
	return s.setJSON(ctx, keySignalPrefix+asset, res)
}

// LatestSignal returns the cached signal for an asset, or nil.
func (s *SnapshotStore) LatestSignal(ctx context.Context, asset string) (*models.ConsensusResult, error) {
	var res models.ConsensusResult
	ok, err := s.getJSON(ctx, keySignalPrefix+asset, &res)
	if err != nil || !ok {
		return nil, err
	}
	return &res, nil
}

// Health pings the backing Redis.
func (s *SnapshotStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

func (s *SnapshotStore) setJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SnapshotStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
