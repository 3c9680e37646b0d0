package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/signalherd/signalherd/internal/models"
)

// StatsClient fetches per-account reported statistics over HTTP,
// rate-limited and wrapped in a circuit breaker so a degraded upstream
// cannot stall a scoring cycle.
type StatsClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewStatsClient builds a stats client allowing rps requests per second
// with the given burst.
func NewStatsClient(baseURL string, rps float64, burst int, timeout time.Duration) *StatsClient {
	settings := gobreaker.Settings{
		Name:        "account-stats",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("stats breaker state change")
		},
	}
	return &StatsClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// statsPayload mirrors the upstream portfolio response. The PnL series
// arrives in whatever shape the venue emits; normalization happens in
// models.ParsePnlSeries.
type statsPayload struct {
	Address     string          `json:"address"`
	PnlHistory  json.RawMessage `json:"pnlHistory"`
	RealizedPnl float64         `json:"realizedPnl"`
	TradeCount  int             `json:"tradeCount"`
	WinCount    int             `json:"winCount"`
	LossCount   int             `json:"lossCount"`
	WindowStart int64           `json:"windowStart"`
}

// Fetch returns stats for one account, honoring the limiter and breaker.
func (c *StatsClient) Fetch(ctx context.Context, address string) (models.AccountStats, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.AccountStats{}, err
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, address)
	})
	if err != nil {
		return models.AccountStats{}, fmt.Errorf("stats %s: %w", address, err)
	}
	return result.(models.AccountStats), nil
}

func (c *StatsClient) fetch(ctx context.Context, address string) (models.AccountStats, error) {
	url := fmt.Sprintf("%s/accounts/%s/stats", c.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.AccountStats{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.AccountStats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.AccountStats{}, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var payload statsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.AccountStats{}, fmt.Errorf("decode: %w", err)
	}
	return c.toStats(payload)
}

func (c *StatsClient) toStats(p statsPayload) (models.AccountStats, error) {
	series, err := models.ParsePnlSeries(p.PnlHistory, time.UnixMilli(p.WindowStart))
	if err != nil {
		return models.AccountStats{}, fmt.Errorf("pnl series: %w", err)
	}
	return models.AccountStats{
		Address:     p.Address,
		RealizedPnl: p.RealizedPnl,
		NumTrades:   p.TradeCount,
		NumWins:     p.WinCount,
		NumLosses:   p.LossCount,
		PnlSeries:   series,
	}, nil
}
