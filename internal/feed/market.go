package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// marketState is the upstream per-instrument snapshot used by consensus
// evaluation: current mid, the policy stop distance, and the volatility
// percentile that scales the evaluation window.
type marketState struct {
	Mid           float64 `json:"mid"`
	StopBps       float64 `json:"stopDistanceBps"`
	VolPercentile float64 `json:"volPercentile"`

	fetchedAt time.Time
}

// MarketClient serves the evaluator's price and volatility lookups. One
// consensus evaluation asks for both, so responses are cached briefly to
// keep that to a single upstream request.
type MarketClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]marketState
	ttl   time.Duration
}

// NewMarketClient builds a market state client with the given cache TTL.
func NewMarketClient(baseURL string, rps float64, burst int, timeout, ttl time.Duration) *MarketClient {
	return &MarketClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		cache:   make(map[string]marketState),
		ttl:     ttl,
	}
}

// Mid returns the current mid price and policy stop distance.
func (c *MarketClient) Mid(ctx context.Context, asset string) (float64, float64, error) {
	st, err := c.state(ctx, asset)
	if err != nil {
		return 0, 0, err
	}
	return st.Mid, st.StopBps, nil
}

// VolPercentile returns the instrument's current volatility percentile.
func (c *MarketClient) VolPercentile(ctx context.Context, asset string) (float64, error) {
	st, err := c.state(ctx, asset)
	if err != nil {
		return 0, err
	}
	return st.VolPercentile, nil
}

func (c *MarketClient) state(ctx context.Context, asset string) (marketState, error) {
	c.mu.Lock()
	st, ok := c.cache[asset]
	c.mu.Unlock()
	if ok && time.Since(st.fetchedAt) < c.ttl {
		return st, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return marketState{}, err
	}

	url := fmt.Sprintf("%s/markets/%s", c.baseURL, asset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return marketState{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return marketState{}, fmt.Errorf("market %s: %w", asset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return marketState{}, fmt.Errorf("market %s: status %d", asset, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return marketState{}, fmt.Errorf("market %s: decode: %w", asset, err)
	}
	st.fetchedAt = time.Now()

	c.mu.Lock()
	c.cache[asset] = st
	c.mu.Unlock()
	return st, nil
}
