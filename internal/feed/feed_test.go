package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalherd/signalherd/internal/models"
)

func TestDecodeAssignsMonotonicSeq(t *testing.T) {
	s := NewStream("ws://unused", nil, time.Second, time.Minute)

	a, err := s.decode(wireFill{FillID: "f1", Address: "0xa", Asset: "BTC", Side: "B", Size: "1", Price: "100", TimeMs: 1000})
	require.NoError(t, err)
	b, err := s.decode(wireFill{FillID: "f2", Address: "0xa", Asset: "BTC", Side: "S", Size: "1", Price: "101", TimeMs: 1000})
	require.NoError(t, err)

	assert.Equal(t, models.SideBuy, a.Side)
	assert.Equal(t, models.SideSell, b.Side)
	assert.Greater(t, b.Seq, a.Seq)
}

func TestDecodeRejectsBadNumerics(t *testing.T) {
	s := NewStream("ws://unused", nil, time.Second, time.Minute)

	cases := []struct {
		name string
		wf   wireFill
	}{
		{"nan size", wireFill{Size: "NaN", Price: "100"}},
		{"inf price", wireFill{Size: "1", Price: "Inf"}},
		{"zero size", wireFill{Size: "0", Price: "100"}},
		{"negative price", wireFill{Size: "1", Price: "-5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.decode(tc.wf)
			assert.Error(t, err)
		})
	}
}

func TestDecodeCarriesClosedPnl(t *testing.T) {
	s := NewStream("ws://unused", nil, time.Second, time.Minute)
	pnl := json.Number("12.5")

	f, err := s.decode(wireFill{FillID: "f1", Side: "S", Size: "2", Price: "50", TimeMs: 1000, ClosedPnl: &pnl, Fee: "0.1"})
	require.NoError(t, err)
	require.NotNil(t, f.RealizedPnl)
	assert.InDelta(t, 12.5, *f.RealizedPnl, 1e-9)
	assert.InDelta(t, 0.1, f.Fees, 1e-9)
}

func TestStatsClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/0xabc/stats", r.URL.Path)
		payload := map[string]any{
			"address":     "0xabc",
			"pnlHistory":  []any{[]any{1000, 1.0}, []any{2000, 2.5}},
			"realizedPnl": 2.5,
			"tradeCount":  12,
			"winCount":    7,
			"lossCount":   5,
		}
		json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	c := NewStatsClient(srv.URL, 100, 10, 2*time.Second)
	stats, err := c.Fetch(context.Background(), "0xabc")
	require.NoError(t, err)

	assert.Equal(t, "0xabc", stats.Address)
	assert.Equal(t, 12, stats.NumTrades)
	require.Len(t, stats.PnlSeries, 2)
	assert.InDelta(t, 2.5, stats.PnlSeries[1].Value, 1e-9)
}

func TestStatsClientBreakerOpensOnFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewStatsClient(srv.URL, 1000, 100, 2*time.Second)
	for i := 0; i < 5; i++ {
		_, err := c.Fetch(context.Background(), "0xabc")
		require.Error(t, err)
	}

	// Breaker is open now; the next call fails without hitting the server.
	_, err := c.Fetch(context.Background(), "0xabc")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
