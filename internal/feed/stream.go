// Package feed implements the transport collaborators around the
// analytic core: the websocket fill stream and the account stats
// fetcher. Input sanitation lives here — the core downstream assumes
// well-formed, finite numerics.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	httpmetrics "github.com/signalherd/signalherd/internal/interfaces/http"
	"github.com/signalherd/signalherd/internal/models"
)

// wireFill is the exchange's fill payload shape.
type wireFill struct {
	FillID    string       `json:"fid"`
	Address   string       `json:"user"`
	Asset     string       `json:"coin"`
	Side      string       `json:"side"` // "B" or "S"
	Size      json.Number  `json:"sz"`
	Price     json.Number  `json:"px"`
	TimeMs    int64        `json:"time"`
	ClosedPnl *json.Number `json:"closedPnl,omitempty"`
	Fee       json.Number  `json:"fee"`
}

// Stream consumes fills over a websocket and delivers them in arrival
// order with ingestion sequence numbers assigned.
type Stream struct {
	url       string
	addresses []string

	reconnectBase time.Duration
	reconnectMax  time.Duration

	seq atomic.Uint64
}

// NewStream creates a fill stream for the given account set.
func NewStream(url string, addresses []string, reconnectBase, reconnectMax time.Duration) *Stream {
	return &Stream{
		url:           url,
		addresses:     addresses,
		reconnectBase: reconnectBase,
		reconnectMax:  reconnectMax,
	}
}

// Run connects and pushes decoded fills into out until ctx is cancelled,
// reconnecting with exponential backoff on any transport error. Malformed
// fills are logged and dropped, never forwarded.
func (s *Stream) Run(ctx context.Context, out chan<- models.Fill) error {
	backoff := s.reconnectBase
	for {
		if err := s.consume(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			httpmetrics.GetMetrics().FeedReconnects.Inc()
			log.Warn().Err(err).Dur("backoff", backoff).Msg("fill stream disconnected")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.reconnectMax {
				backoff = s.reconnectMax
			}
			continue
		}
		backoff = s.reconnectBase
	}
}

func (s *Stream) consume(ctx context.Context, out chan<- models.Fill) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	for _, addr := range s.addresses {
		sub := map[string]any{
			"method": "subscribe",
			"subscription": map[string]string{
				"type": "userFills",
				"user": addr,
			},
		}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", addr, err)
		}
	}

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var envelope struct {
			Channel string     `json:"channel"`
			Data    []wireFill `json:"data"`
		}
		if err := json.Unmarshal(msg, &envelope); err != nil {
			log.Warn().Err(err).Msg("undecodable feed message dropped")
			continue
		}
		if envelope.Channel != "userFills" {
			continue
		}

		for _, wf := range envelope.Data {
			fill, err := s.decode(wf)
			if err != nil {
				log.Warn().Err(err).Str("fill_id", wf.FillID).Msg("malformed fill dropped")
				continue
			}
			httpmetrics.GetMetrics().FillsProcessed.Inc()
			select {
			case out <- fill:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// decode validates and converts one wire fill. Non-finite or
// non-positive numerics are rejected here so the episode builder can
// assume clean input.
func (s *Stream) decode(wf wireFill) (models.Fill, error) {
	size, err := finite(wf.Size)
	if err != nil {
		return models.Fill{}, fmt.Errorf("size: %w", err)
	}
	price, err := finite(wf.Price)
	if err != nil {
		return models.Fill{}, fmt.Errorf("price: %w", err)
	}
	if size <= 0 || price <= 0 {
		return models.Fill{}, fmt.Errorf("non-positive size %v or price %v", size, price)
	}

	side := models.SideSell
	if wf.Side == "B" || wf.Side == "buy" {
		side = models.SideBuy
	}

	fill := models.Fill{
		FillID:    wf.FillID,
		Address:   wf.Address,
		Asset:     wf.Asset,
		Side:      side,
		Size:      size,
		Price:     price,
		Timestamp: time.UnixMilli(wf.TimeMs),
		Seq:       s.seq.Add(1),
	}

	if wf.ClosedPnl != nil {
		pnl, err := finite(*wf.ClosedPnl)
		if err != nil {
			return models.Fill{}, fmt.Errorf("closed pnl: %w", err)
		}
		fill.RealizedPnl = &pnl
	}
	if fee, err := finite(wf.Fee); err == nil {
		fill.Fees = fee
	}
	return fill, nil
}

func finite(n json.Number) (float64, error) {
	v, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", n.String())
	}
	return v, nil
}
