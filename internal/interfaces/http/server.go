// Package http exposes the monitoring surface: health, Prometheus
// metrics, and the latest emitted signal.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/signalherd/signalherd/internal/models"
)

// SignalSource supplies the most recent consensus result per asset.
type SignalSource interface {
	LatestSignal(ctx context.Context, asset string) (*models.ConsensusResult, error)
}

// EpisodeSource supplies stored episodes for the inspection endpoint.
type EpisodeSource interface {
	ListByAccount(ctx context.Context, address string, limit int) ([]models.Episode, error)
}

// Server is the monitoring HTTP server.
type Server struct {
	addr     string
	signals  SignalSource
	episodes EpisodeSource
	httpSrv  *http.Server
}

// NewServer wires the monitoring routes. signals and episodes may be
// nil, in which case their endpoints report 404.
func NewServer(addr string, signals SignalSource, episodes EpisodeSource) *Server {
	s := &Server{addr: addr, signals: signals, episodes: episodes}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/signals/latest", s.handleLatestSignal).Methods(http.MethodGet)
	r.HandleFunc("/episodes", s.handleEpisodes).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("monitoring server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := GatherSummary()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"metrics": summary,
	})
}

func (s *Server) handleLatestSignal(w http.ResponseWriter, r *http.Request) {
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		http.Error(w, "asset query parameter required", http.StatusBadRequest)
		return
	}
	if s.signals == nil {
		http.Error(w, "no signal source configured", http.StatusNotFound)
		return
	}

	sig, err := s.signals.LatestSignal(r.Context(), asset)
	if err != nil {
		log.Error().Err(err).Str("asset", asset).Msg("latest signal lookup failed")
		http.Error(w, "signal lookup failed", http.StatusInternalServerError)
		return
	}
	if sig == nil {
		http.Error(w, "no signal for asset", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		http.Error(w, "address query parameter required", http.StatusBadRequest)
		return
	}
	if s.episodes == nil {
		http.Error(w, "no episode store configured", http.StatusNotFound)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	episodes, err := s.episodes.ListByAccount(r.Context(), address, limit)
	if err != nil {
		log.Error().Err(err).Str("address", address).Msg("episode lookup failed")
		http.Error(w, "episode lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, episodes)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
