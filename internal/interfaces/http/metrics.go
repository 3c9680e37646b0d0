package http

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// MetricsRegistry holds all Prometheus metrics for signalherd.
type MetricsRegistry struct {
	ScoringCycleDuration prometheus.Histogram
	AccountsScored       prometheus.Counter
	AccountsFiltered     *prometheus.CounterVec

	EpisodesBuilt  *prometheus.CounterVec
	FillsProcessed prometheus.Counter

	ConsensusEvaluations *prometheus.CounterVec
	SignalsEmitted       *prometheus.CounterVec
	VoteBufferDepth      *prometheus.GaugeVec

	FeedReconnects prometheus.Counter
}

// NewMetricsRegistry creates the registry and registers everything with
// the default prometheus registerer.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		ScoringCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalherd_scoring_cycle_duration_seconds",
			Help:    "Duration of one full population scoring cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		AccountsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalherd_accounts_scored_total",
			Help: "Accounts scored across all scoring cycles",
		}),
		AccountsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalherd_accounts_filtered_total",
			Help: "Accounts excluded from ranking, by filter reason",
		}, []string{"reason"}),

		EpisodesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalherd_episodes_built_total",
			Help: "Episodes reconstructed, by close reason (open for still-open)",
		}, []string{"reason"}),
		FillsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalherd_fills_processed_total",
			Help: "Fills consumed from the feed",
		}),

		ConsensusEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalherd_consensus_evaluations_total",
			Help: "Consensus evaluations, by first failing gate (pass on success)",
		}, []string{"outcome"}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalherd_signals_emitted_total",
			Help: "Signals that cleared all gates, by direction",
		}, []string{"direction"}),
		VoteBufferDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalherd_vote_buffer_depth",
			Help: "Current rolling vote buffer depth per instrument",
		}, []string{"asset"}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalherd_feed_reconnects_total",
			Help: "Websocket feed reconnect attempts",
		}),
	}

	prometheus.MustRegister(
		r.ScoringCycleDuration,
		r.AccountsScored,
		r.AccountsFiltered,
		r.EpisodesBuilt,
		r.FillsProcessed,
		r.ConsensusEvaluations,
		r.SignalsEmitted,
		r.VoteBufferDepth,
		r.FeedReconnects,
	)
	return r
}

var globalMetrics *MetricsRegistry

// InitializeMetrics sets up the global registry; call once at startup.
func InitializeMetrics() {
	if globalMetrics == nil {
		globalMetrics = NewMetricsRegistry()
		log.Debug().Msg("metrics registry initialized")
	}
}

// GetMetrics returns the global registry, initializing lazily.
func GetMetrics() *MetricsRegistry {
	InitializeMetrics()
	return globalMetrics
}

// RecordScoringCycle records one scoring cycle's duration and volume.
func RecordScoringCycle(d time.Duration, scored, filtered int) {
	m := GetMetrics()
	m.ScoringCycleDuration.Observe(d.Seconds())
	m.AccountsScored.Add(float64(scored))
	_ = filtered // per-reason counts are recorded by RecordFilteredAccount
}

// RecordFilteredAccount counts one filtered account by reason.
func RecordFilteredAccount(reason string) {
	GetMetrics().AccountsFiltered.WithLabelValues(reason).Inc()
}

// RecordEpisode counts one reconstructed episode.
func RecordEpisode(reason string) {
	GetMetrics().EpisodesBuilt.WithLabelValues(reason).Inc()
}

// RecordConsensusEvaluation counts one evaluation by outcome: "pass" or
// the name of the first failing gate.
func RecordConsensusEvaluation(outcome string) {
	GetMetrics().ConsensusEvaluations.WithLabelValues(outcome).Inc()
}

// RecordSignal counts one emitted signal.
func RecordSignal(direction string) {
	GetMetrics().SignalsEmitted.WithLabelValues(direction).Inc()
}

// SetVoteBufferDepth publishes the current buffer depth for an asset.
func SetVoteBufferDepth(asset string, depth int) {
	GetMetrics().VoteBufferDepth.WithLabelValues(asset).Set(float64(depth))
}

// MetricsSummary is a flattened snapshot of the gathered families, used
// by the health endpoint.
type MetricsSummary struct {
	ScoringCycles        uint64  `json:"scoring_cycles"`
	AccountsScored       float64 `json:"accounts_scored"`
	ConsensusEvaluations float64 `json:"consensus_evaluations"`
	SignalsEmitted       float64 `json:"signals_emitted"`
}

// GatherSummary reads the relevant families out of the default gatherer.
func GatherSummary() (*MetricsSummary, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	summary := &MetricsSummary{}
	for _, fam := range families {
		switch fam.GetName() {
		case "signalherd_scoring_cycle_duration_seconds":
			summary.ScoringCycles = sumHistogramCount(fam)
		case "signalherd_accounts_scored_total":
			summary.AccountsScored = sumCounter(fam)
		case "signalherd_consensus_evaluations_total":
			summary.ConsensusEvaluations = sumCounter(fam)
		case "signalherd_signals_emitted_total":
			summary.SignalsEmitted = sumCounter(fam)
		}
	}
	return summary, nil
}

func sumCounter(fam *dto.MetricFamily) float64 {
	var total float64
	for _, m := range fam.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func sumHistogramCount(fam *dto.MetricFamily) uint64 {
	var total uint64
	for _, m := range fam.GetMetric() {
		total += m.GetHistogram().GetSampleCount()
	}
	return total
}
