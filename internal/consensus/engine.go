// Package consensus decides whether the directional votes of top-ranked
// accounts form an actionable signal. A candidate consensus must clear
// five ordered gates — supermajority, correlation-adjusted independence,
// freshness, price drift, and net expected value — and a failure at any
// gate short-circuits the rest while still reporting every gate's
// diagnostics.
package consensus

import (
	"math"
	"sort"
	"time"

	"github.com/signalherd/signalherd/internal/models"
)

// Config holds every gate threshold and estimator tunable.
type Config struct {
	// Gate 1: supermajority.
	MinTraders int     `yaml:"min_traders"`
	MinPct     float64 `yaml:"min_pct"`

	// Gate 2: effective-K.
	MinEffectiveK          float64 `yaml:"min_effective_k"`
	BaseCorrelation        float64 `yaml:"base_correlation"`
	CorrelationShrinkage   float64 `yaml:"correlation_shrinkage"` // λ on the measured estimate
	MinPairsForCorrelation int     `yaml:"min_pairs_for_correlation"`

	// Gate 3: freshness.
	MaxStalenessFactor float64 `yaml:"max_staleness_factor"`

	// Gate 4: price drift.
	MaxPriceDriftR float64 `yaml:"max_price_drift_r"`

	// Gate 5: expected value.
	EvMinR      float64 `yaml:"ev_min_r"`
	AvgWinR     float64 `yaml:"avg_win_r"`
	AvgLossR    float64 `yaml:"avg_loss_r"`
	FeesBps     float64 `yaml:"fees_bps"`
	SlippageBps float64 `yaml:"slippage_bps"`

	// pWin estimator.
	MinWinRateSamples  int     `yaml:"min_win_rate_samples"`
	FullWeightSamples  float64 `yaml:"full_weight_samples"`
	ShrinkWeightDenom  float64 `yaml:"shrink_weight_denom"`
	NeutralProbability float64 `yaml:"neutral_probability"`
}

// DefaultConfig returns the production gate thresholds.
func DefaultConfig() Config {
	return Config{
		MinTraders: 3,
		MinPct:     0.70,

		MinEffectiveK:          2.0,
		BaseCorrelation:        0.3,
		CorrelationShrinkage:   0.7,
		MinPairsForCorrelation: 3,

		MaxStalenessFactor: 1.25,
		MaxPriceDriftR:     0.25,

		EvMinR:      0.2,
		AvgWinR:     0.5,
		AvgLossR:    0.3,
		FeesBps:     7,
		SlippageBps: 10,

		MinWinRateSamples:  5,
		FullWeightSamples:  30,
		ShrinkWeightDenom:  10,
		NeutralProbability: 0.5,
	}
}

// Validate rejects inverted or degenerate gate configurations; run once
// at load time.
func (c Config) Validate() error {
	switch {
	case c.MinTraders < 1:
		return errConfig("min_traders must be ≥ 1")
	case c.MinPct <= 0.5 || c.MinPct > 1:
		return errConfig("min_pct must be in (0.5, 1]")
	case c.MinEffectiveK < 1:
		return errConfig("min_effective_k must be ≥ 1")
	case c.BaseCorrelation < 0 || c.BaseCorrelation > 1:
		return errConfig("base_correlation must be in [0, 1]")
	case c.CorrelationShrinkage < 0 || c.CorrelationShrinkage > 1:
		return errConfig("correlation_shrinkage must be in [0, 1]")
	case c.MaxStalenessFactor <= 0:
		return errConfig("max_staleness_factor must be positive")
	case c.MaxPriceDriftR <= 0:
		return errConfig("max_price_drift_r must be positive")
	case c.AvgWinR <= 0 || c.AvgLossR <= 0:
		return errConfig("avg win/loss R must be positive")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errConfig(msg string) error { return configError("consensus config: " + msg) }

// CheckConsensus evaluates the rolling vote set against the five gates.
// now anchors the freshness measurement; correlation and win-rate inputs
// are read-only snapshots for the duration of the call. A failed gate is
// an ordinary result, never an error, and Gates always reports every
// gate with Evaluated marking whether it was reached.
func CheckConsensus(
	votes []models.Vote,
	now time.Time,
	currentMid float64,
	window time.Duration,
	stopBps float64,
	corr CorrelationMatrix,
	winRates map[string]models.WinRatePosterior,
	cfg Config,
) models.ConsensusResult {
	result := models.ConsensusResult{EvaluatedAt: now}

	// Gate 1: supermajority.
	var longs, shorts []models.Vote
	for _, v := range votes {
		if v.Dir == models.DirectionLong {
			longs = append(longs, v)
		} else {
			shorts = append(shorts, v)
		}
	}
	agreeing := longs
	dir := models.DirectionLong
	if len(shorts) > len(longs) {
		agreeing = shorts
		dir = models.DirectionShort
	}

	// Expose the agreeing subset on every outcome so rejection tickets
	// can still name the voters and their price dispersion.
	result.Votes = agreeing

	majorityPct := 0.0
	if len(votes) > 0 {
		majorityPct = float64(len(agreeing)) / float64(len(votes))
	}
	superOK := len(agreeing) >= cfg.MinTraders && majorityPct >= cfg.MinPct
	result.Gates.Supermajority = models.GateCheck{
		Name:      "supermajority",
		Passed:    superOK,
		Evaluated: true,
		Value:     float64(len(agreeing)),
		Threshold: float64(cfg.MinTraders),
	}
	if !superOK {
		// Downstream gates are reported un-evaluated with neutral values
		// so callers can tell "never reached" from "reached and failed".
		result.Gates.EffectiveK = skipped("effective_k", cfg.MinEffectiveK)
		result.Gates.Freshness = skipped("freshness", cfg.MaxStalenessFactor)
		result.Gates.PriceDrift = skipped("price_drift", cfg.MaxPriceDriftR)
		result.Gates.ExpectedValue = skipped("expected_value", cfg.EvMinR)
		return result
	}

	// Gate 2: effective-K.
	effK := effectiveK(agreeing, corr, cfg)
	result.EffectiveK = effK
	result.Gates.EffectiveK = models.GateCheck{
		Name:      "effective_k",
		Passed:    effK >= cfg.MinEffectiveK,
		Evaluated: true,
		Value:     effK,
		Threshold: cfg.MinEffectiveK,
	}
	if !result.Gates.EffectiveK.Passed {
		result.Gates.Freshness = skipped("freshness", cfg.MaxStalenessFactor)
		result.Gates.PriceDrift = skipped("price_drift", cfg.MaxPriceDriftR)
		result.Gates.ExpectedValue = skipped("expected_value", cfg.EvMinR)
		return result
	}

	// Gate 3: freshness of the oldest agreeing vote relative to the
	// evaluation window.
	oldest := agreeing[0].Timestamp
	for _, v := range agreeing[1:] {
		if v.Timestamp.Before(oldest) {
			oldest = v.Timestamp
		}
	}
	staleness := 0.0
	if window > 0 {
		staleness = float64(now.Sub(oldest)) / float64(window)
	}
	result.Gates.Freshness = models.GateCheck{
		Name:      "freshness",
		Passed:    staleness <= cfg.MaxStalenessFactor,
		Evaluated: true,
		Value:     staleness,
		Threshold: cfg.MaxStalenessFactor,
	}
	if !result.Gates.Freshness.Passed {
		result.Gates.PriceDrift = skipped("price_drift", cfg.MaxPriceDriftR)
		result.Gates.ExpectedValue = skipped("expected_value", cfg.EvMinR)
		return result
	}

	// Gate 4: price drift in R-units, so the gate scales with the stop
	// size of the instrument instead of raw bps.
	median := medianPrice(agreeing)
	result.MedianPrice = median
	driftR := 0.0
	if median > 0 && stopBps > 0 {
		driftBps := math.Abs(currentMid-median) / median * 10000
		driftR = driftBps / stopBps
	}
	result.Gates.PriceDrift = models.GateCheck{
		Name:      "price_drift",
		Passed:    driftR <= cfg.MaxPriceDriftR,
		Evaluated: true,
		Value:     driftR,
		Threshold: cfg.MaxPriceDriftR,
	}
	if !result.Gates.PriceDrift.Passed {
		result.Gates.ExpectedValue = skipped("expected_value", cfg.EvMinR)
		return result
	}

	// Gate 5: net expected value after costs.
	pWin := impliedWinProbability(agreeing, winRates, cfg)
	evGrossR := pWin*cfg.AvgWinR - (1-pWin)*cfg.AvgLossR
	evCostR := 0.0
	if stopBps > 0 {
		evCostR = (cfg.FeesBps + cfg.SlippageBps) / stopBps
	}
	evNetR := evGrossR - evCostR
	result.Confidence = pWin
	result.EvNetR = evNetR
	result.Gates.ExpectedValue = models.GateCheck{
		Name:      "expected_value",
		Passed:    evNetR >= cfg.EvMinR,
		Evaluated: true,
		Value:     evNetR,
		Threshold: cfg.EvMinR,
	}
	if !result.Gates.ExpectedValue.Passed {
		return result
	}

	result.Passes = true
	result.Dir = dir
	return result
}

func skipped(name string, threshold float64) models.GateCheck {
	return models.GateCheck{Name: name, Threshold: threshold}
}

// effectiveK computes the correlation-adjusted count of independent
// agreeing voters: (Σw)² / ΣᵢΣⱼ wᵢwⱼρᵢⱼ. Perfectly independent voters
// recover the raw count; copy-traders collapse toward 1.
func effectiveK(agreeing []models.Vote, corr CorrelationMatrix, cfg Config) float64 {
	weights := make([]float64, len(agreeing))
	var sum float64
	for i, v := range agreeing {
		weights[i] = math.Min(v.Weight, 1.0)
		sum += weights[i]
	}
	if sum == 0 {
		return 0
	}

	useMeasured := len(corr) >= cfg.MinPairsForCorrelation

	var denom float64
	for i := range agreeing {
		for j := range agreeing {
			rho := 1.0
			if i != j {
				rho = cfg.BaseCorrelation
				if useMeasured {
					if measured, ok := corr.Lookup(agreeing[i].Address, agreeing[j].Address); ok {
						rho = cfg.CorrelationShrinkage*measured +
							(1-cfg.CorrelationShrinkage)*cfg.BaseCorrelation
					}
				}
				rho = math.Max(0, math.Min(1, rho))
			}
			denom += weights[i] * weights[j] * rho
		}
	}
	if denom == 0 {
		return 0
	}
	return sum * sum / denom
}

// impliedWinProbability blends qualifying voters' historical win rates,
// weighted by vote weight and sample confidence, and shrinks the blend
// toward the neutral prior when total weight is thin.
func impliedWinProbability(agreeing []models.Vote, winRates map[string]models.WinRatePosterior, cfg Config) float64 {
	var weighted, totalWeight float64
	for _, v := range agreeing {
		post, ok := winRates[v.Address]
		if !ok || post.Samples < cfg.MinWinRateSamples {
			continue
		}
		sampleConf := math.Min(float64(post.Samples)/cfg.FullWeightSamples, 1)
		w := v.Weight * sampleConf
		weighted += post.WinRate * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return cfg.NeutralProbability
	}

	rawPWin := weighted / totalWeight
	shrinkage := math.Min(totalWeight/cfg.ShrinkWeightDenom, 1)
	return cfg.NeutralProbability*(1-shrinkage) + rawPWin*shrinkage
}

func medianPrice(votes []models.Vote) float64 {
	if len(votes) == 0 {
		return 0
	}
	prices := make([]float64, len(votes))
	for i, v := range votes {
		prices[i] = v.Price
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid]
	}
	return (prices[mid-1] + prices[mid]) / 2
}
