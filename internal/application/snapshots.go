package application

import (
	"math"
	"time"

	"github.com/signalherd/signalherd/internal/consensus"
	"github.com/signalherd/signalherd/internal/models"
)

// BuildWinRates derives per-account win-rate posteriors from the cycle's
// aggregate stats. Accounts with no closed trades are omitted; the
// consensus engine treats a missing posterior as the neutral prior.
func BuildWinRates(stats []models.AccountStats) map[string]models.WinRatePosterior {
	rates := make(map[string]models.WinRatePosterior, len(stats))
	for _, s := range stats {
		samples := s.NumWins + s.NumLosses
		if samples == 0 {
			continue
		}
		rates[s.Address] = models.WinRatePosterior{
			WinRate: float64(s.NumWins) / float64(samples),
			Samples: samples,
		}
	}
	return rates
}

// BuildCorrelations measures pairwise Pearson correlation of daily PnL
// increments between tracked accounts. Pairs with fewer than minOverlap
// common days are left out of the matrix; the effective-K shrinkage
// handles their absence.
func BuildCorrelations(stats []models.AccountStats, minOverlap int) consensus.CorrelationMatrix {
	daily := make(map[string]map[int64]float64, len(stats))
	for _, s := range stats {
		inc := dailyIncrements(s.PnlSeries)
		if len(inc) > 0 {
			daily[s.Address] = inc
		}
	}

	matrix := consensus.CorrelationMatrix{}
	addrs := make([]string, 0, len(daily))
	for a := range daily {
		addrs = append(addrs, a)
	}
	for i := 0; i < len(addrs); i++ {
		for j := i + 1; j < len(addrs); j++ {
			rho, n := pearsonOverlap(daily[addrs[i]], daily[addrs[j]])
			if n >= minOverlap {
				matrix[consensus.NewPairKey(addrs[i], addrs[j])] = rho
			}
		}
	}
	return matrix
}

// dailyIncrements buckets a cumulative PnL series into per-day changes.
func dailyIncrements(series []models.PnlPoint) map[int64]float64 {
	if len(series) < 2 {
		return nil
	}
	inc := make(map[int64]float64)
	for i := 1; i < len(series); i++ {
		day := series[i].Timestamp.Truncate(24 * time.Hour).Unix()
		inc[day] += series[i].Value - series[i-1].Value
	}
	return inc
}

// pearsonOverlap computes Pearson correlation over the days both series
// cover, returning the overlap size alongside.
func pearsonOverlap(a, b map[int64]float64) (float64, int) {
	var xs, ys []float64
	for day, x := range a {
		if y, ok := b[day]; ok {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	n := len(xs)
	if n < 2 {
		return 0, n
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, n
	}
	return cov / math.Sqrt(varX*varY), n
}
