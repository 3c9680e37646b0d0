package scoring

import (
	"sort"

	"github.com/signalherd/signalherd/internal/models"
)

// RankAccounts scores the population, sorts by composite score
// descending, and normalizes ranking weights over the top N. Filtered
// accounts are excluded unless the whole population is filtered, in which
// case the unfiltered fallback set keeps the ranking non-empty.
func RankAccounts(accounts []models.AccountStats, params Params, topN int) []models.RankedAccount {
	scored := make([]models.ScoringResult, 0, len(accounts))
	for _, a := range accounts {
		scored = append(scored, ComputePerformanceScore(a, params))
	}
	return RankScored(scored, topN)
}

// RankScored ranks pre-computed scoring results; the pipeline uses this
// after fanning per-account scoring out across workers.
func RankScored(scored []models.ScoringResult, topN int) []models.RankedAccount {
	eligible := make([]models.ScoringResult, 0, len(scored))
	for _, s := range scored {
		if !s.Filtered {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		// Never return an empty ranking when the population is non-empty.
		// Copied so the sort below cannot reorder the caller's slice.
		eligible = append(eligible, scored...)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Score > eligible[j].Score
	})

	ranked := make([]models.RankedAccount, len(eligible))
	var topSum float64
	for i, s := range eligible {
		ranked[i] = models.RankedAccount{ScoringResult: s, Rank: i + 1}
		if i < topN {
			topSum += positive(s.Score)
		}
	}
	if topSum > 0 {
		for i := range ranked {
			if i < topN {
				ranked[i].Weight = positive(ranked[i].Score) / topSum
			}
		}
	}
	return ranked
}

func positive(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}
