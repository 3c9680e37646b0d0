package consensus

import "strings"

// PairKey is the canonical key for an unordered address pair: the two
// addresses sorted lexicographically and joined with '|', so symmetric
// lookups never depend on argument order.
type PairKey string

// NewPairKey builds the canonical key for (a, b).
func NewPairKey(a, b string) PairKey {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return PairKey(a + "|" + b)
}

// CorrelationMatrix maps canonical address pairs to measured return
// correlations. It is published as an immutable snapshot: one evaluation
// reads one snapshot, and the updater replaces the whole map rather than
// mutating it in place.
type CorrelationMatrix map[PairKey]float64

// Lookup returns the measured correlation for (a, b) and whether a
// measurement exists. Self-pairs are always 1.
func (m CorrelationMatrix) Lookup(a, b string) (float64, bool) {
	if a == b {
		return 1, true
	}
	rho, ok := m[NewPairKey(a, b)]
	return rho, ok
}
