package weights

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// lowWeightFloor is added to every entry when too few uids carry weight.
const lowWeightFloor = 1e-5

// LimitFilter enforces the ledger's weight-setting limits.
type LimitFilter struct {
	MinAllowedWeights int     // MinAllowedWeights is the fewest uids a commit may weight
	MaxWeightLimit    float64 // MaxWeightLimit caps any single weight as a fraction of the total
	ExcludeQuantile   float64 // ExcludeQuantile drops the lowest non-zero weights, in [0, 1]
}

// Admit implements Admitter.
//
// With no non-zero weight, or fewer uids than MinAllowedWeights, every uid
// gets an equal share. With fewer non-zero weights than MinAllowedWeights a
// small floor is spread over all uids before capping. Otherwise zero weights
// and the lowest ExcludeQuantile of the rest are dropped and the remainder
// is capped at MaxWeightLimit.
func (f LimitFilter) Admit(uids []int, weights []float64) ([]int, []float64, error) {
	if len(uids) != len(weights) {
		return nil, nil, fmt.Errorf("uids and weights length mismatch: %d != %d", len(uids), len(weights))
	}

	if f.MaxWeightLimit <= 0 || f.MaxWeightLimit > 1 {
		return nil, nil, fmt.Errorf("max weight limit must be in (0, 1], got %v", f.MaxWeightLimit)
	}

	n := len(uids)
	if n == 0 {
		return nil, nil, nil
	}

	var nzUIDs []int
	var nzWeights []float64

	for i, w := range weights {
		if w > 0 {
			nzUIDs = append(nzUIDs, uids[i])
			nzWeights = append(nzWeights, w)
		}
	}

	if len(nzWeights) == 0 || n < f.MinAllowedWeights {
		return slices.Clone(uids), uniform(n), nil
	}

	if len(nzWeights) < f.MinAllowedWeights {
		floored := slices.Clone(weights)
		floats.AddConst(lowWeightFloor, floored)
		return slices.Clone(uids), normalizeMaxWeight(floored, f.MaxWeightLimit), nil
	}

	maxExclude := float64(max(0, len(nzWeights)-f.MinAllowedWeights)) / float64(len(nzWeights))
	lowest := quantile(nzWeights, min(f.ExcludeQuantile, maxExclude))

	var keptUIDs []int
	var kept []float64

	for i, w := range nzWeights {
		if w >= lowest {
			keptUIDs = append(keptUIDs, nzUIDs[i])
			kept = append(kept, w)
		}
	}

	return keptUIDs, normalizeMaxWeight(kept, f.MaxWeightLimit), nil
}

// normalizeMaxWeight normalizes x so no entry exceeds limit, clipping the
// largest entries at a common cutoff and renormalizing.
func normalizeMaxWeight(x []float64, limit float64) []float64 {
	const epsilon = 1e-7

	n := len(x)
	total := floats.Sum(x)

	if total == 0 || float64(n)*limit <= 1 {
		return uniform(n)
	}

	values := slices.Clone(x)
	slices.Sort(values)

	estimation := slices.Clone(values)
	floats.Scale(1/total, estimation)

	if floats.Max(estimation) <= limit {
		w := slices.Clone(x)
		floats.Scale(1/total, w)
		return w
	}

	cumsum := make([]float64, n)
	floats.CumSum(cumsum, estimation)

	nValues := 0
	for i := range estimation {
		tail := float64(n-i-1) * estimation[i]
		if estimation[i]/(tail+cumsum[i]+epsilon) < limit {
			nValues++
		}
	}

	if nValues == 0 {
		nValues = n
	}

	cutoffScale := (limit*cumsum[nValues-1] - epsilon) / (1 - limit*float64(n-nValues))
	cutoff := cutoffScale * total

	w := slices.Clone(x)
	for i := range w {
		if w[i] > cutoff {
			w[i] = cutoff
		}
	}

	floats.Scale(1/floats.Sum(w), w)

	return w
}

// quantile returns the q-th quantile of x with linear interpolation between
// order statistics.
func quantile(x []float64, q float64) float64 {
	sorted := slices.Clone(x)
	slices.Sort(sorted)

	if q <= 0 {
		return sorted[0]
	}

	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))

	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// uniform returns n equal weights summing to one.
func uniform(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}
