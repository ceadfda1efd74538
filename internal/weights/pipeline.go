// Package weights turns a score vector into a ledger-ready weight vector.
package weights

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"Scorekeeper/internal/logger"
)

// MaxWeight is the quantization ceiling; weights sum to at most this value.
const MaxWeight = math.MaxUint16

// ErrDegenerateDistribution is returned when scores cannot be normalized.
var ErrDegenerateDistribution = errors.New("degenerate score distribution")

// Admitter applies the ledger's admissibility rules to normalized weights.
// It may drop or rescale entries but must return equal-length slices whose
// uids are a subset of the input.
type Admitter interface {
	Admit(uids []int, weights []float64) ([]int, []float64, error)
}

// AdmitFunc adapts a function to Admitter.
type AdmitFunc func(uids []int, weights []float64) ([]int, []float64, error)

// Admit calls f.
func (f AdmitFunc) Admit(uids []int, weights []float64) ([]int, []float64, error) {
	return f(uids, weights)
}

// Vector is a quantized weight vector ready for submission.
type Vector struct {
	UIDs    []uint16 // UIDs are the admitted uids in admitter order
	Weights []uint16 // Weights are the quantized weights, parallel to UIDs
}

// Len returns the number of entries.
func (v Vector) Len() int {
	return len(v.UIDs)
}

// Sum returns the total quantized weight.
func (v Vector) Sum() int {
	total := 0
	for _, w := range v.Weights {
		total += int(w)
	}
	return total
}

// Prepare shifts scores non-negative, L1-normalizes them, passes them
// through admitter (nil admits everything) and quantizes the result.
// scores[i] is the score of uids[i]. Inputs are not modified.
func Prepare(scores []float64, uids []int, admitter Admitter) (Vector, error) {
	if len(scores) != len(uids) {
		return Vector{}, fmt.Errorf("scores and uids length mismatch: %d != %d", len(scores), len(uids))
	}

	raw, err := Normalize(scores)
	if err != nil {
		return Vector{}, err
	}

	admittedUIDs, admitted := uids, raw
	if admitter != nil {
		admittedUIDs, admitted, err = admitter.Admit(slices.Clone(uids), raw)
		if err != nil {
			return Vector{}, fmt.Errorf("admit weights:\n%w", err)
		}
	}

	if err := checkAdmitted(uids, admittedUIDs, admitted); err != nil {
		return Vector{}, err
	}

	return Quantize(admittedUIDs, admitted)
}

// Normalize returns a copy of scores shifted so the minimum is not negative
// and scaled to sum to one. NaN scores count as zero.
func Normalize(scores []float64) ([]float64, error) {
	w := make([]float64, len(scores))
	nans := 0

	for i, v := range scores {
		if math.IsNaN(v) {
			nans++
			continue
		}
		w[i] = v
	}

	if nans > 0 {
		logger.Warn("scores contain NaN values, treating as zero", "count", nans)
	}

	if len(w) == 0 {
		return nil, fmt.Errorf("%w: empty score vector", ErrDegenerateDistribution)
	}

	if lowest := floats.Min(w); lowest < 0 {
		floats.AddConst(-lowest, w)
	}

	sum := floats.Sum(w)
	if sum == 0 || math.IsInf(sum, 0) || math.IsNaN(sum) {
		return nil, fmt.Errorf("%w: sum %v", ErrDegenerateDistribution, sum)
	}

	floats.Scale(1/sum, w)

	return w, nil
}

// Quantize converts normalized weights to integers in [0, MaxWeight] by
// rounding w*MaxWeight. When rounding pushes the total past MaxWeight the
// excess is taken one unit at a time from the largest entries, lowest uid
// first on ties.
func Quantize(uids []int, weights []float64) (Vector, error) {
	if len(uids) != len(weights) {
		return Vector{}, fmt.Errorf("uids and weights length mismatch: %d != %d", len(uids), len(weights))
	}

	v := Vector{
		UIDs:    make([]uint16, len(uids)),
		Weights: make([]uint16, len(weights)),
	}

	total := 0

	for i, uid := range uids {
		if uid < 0 || uid > math.MaxUint16 {
			return Vector{}, fmt.Errorf("uid %d does not fit the ledger uid range", uid)
		}

		w := weights[i]
		if math.IsNaN(w) || w < 0 {
			w = 0
		}

		q := math.Round(w * MaxWeight)
		if q > MaxWeight {
			q = MaxWeight
		}

		v.UIDs[i] = uint16(uid)
		v.Weights[i] = uint16(q)
		total += int(q)
	}

	if excess := total - MaxWeight; excess > 0 {
		trimExcess(v, excess)
	}

	return v, nil
}

// trimExcess removes excess units from the largest weights.
func trimExcess(v Vector, excess int) {
	order := make([]int, v.Len())
	for i := range order {
		order[i] = i
	}

	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(v.Weights[b], v.Weights[a]); c != 0 {
			return c
		}
		return cmp.Compare(v.UIDs[a], v.UIDs[b])
	})

	for i := 0; excess > 0 && len(order) > 0; i = (i + 1) % len(order) {
		idx := order[i]
		if v.Weights[idx] == 0 {
			continue
		}
		v.Weights[idx]--
		excess--
	}
}

// checkAdmitted enforces the Admitter contract.
func checkAdmitted(input, uids []int, weights []float64) error {
	if len(uids) != len(weights) {
		return fmt.Errorf("admitter returned %d uids and %d weights", len(uids), len(weights))
	}

	known := make(map[int]struct{}, len(input))
	for _, uid := range input {
		known[uid] = struct{}{}
	}

	for _, uid := range uids {
		if _, ok := known[uid]; !ok {
			return fmt.Errorf("admitter introduced uid %d not present in topology", uid)
		}
	}

	return nil
}
