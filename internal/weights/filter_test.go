package weights

import (
	"math"
	"slices"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestLimitFilterUniformWhenNothingWeighted(t *testing.T) {
	f := LimitFilter{MinAllowedWeights: 1, MaxWeightLimit: 1}

	uids, w, err := f.Admit([]int{0, 1, 2, 3}, []float64{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	if !slices.Equal(uids, []int{0, 1, 2, 3}) {
		t.Errorf("uids = %v", uids)
	}

	for _, v := range w {
		if v != 0.25 {
			t.Errorf("weights = %v, want uniform", w)
			break
		}
	}
}

func TestLimitFilterDropsZeros(t *testing.T) {
	f := LimitFilter{MinAllowedWeights: 1, MaxWeightLimit: 1}

	uids, w, err := f.Admit([]int{0, 1, 2}, []float64{0.8, 0, 0.2})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	if !slices.Equal(uids, []int{0, 2}) {
		t.Errorf("uids = %v, want [0 2]", uids)
	}

	if math.Abs(w[0]-0.8) > 1e-12 || math.Abs(w[1]-0.2) > 1e-12 {
		t.Errorf("weights = %v", w)
	}
}

func TestLimitFilterFloorsWhenTooFewWeighted(t *testing.T) {
	f := LimitFilter{MinAllowedWeights: 3, MaxWeightLimit: 1}

	uids, w, err := f.Admit([]int{0, 1, 2, 3}, []float64{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	if len(uids) != 4 {
		t.Fatalf("expected every uid kept, got %v", uids)
	}

	for i := 1; i < 4; i++ {
		if w[i] <= 0 {
			t.Errorf("uid %d weight %v, want floor", i, w[i])
		}
	}

	if math.Abs(floats.Sum(w)-1) > 1e-9 {
		t.Errorf("sum = %v", floats.Sum(w))
	}
}

func TestLimitFilterCapsMaxWeight(t *testing.T) {
	f := LimitFilter{MinAllowedWeights: 1, MaxWeightLimit: 0.4}

	_, w, err := f.Admit([]int{0, 1, 2, 3}, []float64{0.7, 0.1, 0.1, 0.1})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	if floats.Max(w) > 0.4+1e-6 {
		t.Errorf("max weight %v exceeds limit: %v", floats.Max(w), w)
	}

	if math.Abs(floats.Sum(w)-1) > 1e-9 {
		t.Errorf("sum = %v", floats.Sum(w))
	}
}

func TestLimitFilterExcludesLowQuantile(t *testing.T) {
	f := LimitFilter{MinAllowedWeights: 2, MaxWeightLimit: 1, ExcludeQuantile: 0.5}

	uids, _, err := f.Admit([]int{0, 1, 2, 3}, []float64{0.1, 0.2, 0.3, 0.4})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	if !slices.Equal(uids, []int{2, 3}) {
		t.Errorf("uids = %v, want [2 3]", uids)
	}
}

func TestLimitFilterRejectsBadLimit(t *testing.T) {
	f := LimitFilter{MinAllowedWeights: 1}

	if _, _, err := f.Admit([]int{0}, []float64{1}); err == nil {
		t.Fatal("expected error for zero max weight limit")
	}
}

func TestQuantile(t *testing.T) {
	x := []float64{4, 1, 3, 2}

	tests := []struct {
		q, want float64
	}{
		{0, 1},
		{1, 4},
		{0.5, 2.5},
		{1.0 / 3, 2},
	}

	for _, tt := range tests {
		if got := quantile(x, tt.q); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("quantile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
}
