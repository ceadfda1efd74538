package validator

import (
	"math"
	"slices"
	"testing"
)

func TestHistoryRingKeepsNewest(t *testing.T) {
	h := NewHistory(2, 3)

	for i := 1; i <= 5; i++ {
		h.Record([]float64{float64(i)}, []int{0})
	}

	if got := h.Recent(0); !slices.Equal(got, []float64{3, 4, 5}) {
		t.Errorf("Recent(0) = %v, want [3 4 5]", got)
	}

	if got := h.Recent(1); len(got) != 0 {
		t.Errorf("Recent(1) = %v, want empty", got)
	}
}

func TestHistoryPartialRing(t *testing.T) {
	h := NewHistory(1, 4)
	h.Record([]float64{7, 8}, []int{0, 0})

	if got := h.Recent(0); !slices.Equal(got, []float64{7, 8}) {
		t.Errorf("Recent(0) = %v, want [7 8]", got)
	}
}

func TestHistoryClearAndResize(t *testing.T) {
	h := NewHistory(1, 2)
	h.Record([]float64{1, 2}, []int{0, 5})

	h.Clear(0)
	if got := h.Recent(0); len(got) != 0 {
		t.Errorf("Recent(0) after Clear = %v", got)
	}

	h.Resize(6)
	h.Record([]float64{2}, []int{5})

	if got := h.Recent(5); !slices.Equal(got, []float64{2}) {
		t.Errorf("Recent(5) = %v, want [2]", got)
	}

	h.Resize(3)
	if h.Len() != 6 {
		t.Errorf("Len = %d after shrink request, want 6", h.Len())
	}
}

func TestHistoryStoresNonFiniteAsZero(t *testing.T) {
	h := NewHistory(1, 4)
	h.Record([]float64{math.NaN(), math.Inf(1), math.Inf(-1), 0.5}, []int{0, 0, 0, 0})

	if got := h.Recent(0); !slices.Equal(got, []float64{0, 0, 0, 0.5}) {
		t.Errorf("Recent(0) = %v, want [0 0 0 0.5]", got)
	}
}
