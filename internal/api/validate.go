package api

import (
	"fmt"
	"math"
	"strconv"
)

// parseUID validates a uid path segment against the current vector size.
func parseUID(raw string, size int) (int, error) {
	uid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid uid %q", raw)
	}

	if uid < 0 || uid >= size {
		return 0, fmt.Errorf("uid %d out of range [0, %d)", uid, size)
	}

	return uid, nil
}

// finite copies v with NaN and infinities replaced by zero, which
// encoding/json cannot represent.
func finite(v []float64) []float64 {
	out := make([]float64, len(v))

	for i, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out[i] = x
		}
	}

	return out
}
