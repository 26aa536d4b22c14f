package vectorize

import (
	"fmt"
	"math"
)

// Validate rejects vectors that would poison the search index: empty or
// all-zero (provider dummies), NaN/Inf components, and vectors whose L2
// norm falls outside the plausible band. An invalid vector must never be
// written to the store; the row stays unembedded instead.
func Validate(vec []float32, normMin, normMax float64) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector")
	}

	allZero := true
	sumSquares := 0.0
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("vector contains NaN or Inf")
		}
		if f != 0 {
			allZero = false
		}
		sumSquares += f * f
	}
	if allZero {
		return fmt.Errorf("all-zero vector")
	}

	norm := math.Sqrt(sumSquares)
	if norm < normMin || norm > normMax {
		return fmt.Errorf("vector norm %.3g outside [%.3g, %.3g]", norm, normMin, normMax)
	}
	return nil
}
