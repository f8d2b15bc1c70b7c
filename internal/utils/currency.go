package utils

import (
	"fmt"
	"math"
)

// ToCents converts a two-decimal amount to integer cents, rounding half away
// from zero.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// HasCentPrecision reports whether amount carries at most two decimal places.
// A tolerance absorbs binary float noise such as 20.40 stored as 20.3999….
func HasCentPrecision(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	scaled := amount * 100
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}

func FormatAmount(amount float64) string {
	return fmt.Sprintf("%.2f", math.Round(amount*100)/100)
}
