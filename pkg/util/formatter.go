package util

import (
	"fmt"
	"math"
)

var siPrefixes = []struct {
	scale  float64
	prefix string
}{
	{1e9, "G"},
	{1e6, "M"},
	{1e3, "k"},
	{1, ""},
	{1e-3, "m"},
	{1e-6, "u"},
	{1e-9, "n"},
	{1e-12, "p"},
	{1e-15, "f"},
}

// FormatValueFactor prints value with an engineering prefix, e.g. 2.5e-9 s
// as "2.500 ns".
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	if absValue == 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Sprintf("%.3f %s", value, unit)
	}
	for _, p := range siPrefixes {
		if absValue >= p.scale {
			return fmt.Sprintf("%.3f %s%s", value/p.scale, p.prefix, unit)
		}
	}
	return fmt.Sprintf("%.3e %s", value, unit)
}

// FormatNorm prints a residual norm in a fixed-width column.
func FormatNorm(value float64) string {
	if value >= 1000 || (value < 0.001 && value != 0) {
		return fmt.Sprintf("%9.3e", value) // "1.000e+03" or "5.430e-05"
	}
	return fmt.Sprintf("%9.4g", value) // "    732.5"
}

// FormatRatio prints a relative change, e.g. an energy drift, in percent when
// it is large enough to read that way.
func FormatRatio(value float64) string {
	if math.Abs(value) >= 1e-4 {
		return fmt.Sprintf("%.4f%%", value*100)
	}
	return fmt.Sprintf("%.3e", value)
}
