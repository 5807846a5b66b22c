// Package metric provides the rank-based metric library: pure functions
// mapping rank arrays (and optionally candidate-set sizes) to scalars,
// together with metric-name resolution and chance baselines.
package metric

import "math"

// ValueRange describes the legal numeric interval of a metric value.
// An absent bound is encoded as ±Inf.
type ValueRange struct {
	Lower          float64
	LowerInclusive bool
	Upper          float64
	UpperInclusive bool
}

// atLeast builds a range [lower, +inf).
func atLeast(lower float64) ValueRange {
	return ValueRange{Lower: lower, LowerInclusive: true, Upper: math.Inf(1)}
}

// Contains reports whether x lies within the range.
func (r ValueRange) Contains(x float64) bool {
	if x < r.Lower || (x == r.Lower && !r.LowerInclusive) {
		return false
	}
	if x > r.Upper || (x == r.Upper && !r.UpperInclusive) {
		return false
	}
	return true
}
