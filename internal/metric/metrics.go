package metric

import (
	"fmt"
	"strconv"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
	"github.com/kgelab/kge-rank/internal/ranking"
)

// Canonical metric names.
const (
	ArithmeticMeanRankName              = "arithmetic_mean_rank"
	InverseArithmeticMeanRankName       = "inverse_arithmetic_mean_rank"
	GeometricMeanRankName               = "geometric_mean_rank"
	InverseGeometricMeanRankName        = "inverse_geometric_mean_rank"
	HarmonicMeanRankName                = "harmonic_mean_rank"
	InverseHarmonicMeanRankName         = "inverse_harmonic_mean_rank"
	MedianRankName                      = "median_rank"
	InverseMedianRankName               = "inverse_median_rank"
	StandardDeviationName               = "rank_std"
	VarianceName                        = "rank_var"
	MedianAbsoluteDeviationName         = "rank_mad"
	CountName                           = "rank_count"
	HitsAtKName                         = "hits_at_k"
	AdjustedArithmeticMeanRankName      = "adjusted_arithmetic_mean_rank"
	AdjustedArithmeticMeanRankIndexName = "adjusted_arithmetic_mean_rank_index"
)

// Metric is a pure function from a rank array (and, for chance-adjusted
// metrics, the candidate-set sizes) to a scalar, annotated with the
// metadata needed for reporting and validation.
type Metric struct {
	name               string
	key                string
	synonyms           []string
	increasing         bool
	valueRange         ValueRange
	supportedRankTypes []ranking.RankType
	needsCandidates    bool
	compute            func(ranks, numCandidates []float64) float64
}

// Name returns the canonical metric name, e.g. "hits_at_k".
func (m *Metric) Name() string {
	return m.name
}

// Key returns the instance name used in reports; it differs from Name only
// for parameterized metrics, e.g. "hits_at_10".
func (m *Metric) Key() string {
	return m.key
}

// Synonyms returns alternate names accepted by the resolver.
func (m *Metric) Synonyms() []string {
	return m.synonyms
}

// Increasing reports whether larger values are better. Used for reporting
// and sorting only, never for computation.
func (m *Metric) Increasing() bool {
	return m.increasing
}

// Range returns the legal value interval of the metric.
func (m *Metric) Range() ValueRange {
	return m.valueRange
}

// SupportedRankTypes returns the rank types the metric is defined for.
func (m *Metric) SupportedRankTypes() []ranking.RankType {
	return m.supportedRankTypes
}

// SupportsRankType reports whether the metric is defined for the given
// rank type.
func (m *Metric) SupportsRankType(t ranking.RankType) bool {
	for _, s := range m.supportedRankTypes {
		if s == t {
			return true
		}
	}
	return false
}

// NeedsCandidates reports whether Compute requires the candidate counts.
func (m *Metric) NeedsCandidates() bool {
	return m.needsCandidates
}

// Compute evaluates the metric over the given ranks. numCandidates may be
// nil unless NeedsCandidates reports true.
func (m *Metric) Compute(ranks, numCandidates []float64) (float64, error) {
	if len(ranks) == 0 {
		return 0, errors.ValidationError(fmt.Sprintf("%s: no ranks given", m.key))
	}
	if m.needsCandidates && len(numCandidates) == 0 {
		return 0, errors.ValidationError(fmt.Sprintf("%s: candidate counts are required", m.key))
	}
	return m.compute(ranks, numCandidates), nil
}

func allRankTypes() []ranking.RankType {
	return ranking.RankTypes()
}

func realisticOnly() []ranking.RankType {
	return []ranking.RankType{ranking.RankRealistic}
}

// ArithmeticMeanRank is the mean rank (MR).
func ArithmeticMeanRank() *Metric {
	return &Metric{
		name:               ArithmeticMeanRankName,
		key:                ArithmeticMeanRankName,
		synonyms:           []string{"mean_rank", "mr"},
		valueRange:         atLeast(1),
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return mean(ranks)
		},
	}
}

// InverseArithmeticMeanRank is the reciprocal of the mean rank.
func InverseArithmeticMeanRank() *Metric {
	return &Metric{
		name:               InverseArithmeticMeanRankName,
		key:                InverseArithmeticMeanRankName,
		synonyms:           []string{"iamr"},
		increasing:         true,
		valueRange:         ValueRange{Lower: 0, Upper: 1, UpperInclusive: true},
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return 1 / mean(ranks)
		},
	}
}

// GeometricMeanRank is the geometric mean rank.
func GeometricMeanRank() *Metric {
	return &Metric{
		name:               GeometricMeanRankName,
		key:                GeometricMeanRankName,
		synonyms:           []string{"gmr"},
		valueRange:         atLeast(1),
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return geometricMean(ranks)
		},
	}
}

// InverseGeometricMeanRank is the reciprocal of the geometric mean rank.
func InverseGeometricMeanRank() *Metric {
	return &Metric{
		name:               InverseGeometricMeanRankName,
		key:                InverseGeometricMeanRankName,
		synonyms:           []string{"igmr"},
		increasing:         true,
		valueRange:         ValueRange{Lower: 0, Upper: 1, UpperInclusive: true},
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return 1 / geometricMean(ranks)
		},
	}
}

// HarmonicMeanRank is the harmonic mean rank.
func HarmonicMeanRank() *Metric {
	return &Metric{
		name:               HarmonicMeanRankName,
		key:                HarmonicMeanRankName,
		synonyms:           []string{"hmr"},
		valueRange:         atLeast(1),
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return harmonicMean(ranks)
		},
	}
}

// InverseHarmonicMeanRank is the mean reciprocal rank (MRR).
func InverseHarmonicMeanRank() *Metric {
	return &Metric{
		name:               InverseHarmonicMeanRankName,
		key:                InverseHarmonicMeanRankName,
		synonyms:           []string{"mean_reciprocal_rank", "mrr"},
		increasing:         true,
		valueRange:         ValueRange{Lower: 0, Upper: 1, UpperInclusive: true},
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return 1 / harmonicMean(ranks)
		},
	}
}

// MedianRank is the median rank.
func MedianRank() *Metric {
	return &Metric{
		name:               MedianRankName,
		key:                MedianRankName,
		valueRange:         atLeast(1),
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return median(ranks)
		},
	}
}

// InverseMedianRank is the reciprocal of the median rank.
func InverseMedianRank() *Metric {
	return &Metric{
		name:               InverseMedianRankName,
		key:                InverseMedianRankName,
		increasing:         true,
		valueRange:         ValueRange{Lower: 0, Upper: 1, UpperInclusive: true},
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return 1 / median(ranks)
		},
	}
}

// StandardDeviation is the ranks' population standard deviation.
func StandardDeviation() *Metric {
	return &Metric{
		name:               StandardDeviationName,
		key:                StandardDeviationName,
		synonyms:           []string{"std", "standard_deviation"},
		valueRange:         atLeast(0),
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return stdDev(ranks)
		},
	}
}

// Variance is the ranks' population variance.
func Variance() *Metric {
	return &Metric{
		name:               VarianceName,
		key:                VarianceName,
		synonyms:           []string{"var", "variance"},
		valueRange:         atLeast(0),
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return variance(ranks)
		},
	}
}

// MedianAbsoluteDeviation is the ranks' median absolute deviation (MAD).
func MedianAbsoluteDeviation() *Metric {
	return &Metric{
		name:               MedianAbsoluteDeviationName,
		key:                MedianAbsoluteDeviationName,
		synonyms:           []string{"mad", "median_absolute_deviation"},
		valueRange:         atLeast(0),
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return medianAbsoluteDeviation(ranks)
		},
	}
}

// Count is the number of ranking tasks.
func Count() *Metric {
	return &Metric{
		name:               CountName,
		key:                CountName,
		synonyms:           []string{"count"},
		increasing:         true,
		valueRange:         atLeast(0),
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			return float64(len(ranks))
		},
	}
}

// HitsAtK is the fraction of ranks at or below the threshold k.
func HitsAtK(k int) *Metric {
	return &Metric{
		name:               HitsAtKName,
		key:                fmt.Sprintf("hits_at_%d", k),
		synonyms:           []string{"h@k", "hits@k"},
		increasing:         true,
		valueRange:         ValueRange{Lower: 0, LowerInclusive: true, Upper: 1, UpperInclusive: true},
		supportedRankTypes: allRankTypes(),
		compute: func(ranks, _ []float64) float64 {
			hits := 0
			for _, r := range ranks {
				if r <= float64(k) {
					hits++
				}
			}
			return float64(hits) / float64(len(ranks))
		},
	}
}

// HitsAtFraction is Hits@k with a relative threshold: a rank counts as a
// hit when it is at or below frac times the row's candidate-set size.
func HitsAtFraction(frac float64) *Metric {
	return &Metric{
		name:               HitsAtKName,
		key:                "hits_at_" + strconv.FormatFloat(frac, 'g', -1, 64),
		increasing:         true,
		valueRange:         ValueRange{Lower: 0, LowerInclusive: true, Upper: 1, UpperInclusive: true},
		supportedRankTypes: allRankTypes(),
		needsCandidates:    true,
		compute: func(ranks, numCandidates []float64) float64 {
			hits := 0
			for i, r := range ranks {
				if r <= frac*numCandidates[i] {
					hits++
				}
			}
			return float64(hits) / float64(len(ranks))
		},
	}
}

// AdjustedArithmeticMeanRank is the mean rank divided by its chance
// baseline (AMR). Only defined for the realistic rank type; the chance
// baselines for the optimistic and pessimistic conventions are unknown.
func AdjustedArithmeticMeanRank() *Metric {
	return &Metric{
		name:               AdjustedArithmeticMeanRankName,
		key:                AdjustedArithmeticMeanRankName,
		synonyms:           []string{"adjusted_mean_rank", "amr", "aamr"},
		valueRange:         ValueRange{Lower: 0, LowerInclusive: true, Upper: 2},
		supportedRankTypes: realisticOnly(),
		needsCandidates:    true,
		compute: func(ranks, numCandidates []float64) float64 {
			return mean(ranks) / ExpectedMeanRank(numCandidates)
		},
	}
}

// AdjustedArithmeticMeanRankIndex is the chance-normalized mean rank
// (AMRI), 1 for perfect ranking, 0 for random, -1 for inverted. Only
// defined for the realistic rank type.
func AdjustedArithmeticMeanRankIndex() *Metric {
	return &Metric{
		name:               AdjustedArithmeticMeanRankIndexName,
		key:                AdjustedArithmeticMeanRankIndexName,
		synonyms:           []string{"adjusted_mean_rank_index", "amri", "aamri"},
		increasing:         true,
		valueRange:         ValueRange{Lower: -1, LowerInclusive: true, Upper: 1, UpperInclusive: true},
		supportedRankTypes: realisticOnly(),
		needsCandidates:    true,
		compute: func(ranks, numCandidates []float64) float64 {
			return 1 - (mean(ranks)-1)/(ExpectedMeanRank(numCandidates)-1)
		},
	}
}
