package metric

import (
	"fmt"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
)

// builders enumerates the constructors of all parameterless metric
// variants, in report order. HitsAtK is parameterized and instantiated
// separately per requested k.
var builders = []func() *Metric{
	ArithmeticMeanRank,
	InverseArithmeticMeanRank,
	GeometricMeanRank,
	InverseGeometricMeanRank,
	HarmonicMeanRank,
	InverseHarmonicMeanRank,
	MedianRank,
	InverseMedianRank,
	StandardDeviation,
	Variance,
	MedianAbsoluteDeviation,
	Count,
	AdjustedArithmeticMeanRank,
	AdjustedArithmeticMeanRankIndex,
}

// canonicalNames maps every canonical name and synonym to its canonical
// name. Built once from the static builder table.
var canonicalNames = buildCanonicalNames()

func buildCanonicalNames() map[string]string {
	names := make(map[string]string)
	for _, build := range builders {
		m := build()
		names[m.Name()] = m.Name()
		for _, syn := range m.Synonyms() {
			names[syn] = m.Name()
		}
	}
	names[HitsAtKName] = HitsAtKName
	names["hits@k"] = HitsAtKName
	names["h@k"] = HitsAtKName
	return names
}

// CanonicalName resolves a metric name or synonym to its canonical form.
func CanonicalName(name string) (string, bool) {
	canonical, ok := canonicalNames[name]
	return canonical, ok
}

// DefaultKs returns the default Hits@k thresholds.
func DefaultKs() []float64 {
	return []float64{1, 3, 5, 10}
}

// ValidateKs checks the Hits@k thresholds: each k must either be a
// positive integer or a fraction strictly between 0 and 1 denoting a
// relative rank threshold.
func ValidateKs(ks []float64) error {
	for _, k := range ks {
		if k == float64(int(k)) {
			if k < 1 {
				return errors.ValidationError(fmt.Sprintf("hits_at_k threshold must be positive, got %v", k))
			}
			continue
		}
		if k <= 0 || k >= 1 {
			return errors.ValidationError(fmt.Sprintf(
				"fractional hits_at_k threshold must lie strictly between 0 and 1, got %v", k))
		}
	}
	return nil
}

// All instantiates every metric variant, with one Hits@k instance per
// threshold. Nil or empty ks selects the defaults.
func All(ks []float64) ([]*Metric, error) {
	if len(ks) == 0 {
		ks = DefaultKs()
	}
	if err := ValidateKs(ks); err != nil {
		return nil, err
	}

	metrics := make([]*Metric, 0, len(builders)+len(ks))
	for _, build := range builders {
		metrics = append(metrics, build())
	}
	for _, k := range ks {
		if k == float64(int(k)) {
			metrics = append(metrics, HitsAtK(int(k)))
		} else {
			metrics = append(metrics, HitsAtFraction(k))
		}
	}
	return metrics, nil
}

// New instantiates a metric by canonical name or synonym. k is only
// consulted for hits_at_k, where zero selects the default of 10.
func New(name string, k int) (*Metric, error) {
	canonical, ok := CanonicalName(name)
	if !ok {
		return nil, errors.NotFoundError(fmt.Sprintf("metric %q", name))
	}
	if canonical == HitsAtKName {
		if k == 0 {
			k = 10
		}
		if k < 0 {
			return nil, errors.ValidationError(fmt.Sprintf("hits_at_k threshold must be positive, got %d", k))
		}
		return HitsAtK(k), nil
	}
	for _, build := range builders {
		if m := build(); m.Name() == canonical {
			return m, nil
		}
	}
	return nil, errors.NotFoundError(fmt.Sprintf("metric %q", name))
}
