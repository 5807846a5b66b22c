package metric

import (
	"math/rand"
	"time"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
)

// Chance baselines for rank-based metrics: the value a metric is expected
// to take when candidates are ordered uniformly at random. Closed forms
// exist for the mean rank and Hits@k; everything else falls back to Monte
// Carlo estimation.

// ExpectedMeanRank returns the expected mean rank under random ordering,
// 0.5 * (1 + mean(numCandidates)).
func ExpectedMeanRank(numCandidates []float64) float64 {
	return 0.5 * (1 + mean(numCandidates))
}

// ExpectedHitsAtK returns the expected Hits@k under random ordering,
// k * mean(min(1/css, 1/k)).
func ExpectedHitsAtK(numCandidates []float64, k int) float64 {
	kf := float64(k)
	sum := 0.0
	for _, css := range numCandidates {
		p := 1 / css
		if p > 1/kf {
			p = 1 / kf
		}
		sum += p
	}
	return kf * sum / float64(len(numCandidates))
}

// NumericExpectedValue estimates a metric's chance baseline by Monte
// Carlo: it draws numSamples independent rank vectors, each entry uniform
// over [1, numCandidates[i]], and averages the metric across draws. A nil
// rng falls back to a time-seeded source.
//
// The estimate may converge slowly depending on the metric; prefer the
// closed forms where they exist.
func NumericExpectedValue(m *Metric, numCandidates []float64, numSamples int, rng *rand.Rand) (float64, error) {
	if len(numCandidates) == 0 {
		return 0, errors.ValidationError("candidate counts are required")
	}
	if numSamples < 1 {
		return 0, errors.ValidationError("at least one sample is required")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ranks := make([]float64, len(numCandidates))
	total := 0.0
	for s := 0; s < numSamples; s++ {
		for i, css := range numCandidates {
			ranks[i] = float64(rng.Int63n(int64(css)) + 1)
		}
		value, err := m.Compute(ranks, numCandidates)
		if err != nil {
			return 0, err
		}
		total += value
	}
	return total / float64(numSamples), nil
}
