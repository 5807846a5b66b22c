// Package ranking computes rank statistics from triple scores.
//
// Given the score of a true triple and the scores of all candidate
// completions, the rank of the true triple depends on how ties are broken:
// the optimistic rank places the true triple ahead of all equal-scoring
// candidates, the pessimistic rank behind them, and the realistic rank is
// the expectation under uniformly random tie-breaking.
package ranking

import (
	"fmt"
	"math"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
	"github.com/kgelab/kge-rank/internal/tensor"
)

// Side identifies which triple position is being predicted.
type Side string

// Prediction sides.
const (
	SideHead Side = "head"
	SideTail Side = "tail"
	SideBoth Side = "both"
)

// RealSides returns the sides for which scores are actually produced.
func RealSides() []Side {
	return []Side{SideHead, SideTail}
}

// Sides returns all sides, including the combined "both" pseudo-side.
func Sides() []Side {
	return []Side{SideHead, SideTail, SideBoth}
}

// RankType identifies a tie-breaking convention.
type RankType string

// Rank types.
const (
	RankOptimistic  RankType = "optimistic"
	RankRealistic   RankType = "realistic"
	RankPessimistic RankType = "pessimistic"
)

// RankTypes returns all rank types.
func RankTypes() []RankType {
	return []RankType{RankOptimistic, RankRealistic, RankPessimistic}
}

// Ranks holds the per-row rank statistics for one evaluation batch.
// All slices have length equal to the batch size, and all rank positions
// are one-based.
type Ranks struct {
	// Optimistic ranks: ties resolved in favor of the true triple.
	Optimistic []float64

	// Realistic ranks: the average of the optimistic and pessimistic rank,
	// i.e. the expected rank over all permutations of equal-scoring
	// candidates.
	Realistic []float64

	// Pessimistic ranks: ties resolved against the true triple.
	Pessimistic []float64

	// NumberOfOptions counts the finite-scored candidates per row, the
	// true triple included. Filtered evaluation shrinks it.
	NumberOfOptions []int64
}

// Len returns the batch size.
func (r *Ranks) Len() int {
	return len(r.Realistic)
}

// ByType returns the rank slice for the given rank type.
func (r *Ranks) ByType(t RankType) []float64 {
	switch t {
	case RankOptimistic:
		return r.Optimistic
	case RankPessimistic:
		return r.Pessimistic
	default:
		return r.Realistic
	}
}

// ComputeRankFromScores derives ranks from a batch of scores.
//
// trueScores holds the score of each true triple, shape (batchSize,).
// allScores holds the scores of all candidates including the true triple
// itself, shape (batchSize, numCandidates). Candidates excluded by filtered
// evaluation must be encoded as NaN; they participate in neither the
// comparisons nor the candidate count.
//
// The true triple's own score must be finite and must appear among the
// row's candidates; both are validated rather than silently producing
// off-by-one ranks.
func ComputeRankFromScores(trueScores *tensor.Vector, allScores *tensor.Matrix) (*Ranks, error) {
	batchSize := trueScores.Len()
	if allScores.Rows() != batchSize {
		return nil, errors.ValidationError(fmt.Sprintf(
			"score shape mismatch: %d true scores vs %d candidate rows", batchSize, allScores.Rows()))
	}

	ranks := &Ranks{
		Optimistic:      make([]float64, batchSize),
		Realistic:       make([]float64, batchSize),
		Pessimistic:     make([]float64, batchSize),
		NumberOfOptions: make([]int64, batchSize),
	}

	for i := 0; i < batchSize; i++ {
		ts := trueScores.At(i)
		if math.IsNaN(ts) || math.IsInf(ts, 0) {
			return nil, errors.PreconditionError(fmt.Sprintf("true score at row %d is not finite", i))
		}

		var greater, greaterEqual, finite int64
		foundTrue := false
		for _, s := range allScores.Row(i) {
			// NaN never satisfies either comparison.
			if s > ts {
				greater++
			}
			if s >= ts {
				greaterEqual++
			}
			if !math.IsNaN(s) && !math.IsInf(s, 0) {
				finite++
			}
			if s == ts {
				foundTrue = true
			}
		}
		if !foundTrue {
			return nil, errors.PreconditionError(fmt.Sprintf(
				"true score at row %d is missing from the candidate scores", i))
		}

		// The optimistic rank is one plus the number of strictly better
		// candidates. The pessimistic rank counts candidates scoring at
		// least as well; that count already includes the true triple, so
		// the one-based offset cancels.
		opt := float64(greater + 1)
		pess := float64(greaterEqual)
		ranks.Optimistic[i] = opt
		ranks.Pessimistic[i] = pess
		ranks.Realistic[i] = 0.5 * (opt + pess)
		ranks.NumberOfOptions[i] = finite
	}

	return ranks, nil
}
