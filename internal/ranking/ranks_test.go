package ranking

import (
	"math"
	"testing"

	"github.com/kgelab/kge-rank/internal/tensor"
)

func mustMatrix(t *testing.T, rows [][]float64) *tensor.Matrix {
	t.Helper()
	m, err := tensor.MatrixFromRows(rows)
	if err != nil {
		t.Fatalf("MatrixFromRows() error = %v", err)
	}
	return m
}

func TestComputeRankFromScores_Ties(t *testing.T) {
	// Two candidates tie with the true score, one strictly exceeds it.
	trueScores := tensor.NewVector([]float64{2})
	allScores := mustMatrix(t, [][]float64{{2, 2, 1, 3, 5}})

	ranks, err := ComputeRankFromScores(trueScores, allScores)
	if err != nil {
		t.Fatalf("ComputeRankFromScores() error = %v", err)
	}

	if got := ranks.Optimistic[0]; got != 3 {
		t.Errorf("Optimistic = %v, want 3", got)
	}
	if got := ranks.Pessimistic[0]; got != 4 {
		t.Errorf("Pessimistic = %v, want 4", got)
	}
	if got := ranks.Realistic[0]; got != 3.5 {
		t.Errorf("Realistic = %v, want 3.5", got)
	}
	if got := ranks.NumberOfOptions[0]; got != 5 {
		t.Errorf("NumberOfOptions = %v, want 5", got)
	}
}

func TestComputeRankFromScores_AllTied(t *testing.T) {
	trueScores := tensor.NewVector([]float64{1})
	allScores := mustMatrix(t, [][]float64{{1, 1, 1, 1}})

	ranks, err := ComputeRankFromScores(trueScores, allScores)
	if err != nil {
		t.Fatalf("ComputeRankFromScores() error = %v", err)
	}

	if got := ranks.Optimistic[0]; got != 1 {
		t.Errorf("Optimistic = %v, want 1", got)
	}
	if got := ranks.Pessimistic[0]; got != 4 {
		t.Errorf("Pessimistic = %v, want 4", got)
	}
	if got := ranks.Realistic[0]; got != 2.5 {
		t.Errorf("Realistic = %v, want 2.5", got)
	}
}

func TestComputeRankFromScores_NaNExclusion(t *testing.T) {
	nan := math.NaN()
	trueScores := tensor.NewVector([]float64{2})
	allScores := mustMatrix(t, [][]float64{{2, nan, 5, nan, 1}})

	ranks, err := ComputeRankFromScores(trueScores, allScores)
	if err != nil {
		t.Fatalf("ComputeRankFromScores() error = %v", err)
	}

	// The two NaN entries must neither count as candidates nor satisfy
	// either comparison.
	if got := ranks.NumberOfOptions[0]; got != 3 {
		t.Errorf("NumberOfOptions = %v, want 3", got)
	}
	if got := ranks.Optimistic[0]; got != 2 {
		t.Errorf("Optimistic = %v, want 2", got)
	}
	if got := ranks.Pessimistic[0]; got != 2 {
		t.Errorf("Pessimistic = %v, want 2", got)
	}
}

func TestComputeRankFromScores_OrderingInvariant(t *testing.T) {
	trueScores := tensor.NewVector([]float64{0.2, -1, 3})
	allScores := mustMatrix(t, [][]float64{
		{0.2, 0.9, 0.1, 0.2},
		{-1, -1, -1, 4},
		{3, 2, 1, 0},
	})

	ranks, err := ComputeRankFromScores(trueScores, allScores)
	if err != nil {
		t.Fatalf("ComputeRankFromScores() error = %v", err)
	}

	for i := 0; i < ranks.Len(); i++ {
		opt, real, pess := ranks.Optimistic[i], ranks.Realistic[i], ranks.Pessimistic[i]
		if opt < 1 || real < 1 || pess < 1 {
			t.Errorf("row %d: ranks must be >= 1, got %v/%v/%v", i, opt, real, pess)
		}
		if !(opt <= real && real <= pess) {
			t.Errorf("row %d: want optimistic <= realistic <= pessimistic, got %v/%v/%v", i, opt, real, pess)
		}
		if ranks.NumberOfOptions[i] < 1 {
			t.Errorf("row %d: NumberOfOptions = %d, want >= 1", i, ranks.NumberOfOptions[i])
		}
	}
}

func TestComputeRankFromScores_NonFiniteTrueScore(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1)} {
		trueScores := tensor.NewVector([]float64{bad})
		allScores := mustMatrix(t, [][]float64{{1, 2, 3}})

		if _, err := ComputeRankFromScores(trueScores, allScores); err == nil {
			t.Errorf("ComputeRankFromScores() with true score %v should fail", bad)
		}
	}
}

func TestComputeRankFromScores_MissingTrueScore(t *testing.T) {
	trueScores := tensor.NewVector([]float64{2})
	allScores := mustMatrix(t, [][]float64{{1, 3, 5}})

	if _, err := ComputeRankFromScores(trueScores, allScores); err == nil {
		t.Error("ComputeRankFromScores() should reject rows missing the true score")
	}
}

func TestComputeRankFromScores_ShapeMismatch(t *testing.T) {
	trueScores := tensor.NewVector([]float64{1, 2})
	allScores := mustMatrix(t, [][]float64{{1, 2, 3}})

	if _, err := ComputeRankFromScores(trueScores, allScores); err == nil {
		t.Error("ComputeRankFromScores() should reject mismatched shapes")
	}
}

func TestRanks_ByType(t *testing.T) {
	r := &Ranks{
		Optimistic:  []float64{1},
		Realistic:   []float64{2},
		Pessimistic: []float64{3},
	}

	tests := []struct {
		rankType RankType
		want     float64
	}{
		{RankOptimistic, 1},
		{RankRealistic, 2},
		{RankPessimistic, 3},
	}

	for _, tt := range tests {
		if got := r.ByType(tt.rankType)[0]; got != tt.want {
			t.Errorf("ByType(%s)[0] = %v, want %v", tt.rankType, got, tt.want)
		}
	}
}
