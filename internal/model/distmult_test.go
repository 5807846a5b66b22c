package model

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/kgelab/kge-rank/internal/tensor"
	"github.com/kgelab/kge-rank/internal/triples"
)

func testModel(t *testing.T) *DistMult {
	t.Helper()

	entities, err := tensor.MatrixFromRows([][]float64{
		{1, 0},
		{0, 1},
		{1, 1},
		{2, -1},
	})
	if err != nil {
		t.Fatalf("MatrixFromRows() error = %v", err)
	}
	relations, err := tensor.MatrixFromRows([][]float64{
		{1, 1},
		{0.5, 2},
	})
	if err != nil {
		t.Fatalf("MatrixFromRows() error = %v", err)
	}

	m, err := FromEmbeddings(entities, relations)
	if err != nil {
		t.Fatalf("FromEmbeddings() error = %v", err)
	}
	return m
}

func TestDistMult_ScoreHRT(t *testing.T) {
	m := testModel(t)

	tests := []struct {
		triple triples.Triple
		want   float64
	}{
		// sum over d of head*rel*tail
		{triples.Triple{Head: 0, Relation: 0, Tail: 1}, 0},
		{triples.Triple{Head: 2, Relation: 0, Tail: 2}, 2},
		{triples.Triple{Head: 3, Relation: 1, Tail: 2}, -1},
	}
	for _, tt := range tests {
		got, err := m.ScoreHRT(tt.triple)
		if err != nil {
			t.Fatalf("ScoreHRT(%+v) error = %v", tt.triple, err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("ScoreHRT(%+v) = %v, want %v", tt.triple, got, tt.want)
		}
	}
}

func TestDistMult_ScoreHeadsAndTails(t *testing.T) {
	m := testModel(t)
	batch := []triples.Triple{
		{Head: 0, Relation: 0, Tail: 1},
		{Head: 3, Relation: 1, Tail: 2},
	}

	headScores, err := m.ScoreHeads(context.Background(), batch)
	if err != nil {
		t.Fatalf("ScoreHeads() error = %v", err)
	}
	tailScores, err := m.ScoreTails(context.Background(), batch)
	if err != nil {
		t.Fatalf("ScoreTails() error = %v", err)
	}

	if headScores.Rows() != len(batch) || headScores.Cols() != int(m.NumEntities()) {
		t.Fatalf("ScoreHeads() shape = (%d, %d), want (%d, %d)",
			headScores.Rows(), headScores.Cols(), len(batch), m.NumEntities())
	}

	// Every column must agree with scoring the substituted triple directly.
	for i, tr := range batch {
		for e := int64(0); e < m.NumEntities(); e++ {
			wantHead, err := m.ScoreHRT(triples.Triple{Head: e, Relation: tr.Relation, Tail: tr.Tail})
			if err != nil {
				t.Fatalf("ScoreHRT() error = %v", err)
			}
			if got := headScores.At(i, int(e)); math.Abs(got-wantHead) > 1e-12 {
				t.Errorf("head score (%d, %d) = %v, want %v", i, e, got, wantHead)
			}

			wantTail, err := m.ScoreHRT(triples.Triple{Head: tr.Head, Relation: tr.Relation, Tail: e})
			if err != nil {
				t.Fatalf("ScoreHRT() error = %v", err)
			}
			if got := tailScores.At(i, int(e)); math.Abs(got-wantTail) > 1e-12 {
				t.Errorf("tail score (%d, %d) = %v, want %v", i, e, got, wantTail)
			}
		}
	}
}

func TestDistMult_OutOfRange(t *testing.T) {
	m := testModel(t)

	bad := []triples.Triple{
		{Head: 4, Relation: 0, Tail: 0},
		{Head: 0, Relation: 2, Tail: 0},
		{Head: 0, Relation: 0, Tail: -1},
	}
	for _, tr := range bad {
		if _, err := m.ScoreHRT(tr); err == nil {
			t.Errorf("ScoreHRT(%+v) should fail", tr)
		}
		if _, err := m.ScoreHeads(context.Background(), []triples.Triple{tr}); err == nil {
			t.Errorf("ScoreHeads(%+v) should fail", tr)
		}
	}
}

func TestDistMult_Cancelled(t *testing.T) {
	m := testModel(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ScoreHeads(ctx, []triples.Triple{{Head: 0, Relation: 0, Tail: 1}})
	if err == nil {
		t.Error("ScoreHeads() with cancelled context should fail")
	}
}

func TestNewDistMult(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	m, err := NewDistMult(10, 3, 8, rng)
	if err != nil {
		t.Fatalf("NewDistMult() error = %v", err)
	}
	if m.NumEntities() != 10 || m.NumRelations() != 3 || m.Dim() != 8 {
		t.Fatalf("unexpected model shape: %d entities, %d relations, dim %d",
			m.NumEntities(), m.NumRelations(), m.Dim())
	}

	// Embeddings stay within the init bound.
	bound := 1.0 / math.Sqrt(8)
	score, err := m.ScoreHRT(triples.Triple{Head: 0, Relation: 0, Tail: 1})
	if err != nil {
		t.Fatalf("ScoreHRT() error = %v", err)
	}
	if math.Abs(score) > 8*bound*bound*bound {
		t.Errorf("score %v exceeds theoretical bound", score)
	}

	if _, err := NewDistMult(0, 1, 4, rng); err == nil {
		t.Error("NewDistMult() with zero entities should fail")
	}
	if _, err := NewDistMult(1, 1, 0, rng); err == nil {
		t.Error("NewDistMult() with zero dimension should fail")
	}
}

func TestDistMult_EntityEmbeddings(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m, err := NewDistMult(10, 3, 8, rng)
	if err != nil {
		t.Fatalf("NewDistMult() error = %v", err)
	}

	entities := m.EntityEmbeddings()
	if entities.Rows() != 10 || entities.Cols() != 8 {
		t.Fatalf("entity matrix is %dx%d, want 10x8", entities.Rows(), entities.Cols())
	}
	relations := m.RelationEmbeddings()
	if relations.Rows() != 3 || relations.Cols() != 8 {
		t.Fatalf("relation matrix is %dx%d, want 3x8", relations.Rows(), relations.Cols())
	}

	bound := 1.0 / math.Sqrt(8)
	for i := 0; i < entities.Rows(); i++ {
		for _, v := range entities.Row(i) {
			if math.Abs(v) > bound {
				t.Fatalf("entity embedding value %v exceeds init bound %v", v, bound)
			}
		}
	}
}
