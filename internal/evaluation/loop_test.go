package evaluation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kgelab/kge-rank/internal/bus"
	"github.com/kgelab/kge-rank/internal/pkg/errors"
	"github.com/kgelab/kge-rank/internal/ranking"
	"github.com/kgelab/kge-rank/internal/tensor"
	"github.com/kgelab/kge-rank/internal/triples"
)

// fixedScorer serves pre-computed score rows per triple.
type fixedScorer struct {
	numEntities int64
	headScores  map[triples.Triple][]float64
	tailScores  map[triples.Triple][]float64
	failHeads   bool
}

func (s *fixedScorer) NumEntities() int64 {
	return s.numEntities
}

func (s *fixedScorer) ScoreHeads(ctx context.Context, batch []triples.Triple) (*tensor.Matrix, error) {
	if s.failHeads {
		return nil, errors.EvaluationError("head scoring is broken", nil)
	}
	return s.rows(s.headScores, batch)
}

func (s *fixedScorer) ScoreTails(ctx context.Context, batch []triples.Triple) (*tensor.Matrix, error) {
	return s.rows(s.tailScores, batch)
}

func (s *fixedScorer) rows(scores map[triples.Triple][]float64, batch []triples.Triple) (*tensor.Matrix, error) {
	m := tensor.NewMatrix(len(batch), int(s.numEntities))
	for i, t := range batch {
		row, ok := scores[t]
		if !ok {
			return nil, errors.EvaluationError("no scores for triple", nil)
		}
		copy(m.Row(i), row)
	}
	return m, nil
}

// evalScenario has one test triple (0, 0, 1) among four entities. One
// competitor per side outranks the true entity, and both competitors are
// known-true validation triples: unfiltered the triple ranks 2 on each
// side, filtered it ranks 1.
func evalScenario(t *testing.T) (*triples.Factory, *fixedScorer, triples.FilterSet) {
	t.Helper()

	evalTriple := triples.Triple{Head: 0, Relation: 0, Tail: 1}
	factory, err := triples.NewFactory([]triples.Triple{evalTriple}, 4, 1)
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}

	scorer := &fixedScorer{
		numEntities: 4,
		headScores: map[triples.Triple][]float64{
			// True head 0 is beaten only by head 3.
			evalTriple: {1.0, 0.0, 0.5, 2.0},
		},
		tailScores: map[triples.Triple][]float64{
			// True tail 1 is beaten only by tail 2.
			evalTriple: {0.0, 2.0, 3.0, -1.0},
		},
	}

	filter := triples.PrepareFilterTriples(factory.Triples(), []triples.Triple{
		{Head: 3, Relation: 0, Tail: 1}, // the better head is known true
		{Head: 0, Relation: 0, Tail: 2}, // the better tail is known true
	})

	return factory, scorer, filter
}

func TestLoop_UnfilteredThenFiltered(t *testing.T) {
	factory, scorer, filter := evalScenario(t)

	for _, tt := range []struct {
		name     string
		filtered bool
		want     float64
	}{
		{"unfiltered", false, 2},
		{"filtered", true, 1},
	} {
		t.Run(tt.name, func(t *testing.T) {
			evaluator, err := NewRankBasedEvaluator(Options{Filtered: tt.filtered})
			if err != nil {
				t.Fatalf("NewRankBasedEvaluator() error = %v", err)
			}
			loop, err := NewLoop(scorer, evaluator, LoopOptions{Filter: filter})
			if err != nil {
				t.Fatalf("NewLoop() error = %v", err)
			}

			result, err := loop.Run(context.Background(), factory)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			got := getValue(t, result, "arithmetic_mean_rank.both.realistic")
			if got != tt.want {
				t.Errorf("mean rank = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoop_PublishesEvents(t *testing.T) {
	factory, scorer, _ := evalScenario(t)

	memBus := bus.NewMemoryBus()
	defer memBus.Close()

	var started, finished atomic.Int32
	memBus.Subscribe(context.Background(), bus.TopicRunStarted, func(ctx context.Context, event bus.Event) error {
		started.Add(1)
		return nil
	})
	memBus.Subscribe(context.Background(), bus.TopicRunFinished, func(ctx context.Context, event bus.Event) error {
		finished.Add(1)
		if event.RunID == "" {
			t.Error("finished event has no run ID")
		}
		return nil
	})

	evaluator, err := NewRankBasedEvaluator(Options{})
	if err != nil {
		t.Fatalf("NewRankBasedEvaluator() error = %v", err)
	}
	loop, err := NewLoop(scorer, evaluator, LoopOptions{Bus: memBus, RunID: "run-test"})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	if loop.RunID() != "run-test" {
		t.Errorf("RunID() = %s, want run-test", loop.RunID())
	}

	if _, err := loop.Run(context.Background(), factory); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !memBus.DrainTimeout(time.Second) {
		t.Fatal("Timeout draining bus events")
	}
	if started.Load() != 1 || finished.Load() != 1 {
		t.Errorf("started=%d finished=%d, want 1 and 1", started.Load(), finished.Load())
	}
}

func TestLoop_ScorerFailure(t *testing.T) {
	factory, scorer, _ := evalScenario(t)
	scorer.failHeads = true

	memBus := bus.NewMemoryBus()
	defer memBus.Close()

	var failed atomic.Int32
	memBus.Subscribe(context.Background(), bus.TopicRunFailed, func(ctx context.Context, event bus.Event) error {
		failed.Add(1)
		return nil
	})

	evaluator, err := NewRankBasedEvaluator(Options{})
	if err != nil {
		t.Fatalf("NewRankBasedEvaluator() error = %v", err)
	}
	loop, err := NewLoop(scorer, evaluator, LoopOptions{Bus: memBus})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}

	if _, err := loop.Run(context.Background(), factory); err == nil {
		t.Fatal("Run() with a failing scorer should error")
	}

	if !memBus.DrainTimeout(time.Second) {
		t.Fatal("Timeout draining bus events")
	}
	if failed.Load() != 1 {
		t.Errorf("failed events = %d, want 1", failed.Load())
	}
}

func TestNewLoop_Validation(t *testing.T) {
	evaluator, err := NewRankBasedEvaluator(Options{})
	if err != nil {
		t.Fatalf("NewRankBasedEvaluator() error = %v", err)
	}

	if _, err := NewLoop(nil, evaluator, LoopOptions{}); err == nil {
		t.Error("NewLoop() without scorer should fail")
	}
	if _, err := NewLoop(&fixedScorer{numEntities: 1}, nil, LoopOptions{}); err == nil {
		t.Error("NewLoop() without evaluator should fail")
	}
	if _, err := NewLoop(&fixedScorer{numEntities: 1}, evaluator, LoopOptions{BatchSize: -1}); err == nil {
		t.Error("NewLoop() with negative batch size should fail")
	}
}

func TestLoop_SampledEvaluator(t *testing.T) {
	factory, scorer, _ := evalScenario(t)

	evaluator, err := NewSampledRankBasedEvaluator(SampledOptions{
		EvaluationFactory: factory,
		NumNegatives:      2,
		Negatives: map[ranking.Side][][]int64{
			ranking.SideHead: {{2, 3}},
			ranking.SideTail: {{2, 3}},
		},
	})
	if err != nil {
		t.Fatalf("NewSampledRankBasedEvaluator() error = %v", err)
	}

	loop, err := NewLoop(scorer, evaluator, LoopOptions{})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}

	result, err := loop.Run(context.Background(), factory)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Head candidates {true=1.0, 0.5, 2.0}: rank 2. Tail candidates
	// {true=2.0, 3.0, -1.0}: rank 2.
	if got := getValue(t, result, "mean_rank.both.realistic"); got != 2 {
		t.Errorf("mean rank = %v, want 2", got)
	}
}
