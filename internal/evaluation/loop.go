package evaluation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kgelab/kge-rank/internal/bus"
	"github.com/kgelab/kge-rank/internal/pkg/errors"
	"github.com/kgelab/kge-rank/internal/pkg/logger"
	"github.com/kgelab/kge-rank/internal/ranking"
	"github.com/kgelab/kge-rank/internal/tensor"
	"github.com/kgelab/kge-rank/internal/triples"
)

// Scorer scores triples against all candidate entities. Higher scores mean
// more plausible triples.
type Scorer interface {
	// NumEntities returns the number of entities the scorer covers.
	NumEntities() int64

	// ScoreHeads returns a (len(batch), NumEntities) matrix whose entry
	// (i, e) scores the triple (e, relation_i, tail_i).
	ScoreHeads(ctx context.Context, batch []triples.Triple) (*tensor.Matrix, error)

	// ScoreTails returns a (len(batch), NumEntities) matrix whose entry
	// (i, e) scores the triple (head_i, relation_i, e).
	ScoreTails(ctx context.Context, batch []triples.Triple) (*tensor.Matrix, error)
}

// LoopOptions configures an evaluation loop.
type LoopOptions struct {
	// BatchSize is the number of triples scored per batch; defaults to 32.
	BatchSize int

	// Filter holds the known-true triples whose scores are masked out in
	// filtered evaluation. Ignored when the evaluator is unfiltered.
	Filter triples.FilterSet

	// Bus, when set, receives run lifecycle events.
	Bus bus.Bus

	// RunID identifies the run in logs and events; generated when empty.
	RunID string

	Logger *logger.Logger
}

// Loop drives a scorer over evaluation triples, feeding both-side scores to
// an evaluator batch by batch.
type Loop struct {
	scorer    Scorer
	evaluator Evaluator
	opts      LoopOptions
	log       *logger.Logger
}

// NewLoop creates an evaluation loop.
func NewLoop(scorer Scorer, evaluator Evaluator, opts LoopOptions) (*Loop, error) {
	if scorer == nil {
		return nil, errors.ValidationError("a scorer is required")
	}
	if evaluator == nil {
		return nil, errors.ValidationError("an evaluator is required")
	}
	if opts.BatchSize < 0 {
		return nil, errors.ValidationError("batch size must not be negative")
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 32
	}
	if opts.RunID == "" {
		opts.RunID = generateRunID()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Loop{
		scorer:    scorer,
		evaluator: evaluator,
		opts:      opts,
		log:       log.WithRun(opts.RunID),
	}, nil
}

// RunID returns the identifier of this loop's run.
func (l *Loop) RunID() string {
	return l.opts.RunID
}

// Run evaluates all triples in the factory and returns the aggregated
// metrics. Head and tail scoring of each batch run concurrently; rank
// updates are serialized.
func (l *Loop) Run(ctx context.Context, factory *triples.Factory) (*Result, error) {
	if factory == nil {
		return nil, errors.ValidationError("an evaluation triples factory is required")
	}

	evalTriples := factory.Triples()
	total := len(evalTriples)
	start := time.Now()

	l.log.Info("starting evaluation run",
		"num_triples", total,
		"batch_size", l.opts.BatchSize,
		"filtered", l.evaluator.Filtered(),
		"num_entities", l.scorer.NumEntities(),
	)
	l.publish(ctx, bus.TopicRunStarted, bus.RunStartedPayload{
		NumTriples:  total,
		BatchSize:   l.opts.BatchSize,
		Filtered:    l.evaluator.Filtered(),
		NumEntities: l.scorer.NumEntities(),
	})

	headMasks, tailMasks := l.buildMasks()

	// At most one progress event every two seconds.
	progress := rate.NewLimiter(rate.Every(2*time.Second), 1)

	processed := 0
	for begin := 0; begin < total; begin += l.opts.BatchSize {
		end := begin + l.opts.BatchSize
		if end > total {
			end = total
		}
		batch := evalTriples[begin:end]

		if err := l.processBatch(ctx, batch, headMasks, tailMasks); err != nil {
			l.publish(ctx, bus.TopicRunFailed, bus.RunFailedPayload{Error: err.Error()})
			return nil, err
		}

		processed = end
		if progress.Allow() {
			l.log.Info("evaluation progress", "processed", processed, "total", total)
			l.publish(ctx, bus.TopicRunProgress, bus.RunProgressPayload{
				Processed: processed,
				Total:     total,
			})
		}
	}

	result, err := l.evaluator.Finalize()
	if err != nil {
		l.publish(ctx, bus.TopicRunFailed, bus.RunFailedPayload{Error: err.Error()})
		return nil, err
	}

	elapsed := time.Since(start)
	l.log.Info("evaluation run finished",
		"num_triples", total,
		"num_metrics", result.Len(),
		"duration_ms", elapsed.Milliseconds(),
	)
	l.publish(ctx, bus.TopicRunFinished, bus.RunFinishedPayload{
		NumTriples: total,
		BatchSize:  l.opts.BatchSize,
		Filtered:   l.evaluator.Filtered(),
		DurationMs: elapsed.Milliseconds(),
		Metrics:    result.FlatMap(),
	})

	return result, nil
}

// processBatch scores one batch on both sides concurrently, masks filtered
// candidates, and feeds the evaluator.
func (l *Loop) processBatch(ctx context.Context, batch []triples.Triple, headMasks, tailMasks map[negativeGroupKey][]int64) error {
	var headScores, tailScores *tensor.Matrix

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scores, err := l.scorer.ScoreHeads(gctx, batch)
		if err != nil {
			return errors.Wrap(errors.CodeEvaluation, "head scoring failed", err)
		}
		headScores = scores
		return nil
	})
	g.Go(func() error {
		scores, err := l.scorer.ScoreTails(gctx, batch)
		if err != nil {
			return errors.Wrap(errors.CodeEvaluation, "tail scoring failed", err)
		}
		tailScores = scores
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	trueHeadScores := extractTrueScores(batch, headScores, ranking.SideHead)
	trueTailScores := extractTrueScores(batch, tailScores, ranking.SideTail)

	if l.evaluator.Filtered() {
		maskScores(batch, headScores, ranking.SideHead, headMasks)
		maskScores(batch, tailScores, ranking.SideTail, tailMasks)
	}

	if err := l.evaluator.ProcessHeadScores(batch, trueHeadScores, headScores); err != nil {
		return err
	}
	return l.evaluator.ProcessTailScores(batch, trueTailScores, tailScores)
}

// buildMasks indexes the filter triples by (relation, other-side entity) so
// masking a batch row touches only that row's known-true candidates.
func (l *Loop) buildMasks() (headMasks, tailMasks map[negativeGroupKey][]int64) {
	if !l.evaluator.Filtered() || l.opts.Filter == nil {
		return nil, nil
	}
	headMasks = make(map[negativeGroupKey][]int64)
	tailMasks = make(map[negativeGroupKey][]int64)
	for t := range l.opts.Filter {
		headKey := negativeGroupKey{relation: t.Relation, other: t.Tail}
		headMasks[headKey] = append(headMasks[headKey], t.Head)
		tailKey := negativeGroupKey{relation: t.Relation, other: t.Head}
		tailMasks[tailKey] = append(tailMasks[tailKey], t.Tail)
	}
	return headMasks, tailMasks
}

// extractTrueScores reads each triple's own-entity score from the full
// score matrix, before any masking.
func extractTrueScores(batch []triples.Triple, allScores *tensor.Matrix, side ranking.Side) *tensor.Vector {
	trueScores := tensor.Zeros(len(batch))
	for i, t := range batch {
		entity := t.Head
		if side == ranking.SideTail {
			entity = t.Tail
		}
		trueScores.Set(i, allScores.At(i, int(entity)))
	}
	return trueScores
}

// maskScores replaces the scores of known-true candidates with NaN so they
// do not compete with the evaluated triple. The triple's own entity keeps
// its score.
func maskScores(batch []triples.Triple, allScores *tensor.Matrix, side ranking.Side, masks map[negativeGroupKey][]int64) {
	nan := math.NaN()
	for i, t := range batch {
		key := negativeGroupKey{relation: t.Relation, other: t.Tail}
		own := t.Head
		if side == ranking.SideTail {
			key.other = t.Head
			own = t.Tail
		}
		for _, entity := range masks[key] {
			if entity == own {
				continue
			}
			allScores.Set(i, int(entity), nan)
		}
	}
}

func (l *Loop) publish(ctx context.Context, topic string, payload any) {
	if l.opts.Bus == nil {
		return
	}
	event := bus.NewEvent(topic, "kge-rank-evaluator", l.opts.RunID, payload)
	if err := l.opts.Bus.Publish(ctx, topic, event); err != nil {
		l.log.Warn("failed to publish run event", "topic", topic, "error", err.Error())
	}
}

func generateRunID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}
