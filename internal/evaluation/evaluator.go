// Package evaluation implements rank-based link-prediction evaluation:
// accumulating ranks over head/tail prediction batches and finalizing them
// into a structured metric report.
package evaluation

import (
	"github.com/kgelab/kge-rank/internal/metric"
	"github.com/kgelab/kge-rank/internal/pkg/logger"
	"github.com/kgelab/kge-rank/internal/ranking"
	"github.com/kgelab/kge-rank/internal/tensor"
	"github.com/kgelab/kge-rank/internal/triples"
)

// Evaluator accumulates rank statistics batch by batch and produces a
// metric report. Implementations are not safe for concurrent updates;
// callers must serialize the update path and must not race Finalize with
// further updates.
type Evaluator interface {
	// ProcessHeadScores records ranks for head prediction on one batch.
	ProcessHeadScores(batch []triples.Triple, trueScores *tensor.Vector, allScores *tensor.Matrix) error

	// ProcessTailScores records ranks for tail prediction on one batch.
	ProcessTailScores(batch []triples.Triple, trueScores *tensor.Vector, allScores *tensor.Matrix) error

	// Finalize computes all metrics over the accumulated ranks, clears
	// the accumulation state, and returns the report.
	Finalize() (*Result, error)

	// Filtered reports whether the filtered evaluation protocol is
	// active. It affects the caller's masking, not the evaluator's own
	// arithmetic.
	Filtered() bool
}

// Options configures a RankBasedEvaluator.
type Options struct {
	// Ks holds the Hits@k thresholds: positive integers, or fractions
	// strictly between 0 and 1 denoting thresholds relative to the
	// candidate-set size. Empty selects {1, 3, 5, 10}.
	Ks []float64

	// Filtered enables the filtered evaluation protocol.
	Filtered bool

	// Logger defaults to logger.Default().
	Logger *logger.Logger
}

// RankBasedEvaluator accumulates ranks per (rank type, side) across an
// evaluation run. Its lifecycle is Empty -> Accumulating -> Finalized
// (cleared), after which it is ready for a fresh run.
type RankBasedEvaluator struct {
	filtered bool
	metrics  []*metric.Metric
	log      *logger.Logger

	// One array chunk is appended per processed batch.
	ranks           map[ranking.RankType]map[ranking.Side][][]float64
	numberOfOptions map[ranking.Side][][]float64
}

// NewRankBasedEvaluator creates an evaluator with its own accumulation
// buffers and the full metric registry instantiated for the given ks.
func NewRankBasedEvaluator(opts Options) (*RankBasedEvaluator, error) {
	metrics, err := metric.All(opts.Ks)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	e := &RankBasedEvaluator{
		filtered: opts.Filtered,
		metrics:  metrics,
		log:      log,
	}
	e.reset()
	return e, nil
}

func (e *RankBasedEvaluator) reset() {
	e.ranks = make(map[ranking.RankType]map[ranking.Side][][]float64, 3)
	for _, rt := range ranking.RankTypes() {
		e.ranks[rt] = make(map[ranking.Side][][]float64, 2)
	}
	e.numberOfOptions = make(map[ranking.Side][][]float64, 2)
}

// Filtered reports whether the filtered evaluation protocol is active.
func (e *RankBasedEvaluator) Filtered() bool {
	return e.filtered
}

// ProcessHeadScores records ranks for head prediction on one batch.
func (e *RankBasedEvaluator) ProcessHeadScores(batch []triples.Triple, trueScores *tensor.Vector, allScores *tensor.Matrix) error {
	return e.updateRanks(ranking.SideHead, trueScores, allScores)
}

// ProcessTailScores records ranks for tail prediction on one batch.
func (e *RankBasedEvaluator) ProcessTailScores(batch []triples.Triple, trueScores *tensor.Vector, allScores *tensor.Matrix) error {
	return e.updateRanks(ranking.SideTail, trueScores, allScores)
}

func (e *RankBasedEvaluator) updateRanks(side ranking.Side, trueScores *tensor.Vector, allScores *tensor.Matrix) error {
	batchRanks, err := ranking.ComputeRankFromScores(trueScores, allScores)
	if err != nil {
		return err
	}

	for _, rt := range ranking.RankTypes() {
		e.ranks[rt][side] = append(e.ranks[rt][side], batchRanks.ByType(rt))
	}

	counts := make([]float64, len(batchRanks.NumberOfOptions))
	for i, n := range batchRanks.NumberOfOptions {
		counts[i] = float64(n)
	}
	e.numberOfOptions[side] = append(e.numberOfOptions[side], counts)
	return nil
}

// concatForSide flattens the accumulated chunks for a side; "both" is the
// concatenation of head and tail.
func concatForSide(chunks map[ranking.Side][][]float64, side ranking.Side) []float64 {
	if side == ranking.SideBoth {
		head := concatForSide(chunks, ranking.SideHead)
		tail := concatForSide(chunks, ranking.SideTail)
		return append(head, tail...)
	}
	var out []float64
	for _, chunk := range chunks[side] {
		out = append(out, chunk...)
	}
	return out
}

// Finalize computes every registered metric for each (side, rank type)
// combination with accumulated data, clears the accumulation buffers, and
// returns the report. Combinations without data are logged and skipped; a
// second Finalize without new updates yields an empty report.
func (e *RankBasedEvaluator) Finalize() (*Result, error) {
	result := newResult()

	for _, side := range ranking.Sides() {
		numCandidates := concatForSide(e.numberOfOptions, side)
		if len(numCandidates) == 0 {
			e.log.Warn("no candidate counts accumulated", "side", side)
			continue
		}
		for _, rt := range ranking.RankTypes() {
			ranks := concatForSide(e.ranks[rt], side)
			if len(ranks) == 0 {
				e.log.Warn("no ranks accumulated", "side", side, "rank_type", rt)
				continue
			}
			for _, m := range e.metrics {
				if !m.SupportsRankType(rt) {
					continue
				}
				value, err := m.Compute(ranks, numCandidates)
				if err != nil {
					e.log.WithError(err).Warn("metric computation failed",
						"metric", m.Key(), "side", side, "rank_type", rt)
					continue
				}
				result.add(Row{Side: side, RankType: rt, Metric: m.Key(), Value: value})
			}
		}
	}

	e.reset()
	return result, nil
}
