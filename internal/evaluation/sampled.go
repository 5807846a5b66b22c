package evaluation

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
	"github.com/kgelab/kge-rank/internal/pkg/logger"
	"github.com/kgelab/kge-rank/internal/ranking"
	"github.com/kgelab/kge-rank/internal/tensor"
	"github.com/kgelab/kge-rank/internal/triples"
)

type negativeGroupKey struct {
	relation int64
	other    int64
}

// SampleNegatives draws, for each evaluation triple, numSamples true
// negative entity IDs for the given prediction side: entities that do not
// form a known-true triple with the remaining two positions. Triples
// sharing the same (relation, other-side entity) pair share one candidate
// pool. When a pool is smaller than numSamples, entries are repeated with
// a warning instead of failing.
func SampleNegatives(
	evalTriples []triples.Triple,
	side ranking.Side,
	filter triples.FilterSet,
	numSamples int,
	numEntities int64,
	rng *rand.Rand,
	log *logger.Logger,
) ([][]int64, error) {
	if side != ranking.SideHead && side != ranking.SideTail {
		return nil, errors.ValidationError(fmt.Sprintf("cannot sample negatives for side %q", side))
	}
	if numSamples < 1 {
		return nil, errors.ValidationError("the number of negative samples must be positive")
	}
	if log == nil {
		log = logger.Default()
	}

	// Group rows sharing a candidate pool.
	groups := make(map[negativeGroupKey][]int)
	for i, t := range evalTriples {
		key := negativeGroupKey{relation: t.Relation, other: t.Tail}
		if side == ranking.SideTail {
			key.other = t.Head
		}
		groups[key] = append(groups[key], i)
	}

	negatives := make([][]int64, len(evalTriples))
	for key, rowIndices := range groups {
		pool := make([]int64, 0, numEntities)
		for e := int64(0); e < numEntities; e++ {
			candidate := triples.Triple{Head: e, Relation: key.relation, Tail: key.other}
			if side == ranking.SideTail {
				candidate = triples.Triple{Head: key.other, Relation: key.relation, Tail: e}
			}
			if !filter.Contains(candidate) {
				pool = append(pool, e)
			}
		}
		if len(pool) == 0 {
			return nil, errors.ValidationError(fmt.Sprintf(
				"no true negatives exist for side=%s, relation=%d, other=%d", side, key.relation, key.other))
		}
		if len(pool) < numSamples {
			log.Warn("fewer negative candidates than requested samples, repeating entries",
				"side", side, "pool_size", len(pool), "num_samples", numSamples)
		}

		for _, i := range rowIndices {
			negatives[i] = drawSample(pool, numSamples, rng)
		}
	}

	return negatives, nil
}

// drawSample draws k entries from the pool without replacement, cycling
// through the pool again when it is exhausted.
func drawSample(pool []int64, k int, rng *rand.Rand) []int64 {
	sample := make([]int64, 0, k)
	for len(sample) < k {
		perm := rng.Perm(len(pool))
		take := k - len(sample)
		if take > len(pool) {
			take = len(pool)
		}
		for _, j := range perm[:take] {
			sample = append(sample, pool[j])
		}
	}
	return sample
}

// SampledOptions configures a SampledRankBasedEvaluator.
type SampledOptions struct {
	Options

	// EvaluationFactory holds the evaluation triples and the entity count.
	EvaluationFactory *triples.Factory

	// AdditionalFilterTriples are further known-true triples (typically
	// the training and validation splits) excluded from the negative
	// pools.
	AdditionalFilterTriples [][]triples.Triple

	// NumNegatives is the pool size per triple per side; defaults to 50.
	NumNegatives int

	// Negatives optionally provides pre-sampled pools per side, each of
	// shape (num triples, num negatives). Missing sides are sampled.
	Negatives map[ranking.Side][][]int64

	// Rand is the sampling source; defaults to a time-seeded source.
	Rand *rand.Rand
}

// SampledRankBasedEvaluator restricts ranking to a fixed pre-sampled pool
// of true negatives per evaluation triple instead of all entities.
//
// Because only the sampled negatives participate in ranking, the resulting
// metrics are optimistic estimates of their full-ranking counterparts.
type SampledRankBasedEvaluator struct {
	*RankBasedEvaluator

	negatives     map[ranking.Side][][]int64
	tripleToIndex map[triples.Triple]int
}

// NewSampledRankBasedEvaluator creates a sampled evaluator, drawing any
// negative pools not supplied in the options. Requesting more negatives
// than there are entities is a construction-time error.
func NewSampledRankBasedEvaluator(opts SampledOptions) (*SampledRankBasedEvaluator, error) {
	if opts.EvaluationFactory == nil {
		return nil, errors.ValidationError("an evaluation triples factory is required")
	}
	base, err := NewRankBasedEvaluator(opts.Options)
	if err != nil {
		return nil, err
	}

	factory := opts.EvaluationFactory
	numNegatives := opts.NumNegatives
	if numNegatives == 0 {
		numNegatives = 50
	}
	if int64(numNegatives) > factory.NumEntities() {
		return nil, errors.ValidationError(fmt.Sprintf(
			"cannot use %d negative samples with only %d entities", numNegatives, factory.NumEntities()))
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	filter := triples.PrepareFilterTriples(factory.Triples(), opts.AdditionalFilterTriples...)

	negatives := make(map[ranking.Side][][]int64, 2)
	for _, side := range ranking.RealSides() {
		if provided, ok := opts.Negatives[side]; ok && provided != nil {
			negatives[side] = provided
			continue
		}
		base.log.Info("sampling negatives",
			"side", side, "num_negatives", numNegatives, "num_triples", factory.NumTriples())
		sampled, err := SampleNegatives(
			factory.Triples(), side, filter, numNegatives, factory.NumEntities(), rng, base.log)
		if err != nil {
			return nil, err
		}
		negatives[side] = sampled
	}

	for side, sideNegatives := range negatives {
		if len(sideNegatives) != factory.NumTriples() {
			return nil, errors.ValidationError(fmt.Sprintf(
				"negatives for side=%s have %d rows, want %d", side, len(sideNegatives), factory.NumTriples()))
		}
	}

	tripleToIndex := make(map[triples.Triple]int, factory.NumTriples())
	for i, t := range factory.Triples() {
		tripleToIndex[t] = i
	}

	return &SampledRankBasedEvaluator{
		RankBasedEvaluator: base,
		negatives:          negatives,
		tripleToIndex:      tripleToIndex,
	}, nil
}

// Negatives returns the fixed per-side negative pools.
func (e *SampledRankBasedEvaluator) Negatives(side ranking.Side) [][]int64 {
	return e.negatives[side]
}

// ProcessHeadScores records head-prediction ranks over the sampled
// candidate set.
func (e *SampledRankBasedEvaluator) ProcessHeadScores(batch []triples.Triple, trueScores *tensor.Vector, allScores *tensor.Matrix) error {
	return e.updateSampledRanks(ranking.SideHead, batch, trueScores, allScores)
}

// ProcessTailScores records tail-prediction ranks over the sampled
// candidate set.
func (e *SampledRankBasedEvaluator) ProcessTailScores(batch []triples.Triple, trueScores *tensor.Vector, allScores *tensor.Matrix) error {
	return e.updateSampledRanks(ranking.SideTail, batch, trueScores, allScores)
}

// updateSampledRanks gathers each triple's negative-score columns plus its
// true score, then delegates to the base rank computation over the reduced
// candidate set.
func (e *SampledRankBasedEvaluator) updateSampledRanks(side ranking.Side, batch []triples.Triple, trueScores *tensor.Vector, allScores *tensor.Matrix) error {
	sideNegatives := e.negatives[side]

	numNegatives := 0
	if len(sideNegatives) > 0 {
		numNegatives = len(sideNegatives[0])
	}
	reduced := tensor.NewMatrix(len(batch), numNegatives+1)

	for i, t := range batch {
		row, ok := e.tripleToIndex[t]
		if !ok {
			return errors.ValidationError(fmt.Sprintf("triple %+v is not an evaluation triple", t))
		}
		reduced.Set(i, 0, trueScores.At(i))
		for j, negID := range sideNegatives[row] {
			reduced.Set(i, j+1, allScores.At(i, int(negID)))
		}
	}

	return e.updateRanks(side, trueScores, reduced)
}
