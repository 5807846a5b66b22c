// Package model provides knowledge graph embedding models used to score
// triples during evaluation.
package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
	"github.com/kgelab/kge-rank/internal/tensor"
	"github.com/kgelab/kge-rank/internal/triples"
)

// DistMult scores a triple as the trilinear product of its head, relation
// and tail embeddings. Higher scores mean more plausible triples.
type DistMult struct {
	entities  *tensor.Matrix // (num entities, dim)
	relations *tensor.Matrix // (num relations, dim)
	dim       int
}

// NewDistMult creates a DistMult model with embeddings drawn uniformly
// from [-1/sqrt(dim), 1/sqrt(dim)].
func NewDistMult(numEntities, numRelations int64, dim int, rng *rand.Rand) (*DistMult, error) {
	if numEntities < 1 || numRelations < 1 {
		return nil, errors.ValidationError("the model needs at least one entity and one relation")
	}
	if dim < 1 {
		return nil, errors.ValidationError("the embedding dimension must be positive")
	}

	bound := 1.0 / math.Sqrt(float64(dim))
	entities := tensor.NewMatrix(int(numEntities), dim)
	relations := tensor.NewMatrix(int(numRelations), dim)
	for _, m := range []*tensor.Matrix{entities, relations} {
		for i := 0; i < m.Rows(); i++ {
			row := m.Row(i)
			for j := range row {
				row[j] = bound * (2*rng.Float64() - 1)
			}
		}
	}

	return &DistMult{entities: entities, relations: relations, dim: dim}, nil
}

// FromEmbeddings creates a DistMult model over pre-trained embeddings.
func FromEmbeddings(entities, relations *tensor.Matrix) (*DistMult, error) {
	if entities == nil || relations == nil {
		return nil, errors.ValidationError("entity and relation embeddings are required")
	}
	if entities.Cols() != relations.Cols() {
		return nil, errors.ValidationError(fmt.Sprintf(
			"entity embeddings have dimension %d but relation embeddings have %d",
			entities.Cols(), relations.Cols()))
	}
	return &DistMult{entities: entities, relations: relations, dim: entities.Cols()}, nil
}

// NumEntities returns the number of entities the model covers.
func (m *DistMult) NumEntities() int64 {
	return int64(m.entities.Rows())
}

// NumRelations returns the number of relations the model covers.
func (m *DistMult) NumRelations() int64 {
	return int64(m.relations.Rows())
}

// Dim returns the embedding dimension.
func (m *DistMult) Dim() int {
	return m.dim
}

// EntityEmbeddings returns the (num entities, dim) entity embedding matrix.
// The matrix is shared, not copied; callers must not mutate it.
func (m *DistMult) EntityEmbeddings() *tensor.Matrix {
	return m.entities
}

// RelationEmbeddings returns the (num relations, dim) relation embedding
// matrix. The matrix is shared, not copied; callers must not mutate it.
func (m *DistMult) RelationEmbeddings() *tensor.Matrix {
	return m.relations
}

// ScoreHRT scores a single triple.
func (m *DistMult) ScoreHRT(t triples.Triple) (float64, error) {
	if err := m.checkTriple(t); err != nil {
		return 0, err
	}
	head := m.entities.Row(int(t.Head))
	rel := m.relations.Row(int(t.Relation))
	tail := m.entities.Row(int(t.Tail))

	score := 0.0
	for i := 0; i < m.dim; i++ {
		score += head[i] * rel[i] * tail[i]
	}
	return score, nil
}

// ScoreHeads scores every entity as a head-replacement candidate for each
// triple in the batch.
func (m *DistMult) ScoreHeads(ctx context.Context, batch []triples.Triple) (*tensor.Matrix, error) {
	return m.scoreCandidates(ctx, batch, true)
}

// ScoreTails scores every entity as a tail-replacement candidate for each
// triple in the batch.
func (m *DistMult) ScoreTails(ctx context.Context, batch []triples.Triple) (*tensor.Matrix, error) {
	return m.scoreCandidates(ctx, batch, false)
}

func (m *DistMult) scoreCandidates(ctx context.Context, batch []triples.Triple, replaceHead bool) (*tensor.Matrix, error) {
	numEntities := m.entities.Rows()
	scores := tensor.NewMatrix(len(batch), numEntities)

	// DistMult is symmetric in head and tail: both directions reduce to a
	// vector-matrix product of (fixed ∘ relation) against all entities.
	combined := make([]float64, m.dim)
	for i, t := range batch {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.CodeTimeout, "scoring cancelled", err)
		}
		if err := m.checkTriple(t); err != nil {
			return nil, err
		}

		fixed := m.entities.Row(int(t.Tail))
		if !replaceHead {
			fixed = m.entities.Row(int(t.Head))
		}
		rel := m.relations.Row(int(t.Relation))
		for d := 0; d < m.dim; d++ {
			combined[d] = fixed[d] * rel[d]
		}

		for e := 0; e < numEntities; e++ {
			candidate := m.entities.Row(e)
			score := 0.0
			for d := 0; d < m.dim; d++ {
				score += combined[d] * candidate[d]
			}
			scores.Set(i, e, score)
		}
	}

	return scores, nil
}

func (m *DistMult) checkTriple(t triples.Triple) error {
	if t.Head < 0 || t.Head >= m.NumEntities() || t.Tail < 0 || t.Tail >= m.NumEntities() {
		return errors.ValidationError(fmt.Sprintf(
			"entity ID out of range in triple (%d, %d, %d): model has %d entities",
			t.Head, t.Relation, t.Tail, m.NumEntities()))
	}
	if t.Relation < 0 || t.Relation >= m.NumRelations() {
		return errors.ValidationError(fmt.Sprintf(
			"relation ID %d out of range: model has %d relations", t.Relation, m.NumRelations()))
	}
	return nil
}
