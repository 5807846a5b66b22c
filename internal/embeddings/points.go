package embeddings

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
	"github.com/kgelab/kge-rank/internal/tensor"
)

// EntityPoint is one entity embedding to upsert.
type EntityPoint struct {
	// ID is the entity identifier.
	ID int64

	// Label is the human-readable entity label (optional).
	Label string

	// Vector is the embedding.
	Vector []float32
}

// Neighbor is one nearest-neighbor search result.
type Neighbor struct {
	// ID is the entity identifier.
	ID int64

	// Label is the entity label, when stored.
	Label string

	// Score is the dot-product similarity.
	Score float32
}

// UpsertEntities inserts or updates entity embeddings in a collection.
func (s *Store) UpsertEntities(ctx context.Context, collection string, points []EntityPoint) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.New(errors.CodeUnavailable, "embedding store is closed")
	}
	if len(points) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if p.ID < 0 {
			return errors.ValidationError(fmt.Sprintf("entity ID %d out of range", p.ID))
		}
		payload := map[string]any{}
		if p.Label != "" {
			payload["label"] = p.Label
		}
		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(p.ID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName(collection),
		Points:         qdrantPoints,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return errors.EmbeddingsError("failed to upsert entities", err)
	}

	return nil
}

// UpsertEntitiesBatch upserts entity embeddings in batches.
func (s *Store) UpsertEntitiesBatch(ctx context.Context, collection string, points []EntityPoint, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	for i := 0; i < len(points); i += batchSize {
		end := i + batchSize
		if end > len(points) {
			end = len(points)
		}

		if err := s.UpsertEntities(ctx, collection, points[i:end]); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// Neighbors returns the entities whose embeddings score highest against
// the query vector.
func (s *Store) Neighbors(ctx context.Context, collection string, vector []float32, limit uint64) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.New(errors.CodeUnavailable, "embedding store is closed")
	}
	if len(vector) == 0 {
		return nil, errors.ValidationError("query vector is required")
	}
	if limit == 0 {
		limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName(collection),
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errors.EmbeddingsError("neighbor search failed", err)
	}

	neighbors := make([]Neighbor, 0, len(results))
	for _, point := range results {
		n := Neighbor{Score: point.GetScore()}
		if num, ok := point.GetId().GetPointIdOptions().(*qdrant.PointId_Num); ok {
			n.ID = int64(num.Num)
		}
		if label, ok := point.GetPayload()["label"]; ok {
			n.Label = label.GetStringValue()
		}
		neighbors = append(neighbors, n)
	}

	return neighbors, nil
}

// EntityNeighbors returns the nearest neighbors of a stored entity,
// excluding the entity itself.
func (s *Store) EntityNeighbors(ctx context.Context, collection string, entityID int64, limit uint64) ([]Neighbor, error) {
	vector, err := s.GetEntity(ctx, collection, entityID)
	if err != nil {
		return nil, err
	}

	// Fetch one extra so the entity itself can be dropped.
	neighbors, err := s.Neighbors(ctx, collection, vector, limit+1)
	if err != nil {
		return nil, err
	}

	filtered := make([]Neighbor, 0, limit)
	for _, n := range neighbors {
		if n.ID == entityID {
			continue
		}
		if uint64(len(filtered)) >= limit {
			break
		}
		filtered = append(filtered, n)
	}
	return filtered, nil
}

// GetEntity returns the stored embedding for an entity.
func (s *Store) GetEntity(ctx context.Context, collection string, entityID int64) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.New(errors.CodeUnavailable, "embedding store is closed")
	}
	if entityID < 0 {
		return nil, errors.ValidationError(fmt.Sprintf("entity ID %d out of range", entityID))
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collectionName(collection),
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(uint64(entityID))},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, errors.EmbeddingsError(fmt.Sprintf("failed to get entity %d", entityID), err)
	}
	if len(points) == 0 {
		return nil, errors.NotFoundError(fmt.Sprintf("entity %d in collection %s", entityID, collection))
	}

	vector := points[0].GetVectors().GetVector().GetData()
	if len(vector) == 0 {
		return nil, errors.New(errors.CodeEmbeddings, fmt.Sprintf("entity %d has no stored vector", entityID))
	}
	return vector, nil
}

// Count returns the number of stored entity embeddings.
func (s *Store) Count(ctx context.Context, collection string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errors.New(errors.CodeUnavailable, "embedding store is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collectionName(collection),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, errors.EmbeddingsError("failed to count entities", err)
	}

	return count, nil
}

// PointsFromMatrix converts a matrix of entity embeddings, one row per
// entity, into upsertable points. Labels are optional and matched by row
// index when provided.
func PointsFromMatrix(m *tensor.Matrix, labels []string) ([]EntityPoint, error) {
	if m == nil {
		return nil, errors.ValidationError("embedding matrix is required")
	}
	if labels != nil && len(labels) != m.Rows() {
		return nil, errors.ValidationError(fmt.Sprintf("got %d labels for %d entities", len(labels), m.Rows()))
	}

	points := make([]EntityPoint, m.Rows())
	for i := 0; i < m.Rows(); i++ {
		row := m.Row(i)
		vector := make([]float32, len(row))
		for j, v := range row {
			vector[j] = float32(v)
		}
		points[i] = EntityPoint{ID: int64(i), Vector: vector}
		if labels != nil {
			points[i].Label = labels[i]
		}
	}
	return points, nil
}
