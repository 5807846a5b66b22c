// Package embeddings stores trained entity embeddings in Qdrant so that
// nearest-neighbor queries over entity space are available next to the
// rank-based evaluation results.
package embeddings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
)

const (
	// CollectionPrefix is prepended to all collection names.
	CollectionPrefix = "kge_"

	// DefaultHost is the default Qdrant host.
	DefaultHost = "localhost"

	// DefaultPort is the default Qdrant gRPC port.
	DefaultPort = 6334

	// DefaultTimeout is the default operation timeout.
	DefaultTimeout = 30 * time.Second
)

// StoreConfig holds configuration for the embedding store.
type StoreConfig struct {
	// Host is the Qdrant server host.
	Host string

	// Port is the Qdrant gRPC port.
	Port int

	// APIKey for authentication (optional).
	APIKey string

	// UseTLS enables TLS connection.
	UseTLS bool

	// Timeout for operations.
	Timeout time.Duration
}

// DefaultStoreConfig returns sensible defaults for local development.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Host:    DefaultHost,
		Port:    DefaultPort,
		Timeout: DefaultTimeout,
	}
}

// Store wraps the Qdrant Go client with entity-embedding operations.
type Store struct {
	client *qdrant.Client
	config StoreConfig
	mu     sync.RWMutex
	closed bool
}

// NewStore creates a new embedding store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                30 * time.Second,
				Timeout:             10 * time.Second,
				PermitWithoutStream: true,
			}),
		},
	})
	if err != nil {
		return nil, errors.EmbeddingsError("failed to create qdrant client", err)
	}

	return &Store{
		client: client,
		config: cfg,
	}, nil
}

// Close closes the store connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.client.Close()
}

// HealthCheck verifies the Qdrant server is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.New(errors.CodeUnavailable, "embedding store is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	reply, err := s.client.HealthCheck(ctx)
	if err != nil {
		return errors.EmbeddingsError("health check failed", err)
	}

	if reply.GetTitle() == "" {
		return errors.New(errors.CodeEmbeddings, "unexpected health check response")
	}

	return nil
}

// EnsureCollection creates the collection for a set of entity embeddings
// if it does not already exist. Embeddings are compared by dot product,
// matching the interaction scores of multiplicative models.
func (s *Store) EnsureCollection(ctx context.Context, name string, dim uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.New(errors.CodeUnavailable, "embedding store is closed")
	}
	if dim == 0 {
		return errors.ValidationError("embedding dimension must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	full := collectionName(name)

	exists, err := s.client.CollectionExists(ctx, full)
	if err != nil {
		return errors.EmbeddingsError("failed to check collection existence", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: full,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return errors.EmbeddingsError(fmt.Sprintf("failed to create collection %s", full), err)
	}

	return nil
}

// DeleteCollection deletes a collection of entity embeddings.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.New(errors.CodeUnavailable, "embedding store is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if err := s.client.DeleteCollection(ctx, collectionName(name)); err != nil {
		return errors.EmbeddingsError(fmt.Sprintf("failed to delete collection %s", name), err)
	}

	return nil
}

// collectionName returns the full collection name with prefix.
func collectionName(name string) string {
	return CollectionPrefix + name
}
