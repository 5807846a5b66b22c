package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kgelab/kge-rank/internal/config"
	"github.com/kgelab/kge-rank/internal/embeddings"
)

func neighborsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neighbors <entity-id>",
		Short: "Query nearest-neighbor entities from the embedding store",
		Long: `Neighbors looks up the stored embedding of an entity in Qdrant and
returns the entities scoring highest against it by dot product.

Examples:
  kge-rank neighbors 42
  kge-rank neighbors 42 --limit 20 --collection fb15k`,
		Args: cobra.ExactArgs(1),
		RunE: runNeighbors,
	}

	cmd.Flags().String("collection", "", "embedding collection (overrides config)")
	cmd.Flags().Uint64("limit", 10, "number of neighbors to return")

	return cmd
}

func runNeighbors(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	collection, _ := cmd.Flags().GetString("collection")
	limit, _ := cmd.Flags().GetUint64("limit")

	entityID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || entityID < 0 {
		return fmt.Errorf("entity ID must be a non-negative integer, got %q", args[0])
	}

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if collection == "" {
		collection = appCfg.Qdrant.Collection
	}

	storeCfg := embeddings.DefaultStoreConfig()
	if appCfg.Qdrant.URL != "" {
		host, port, err := parseQdrantURL(appCfg.Qdrant.URL)
		if err != nil {
			return fmt.Errorf("invalid Qdrant URL: %w", err)
		}
		storeCfg.Host = host
		storeCfg.Port = port
	}
	if appCfg.Qdrant.APIKey != "" {
		storeCfg.APIKey = appCfg.Qdrant.APIKey
	}

	store, err := embeddings.NewStore(storeCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	neighbors, err := store.EntityNeighbors(ctx, collection, entityID, limit)
	if err != nil {
		return fmt.Errorf("neighbor lookup failed: %w", err)
	}

	for _, n := range neighbors {
		if n.Label != "" {
			fmt.Printf("%d\t%s\t%.6f\n", n.ID, n.Label, n.Score)
		} else {
			fmt.Printf("%d\t%.6f\n", n.ID, n.Score)
		}
	}
	return nil
}

// parseQdrantURL extracts host and gRPC port from a Qdrant URL.
// Example: http://localhost:6333 -> localhost, 6334 (gRPC port)
func parseQdrantURL(rawURL string) (string, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, err
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}

	portStr := u.Port()
	httpPort := 6333
	if portStr != "" {
		httpPort, err = strconv.Atoi(portStr)
		if err != nil {
			return "", 0, fmt.Errorf("invalid port: %s", portStr)
		}
	}

	// Qdrant's gRPC port is conventionally the HTTP port + 1.
	return host, httpPort + 1, nil
}
