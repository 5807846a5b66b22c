package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kgelab/kge-rank/internal/metric"
)

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <query>...",
		Short: "Resolve free-form metric names to canonical keys",
		Long: `Resolve parses metric queries like "mrr", "hits@10.head" or
"mean rank . tail . best" into their canonical (name, side, rank type)
form.

Examples:
  kge-rank resolve mrr
  kge-rank resolve "hits@10.head" amr
  kge-rank resolve --format json h@3`,
		Args: cobra.MinimumNArgs(1),
		RunE: runResolve,
	}

	cmd.Flags().String("format", "text", "output format (text, json)")

	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	type resolved struct {
		Query     string `json:"query"`
		Name      string `json:"name"`
		Side      string `json:"side"`
		RankType  string `json:"rank_type"`
		K         int    `json:"k,omitempty"`
		Canonical string `json:"canonical"`
	}

	results := make([]resolved, 0, len(args))
	for _, query := range args {
		key, err := metric.ResolveMetricName(query)
		if err != nil {
			return fmt.Errorf("%q: %w", query, err)
		}
		results = append(results, resolved{
			Query:     query,
			Name:      key.Name,
			Side:      string(key.Side),
			RankType:  string(key.RankType),
			K:         key.K,
			Canonical: key.String(),
		})
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		fmt.Printf("%s -> %s\n", r.Query, r.Canonical)
	}
	return nil
}
