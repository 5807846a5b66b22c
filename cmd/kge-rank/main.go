// Package main provides the kge-rank binary: rank-based evaluation of
// knowledge graph embedding models, a report server, and entity-embedding
// utilities.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kge-rank",
		Short: "kge-rank - rank-based evaluation for knowledge graph embeddings",
		Long: `kge-rank evaluates link-prediction models over knowledge graphs using
rank-based metrics: mean rank, mean reciprocal rank, hits@k and their
adjusted, chance-corrected variants.

Run 'kge-rank evaluate' to score a test split against a model.
Run 'kge-rank serve' to start the report server.
Run 'kge-rank --help' for available commands.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		evaluateCmd(),
		serveCmd(),
		resolveCmd(),
		neighborsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kge-rank %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
