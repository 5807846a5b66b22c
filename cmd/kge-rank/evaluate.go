package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kgelab/kge-rank/internal/bus"
	"github.com/kgelab/kge-rank/internal/config"
	"github.com/kgelab/kge-rank/internal/embeddings"
	"github.com/kgelab/kge-rank/internal/evaluation"
	"github.com/kgelab/kge-rank/internal/model"
	"github.com/kgelab/kge-rank/internal/pkg/hash"
	"github.com/kgelab/kge-rank/internal/pkg/logger"
	"github.com/kgelab/kge-rank/internal/report"
	"github.com/kgelab/kge-rank/internal/triples"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a link-prediction model over a test split",
		Long: `Evaluate scores every test triple against all candidate entities on both
the head and tail side, ranks the true entity, and aggregates rank-based
metrics.

With --filtered (the default), other known-true triples from the test,
train and valid splits are excluded from the candidate sets. With
--sampled, ranking is restricted to a fixed number of sampled negatives
per triple instead of all entities.

Examples:
  kge-rank evaluate --test test.tsv --train train.tsv
  kge-rank evaluate --test test.tsv --sampled --num-negatives 100
  kge-rank evaluate --test test.tsv --format json --save
  kge-rank evaluate --test test.tsv --export-embeddings --collection fb15k`,
		RunE: runEvaluate,
	}

	cmd.Flags().String("test", "", "test triples TSV file (required)")
	cmd.Flags().String("train", "", "training triples TSV file (used for filtering)")
	cmd.Flags().String("valid", "", "validation triples TSV file (used for filtering)")
	cmd.Flags().Int("dim", 64, "embedding dimension")
	cmd.Flags().Int64("seed", 0, "random seed (0 = time-seeded)")
	cmd.Flags().Int("batch-size", 0, "evaluation batch size")
	cmd.Flags().Float64Slice("ks", nil, "hits@k thresholds")
	cmd.Flags().Bool("unfiltered", false, "disable the filtered evaluation protocol")
	cmd.Flags().Bool("sampled", false, "rank against sampled negatives instead of all entities")
	cmd.Flags().Int("num-negatives", 0, "negatives per triple per side in sampled mode")
	cmd.Flags().String("format", "text", "output format (text, json)")
	cmd.Flags().Bool("save", false, "save the report to the configured store")
	cmd.Flags().Bool("export-embeddings", false, "upsert the entity embeddings to Qdrant after evaluation")
	cmd.Flags().String("collection", "", "Qdrant collection for exported embeddings (overrides config)")
	cmd.MarkFlagRequired("test")

	return cmd
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	testPath, _ := cmd.Flags().GetString("test")
	trainPath, _ := cmd.Flags().GetString("train")
	validPath, _ := cmd.Flags().GetString("valid")
	dim, _ := cmd.Flags().GetInt("dim")
	format, _ := cmd.Flags().GetString("format")
	sampled, _ := cmd.Flags().GetBool("sampled")
	unfiltered, _ := cmd.Flags().GetBool("unfiltered")
	save, _ := cmd.Flags().GetBool("save")
	exportEmb, _ := cmd.Flags().GetBool("export-embeddings")
	collection, _ := cmd.Flags().GetString("collection")

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyEvalFlags(cmd, appCfg)
	if unfiltered {
		appCfg.Eval.Filtered = false
	}

	logLevel := appCfg.Log.Level
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, appCfg.Log.Format)

	// Load all provided splits against one shared vocabulary.
	paths := []string{testPath}
	if trainPath != "" {
		paths = append(paths, trainPath)
	}
	if validPath != "" {
		paths = append(paths, validPath)
	}
	factories, err := triples.LoadSplits(paths...)
	if err != nil {
		return fmt.Errorf("failed to load triples: %w", err)
	}
	testF := factories[0]
	var extraSplits [][]triples.Triple
	for _, f := range factories[1:] {
		extraSplits = append(extraSplits, f.Triples())
	}

	log.Info("Loaded triples",
		"test", testF.NumTriples(),
		"entities", testF.NumEntities(),
		"relations", testF.NumRelations(),
	)

	seed := appCfg.Eval.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	scorer, err := model.NewDistMult(testF.NumEntities(), testF.NumRelations(), dim, rng)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}

	evaluator, err := buildEvaluator(appCfg, testF, extraSplits, rng, log, sampled)
	if err != nil {
		return fmt.Errorf("failed to create evaluator: %w", err)
	}

	var filter triples.FilterSet
	if appCfg.Eval.Filtered {
		filter = triples.PrepareFilterTriples(testF.Triples(), extraSplits...)
	}

	// Run lifecycle events go out on the configured bus, so a serve process
	// (or any other consumer) can track and persist this run.
	eventBus, err := bus.NewBus(appCfg.Bus)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	if appCfg.Bus.EventLogEnabled {
		eventLogger, err := bus.NewEventLogger(appCfg.Bus.EventLogPath, true)
		if err != nil {
			eventBus.Close()
			return fmt.Errorf("failed to create event log: %w", err)
		}
		eventBus = bus.NewLoggedBus(eventBus, eventLogger, log)
	}
	defer eventBus.Close()

	loop, err := evaluation.NewLoop(scorer, evaluator, evaluation.LoopOptions{
		BatchSize: appCfg.Eval.BatchSize,
		Filter:    filter,
		Bus:       eventBus,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("failed to create evaluation loop: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	result, err := loop.Run(ctx, testF)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	duration := time.Since(start)

	if save {
		if err := saveReport(ctx, appCfg, loop.RunID(), testF, result, duration); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		log.Info("Saved report", "run_id", loop.RunID())
	}

	if exportEmb {
		if err := exportEmbeddings(ctx, appCfg, collection, scorer, testF, log); err != nil {
			return fmt.Errorf("failed to export embeddings: %w", err)
		}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		fmt.Print(result.Table())
		return nil
	}
}

// applyEvalFlags overrides config values from explicitly set flags.
func applyEvalFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("batch-size") {
		cfg.Eval.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}
	if cmd.Flags().Changed("ks") {
		cfg.Eval.Ks, _ = cmd.Flags().GetFloat64Slice("ks")
	}
	if cmd.Flags().Changed("num-negatives") {
		cfg.Eval.NumNegatives, _ = cmd.Flags().GetInt("num-negatives")
	}
	if cmd.Flags().Changed("seed") {
		cfg.Eval.Seed, _ = cmd.Flags().GetInt64("seed")
	}
}

func buildEvaluator(
	cfg *config.Config,
	testF *triples.Factory,
	extraSplits [][]triples.Triple,
	rng *rand.Rand,
	log *logger.Logger,
	sampled bool,
) (evaluation.Evaluator, error) {
	opts := evaluation.Options{
		Ks:       cfg.Eval.Ks,
		Filtered: cfg.Eval.Filtered,
		Logger:   log,
	}

	if !sampled {
		return evaluation.NewRankBasedEvaluator(opts)
	}

	return evaluation.NewSampledRankBasedEvaluator(evaluation.SampledOptions{
		Options:                 opts,
		EvaluationFactory:       testF,
		AdditionalFilterTriples: extraSplits,
		NumNegatives:            cfg.Eval.NumNegatives,
		Rand:                    rng,
	})
}

// exportEmbeddings upserts the model's entity embeddings to Qdrant, so
// `kge-rank neighbors` can query them afterwards.
func exportEmbeddings(
	ctx context.Context,
	cfg *config.Config,
	collection string,
	m *model.DistMult,
	testF *triples.Factory,
	log *logger.Logger,
) error {
	if collection == "" {
		collection = cfg.Qdrant.Collection
	}

	storeCfg := embeddings.DefaultStoreConfig()
	if cfg.Qdrant.URL != "" {
		host, port, err := parseQdrantURL(cfg.Qdrant.URL)
		if err != nil {
			return fmt.Errorf("invalid Qdrant URL: %w", err)
		}
		storeCfg.Host = host
		storeCfg.Port = port
	}
	if cfg.Qdrant.APIKey != "" {
		storeCfg.APIKey = cfg.Qdrant.APIKey
	}

	store, err := embeddings.NewStore(storeCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx, collection, uint64(m.Dim())); err != nil {
		return err
	}
	points, err := embeddings.PointsFromMatrix(m.EntityEmbeddings(), testF.EntityLabels())
	if err != nil {
		return err
	}
	if err := store.UpsertEntitiesBatch(ctx, collection, points, 0); err != nil {
		return err
	}

	log.Info("Exported entity embeddings", "collection", collection, "entities", len(points))
	return nil
}

func saveReport(
	ctx context.Context,
	cfg *config.Config,
	runID string,
	testF *triples.Factory,
	result *evaluation.Result,
	duration time.Duration,
) error {
	if cfg.Redis.URL == "" {
		return fmt.Errorf("no Redis URL configured")
	}

	store, err := report.NewRedisStore(cfg.Redis.URL, cfg.Redis.KeyPrefix,
		time.Duration(cfg.Redis.TTLHours)*time.Hour)
	if err != nil {
		return err
	}
	defer store.Close()

	rows := make([][3]int64, 0, testF.NumTriples())
	for _, t := range testF.Triples() {
		rows = append(rows, [3]int64{t.Head, t.Relation, t.Tail})
	}

	return store.Save(ctx, &report.RunReport{
		RunID:       runID,
		CreatedAt:   time.Now(),
		NumTriples:  testF.NumTriples(),
		DatasetHash: hash.TripleSetID(rows),
		Filtered:    cfg.Eval.Filtered,
		BatchSize:   cfg.Eval.BatchSize,
		DurationMs:  duration.Milliseconds(),
		Result:      result,
	})
}
