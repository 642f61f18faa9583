package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/narratives/internal/cli"
	"horse.fit/narratives/internal/db"
	"horse.fit/narratives/internal/logging"
	"horse.fit/narratives/internal/narrative"
)

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	batchLimit := fs.Int("batch-limit", 1000, "Maximum extracted articles to match per cycle")
	untilEmpty := fs.Bool("until-empty", true, "Repeat cycles until no work remains")
	maxCycles := fs.Int("max-cycles", 25, "Maximum matcher cycles when --until-empty=true")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *batchLimit <= 0 {
		fmt.Fprintln(os.Stderr, "--batch-limit must be > 0")
		return 2
	}
	if *maxCycles <= 0 {
		fmt.Fprintln(os.Stderr, "--max-cycles must be > 0")
		return 2
	}

	ctx, cancel, pool, cfg, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	svc := narrative.NewService(
		db.NewNarrativeStore(pool),
		narrative.NewDenyList(cfg.DenyList()),
		logger,
		narrative.Options{
			BaseThreshold:      cfg.MatchThreshold,
			CandidateWindow:    cfg.CandidateWindow,
			ClusterThreshold:   cfg.ClusterThreshold,
			VelocityWindowDays: cfg.VelocityWindowDays,
		},
	)

	total := narrative.CycleResult{}
	cyclesRun := 0
	drained := false

	for cycle := 1; cycle <= *maxCycles; cycle++ {
		articles, err := pool.ListExtractedUnassignedArticles(ctx, *batchLimit)
		if err != nil {
			logger.Error().Err(err).Int("cycle", cycle).Msg("list unassigned articles failed")
			fmt.Fprintf(os.Stderr, "Process failed during cycle %d: %v\n", cycle, err)
			return 1
		}
		if len(articles) == 0 {
			drained = true
			break
		}

		result, err := svc.Cycle(ctx, articles)
		if err != nil {
			logger.Error().Err(err).Int("cycle", cycle).Msg("matcher cycle failed")
			fmt.Fprintf(os.Stderr, "Process failed during cycle %d: %v\n", cycle, err)
			return 1
		}

		cyclesRun = cycle
		total.Articles += result.Articles
		total.AlreadyAssigned += result.AlreadyAssigned
		total.SkippedArticles += result.SkippedArticles
		total.Clusters += result.Clusters
		total.Merged += result.Merged
		total.Created += result.Created
		total.Dropped += result.Dropped
		total.Failed += result.Failed

		// A batch that assigned nothing will not shrink on retry.
		if result.Merged == 0 && result.Created == 0 {
			drained = true
			break
		}
		if !*untilEmpty {
			drained = len(articles) < *batchLimit
			break
		}
	}

	logger.Info().
		Int("cycles", cyclesRun).
		Bool("drained", drained).
		Int("articles", total.Articles).
		Int("clusters", total.Clusters).
		Int("merged", total.Merged).
		Int("created", total.Created).
		Int("dropped", total.Dropped).
		Int("failed", total.Failed).
		Msg("process completed")

	fmt.Printf(
		"process cycles=%d drained=%t articles=%d already_assigned=%d skipped=%d clusters=%d merged=%d created=%d dropped=%d failed=%d\n",
		cyclesRun,
		drained,
		total.Articles,
		total.AlreadyAssigned,
		total.SkippedArticles,
		total.Clusters,
		total.Merged,
		total.Created,
		total.Dropped,
		total.Failed,
	)

	if total.Failed > 0 {
		return 1
	}
	return 0
}
