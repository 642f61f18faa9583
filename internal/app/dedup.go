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

func runDedup(args []string) int {
	fs := flag.NewFlagSet("dedup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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

	result, err := svc.DedupPass(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("dedup pass failed")
		fmt.Fprintf(os.Stderr, "Dedup failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("groups", result.Groups).
		Int("compared", result.Compared).
		Int("merged", result.Merged).
		Int("deferred", result.Deferred).
		Int("failed", result.Failed).
		Msg("dedup completed")

	fmt.Printf(
		"dedup groups=%d compared=%d merged=%d deferred=%d failed=%d\n",
		result.Groups, result.Compared, result.Merged, result.Deferred, result.Failed,
	)

	if result.Failed > 0 {
		return 1
	}
	return 0
}
