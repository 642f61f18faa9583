package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/narratives/internal/cli"
	"horse.fit/narratives/internal/extraction"
	"horse.fit/narratives/internal/globaltime"
	"horse.fit/narratives/internal/logging"
)

func runExtract(args []string) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 200, "Maximum pending articles to extract")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	ctx, cancel, pool, cfg, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
		fmt.Fprintln(os.Stderr, "ANTHROPIC_API_KEY is required for extract")
		return 2
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	pending, err := pool.ListArticlesPendingExtraction(ctx, *limit)
	if err != nil {
		logger.Error().Err(err).Msg("list pending articles failed")
		fmt.Fprintf(os.Stderr, "Failed to list pending articles: %v\n", err)
		return 1
	}
	if len(pending) == 0 {
		fmt.Println("extract pending=0 extracted=0 failed=0")
		return 0
	}

	inputs := make([]extraction.ArticleInput, 0, len(pending))
	for _, article := range pending {
		input := extraction.ArticleInput{
			ArticleID: article.ArticleUUID,
			Title:     article.Title,
			BodyText:  article.BodyText,
			Source:    article.Source,
		}
		if article.PublishedAt != nil {
			input.PublishedAt = *article.PublishedAt
		}
		inputs = append(inputs, input)
	}

	extractor := extraction.NewAnthropicExtractor(cfg.AnthropicAPIKey, cfg.ExtractionModel)
	runner := extraction.NewRunner(extractor, logger, extraction.RunnerOptions{
		Workers:       cfg.ExtractionWorkers,
		PerItemBudget: cfg.ExtractionTimeout,
		MaxAttempts:   cfg.ExtractionRetries,
	})

	outcomes := runner.Run(ctx, inputs)

	extracted := 0
	failed := 0
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
			logger.Warn().
				Err(outcome.Err).
				Str("article_uuid", outcome.Input.ArticleID).
				Msg("extraction failed")
			continue
		}
		if err := pool.UpsertExtraction(ctx, outcome.Input.ArticleID, *outcome.Extraction, cfg.ExtractionModel, globaltime.UTC()); err != nil {
			failed++
			logger.Error().
				Err(err).
				Str("article_uuid", outcome.Input.ArticleID).
				Msg("extraction persist failed")
			continue
		}
		extracted++
	}

	logger.Info().
		Int("pending", len(pending)).
		Int("extracted", extracted).
		Int("failed", failed).
		Msg("extract completed")

	fmt.Printf("extract pending=%d extracted=%d failed=%d\n", len(pending), extracted, failed)
	if failed > 0 && extracted == 0 {
		return 1
	}
	return 0
}
