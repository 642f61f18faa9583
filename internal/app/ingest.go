package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/narratives/internal/cli"
	"horse.fit/narratives/internal/db"
	"horse.fit/narratives/internal/langdetect"
	"horse.fit/narratives/internal/language"
	"horse.fit/narratives/internal/logging"
	"horse.fit/narratives/internal/narrative"
	payloadschema "horse.fit/narratives/schema"
)

type ingestResult struct {
	Scanned  int
	Inserted int
	Existing int
	Invalid  int
}

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dir := fs.String("dir", "testdata/articles", "Directory containing .json article files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	files, err := collectJSONFiles(strings.TrimSpace(*dir), *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest setup failed: %v\n", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "Ingest failed: no .json files found under %s\n", strings.TrimSpace(*dir))
		return 1
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

	result := ingestResult{}
	for _, path := range files {
		result.Scanned++

		raw, err := os.ReadFile(path)
		if err != nil {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "SKIP %s: read failed: %v\n", path, err)
			continue
		}

		item, err := payloadschema.ValidateArticleItemPayload(json.RawMessage(raw))
		if err != nil {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "SKIP %s: %v\n", path, err)
			continue
		}

		input, err := ingestInputFromItem(item)
		if err != nil {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "SKIP %s: %v\n", path, err)
			continue
		}

		res, err := pool.InsertArticle(ctx, input)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("article insert failed")
			fmt.Fprintf(os.Stderr, "Ingest failed for %s: %v\n", path, err)
			return 1
		}
		if res.Inserted {
			result.Inserted++
		} else {
			result.Existing++
		}
	}

	logger.Info().
		Int("scanned", result.Scanned).
		Int("inserted", result.Inserted).
		Int("existing", result.Existing).
		Int("invalid", result.Invalid).
		Msg("ingest completed")

	fmt.Printf(
		"ingest scanned=%d inserted=%d existing=%d invalid=%d\n",
		result.Scanned, result.Inserted, result.Existing, result.Invalid,
	)

	if result.Invalid > 0 {
		return 1
	}
	return 0
}

func ingestInputFromItem(item *payloadschema.ArticleItem) (db.IngestArticleInput, error) {
	input := db.IngestArticleInput{
		Source:       item.Source,
		SourceItemID: item.SourceItemID,
		Title:        item.Title,
		URL:          item.URL,
	}

	if item.BodyText != nil {
		input.BodyText = *item.BodyText
	}

	if item.PublishedAt != nil {
		published, err := time.Parse(time.RFC3339, *item.PublishedAt)
		if err != nil {
			return db.IngestArticleInput{}, fmt.Errorf("invalid published_at: %w", err)
		}
		utc := published.UTC()
		input.PublishedAt = &utc
	}

	if item.Language != nil {
		input.Language = language.NormalizeCode(*item.Language)
	}
	if input.Language == "" {
		input.Language = langdetect.Detect(item.Title + "\n" + input.BodyText)
	}

	if item.Extraction != nil {
		input.Extraction = extractionFromPayload(item.Extraction)
		input.ModelName = "payload"
	}

	return input, nil
}

func extractionFromPayload(payload *payloadschema.ExtractionPayload) *narrative.Extraction {
	actors := make(map[string]float64, len(payload.Actors))
	for _, actor := range payload.Actors {
		actors[actor.Name] = actor.Salience
	}
	return &narrative.Extraction{
		NucleusEntity: strings.TrimSpace(payload.NucleusEntity),
		Actors:        actors,
		Actions:       payload.Actions,
		Tensions:      payload.Tensions,
		Summary:       payload.Summary,
	}
}
