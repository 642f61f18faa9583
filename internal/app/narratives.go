package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/narratives/internal/cli"
	"horse.fit/narratives/internal/db"
	"horse.fit/narratives/internal/globaltime"
)

func runNarratives(args []string) int {
	fs := flag.NewFlagSet("narratives", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	view := fs.String("view", "active", "View: active, archive or resurrections")
	limit := fs.Int("limit", 50, "Maximum narratives to list")
	archiveDays := fs.Int("archive-days", 30, "Archive view recency window in days")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

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
	if *archiveDays <= 0 {
		fmt.Fprintln(os.Stderr, "--archive-days must be > 0")
		return 2
	}

	parsedView, err := db.ParseNarrativeView(*view)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid view: %v\n", err)
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, _, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	items, err := pool.ListNarratives(ctx, db.NarrativeListOptions{
		View:          parsedView,
		ArchiveWindow: time.Duration(*archiveDays) * 24 * time.Hour,
		Limit:         *limit,
		Now:           globaltime.UTC(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list narratives: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(items); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.NarrativeUUID,
			truncateForTable(item.Title, 48),
			item.LifecycleState,
			fmt.Sprintf("%d", item.ArticleCount),
			fmt.Sprintf("%.2f", item.MentionVelocity),
			item.Momentum,
			fmt.Sprintf("%d", item.ReawakeningCount),
			formatUTCTimestamp(item.LastUpdated),
		})
	}
	if err := writeTable(
		[]string{"narrative_uuid", "title", "state", "articles", "velocity", "momentum", "reawakened", "last_updated"},
		rows,
	); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	return 0
}
