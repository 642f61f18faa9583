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
	"horse.fit/narratives/internal/narrative"
)

func runNarrativeDetail(args []string) int {
	fs := flag.NewFlagSet("narrative", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: narratives narrative [flags] <narrative_uuid>")
		return 2
	}
	narrativeUUID := strings.TrimSpace(fs.Arg(0))

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

	detail, err := pool.GetNarrativeDetail(ctx, narrativeUUID)
	if err != nil {
		if errors.Is(err, narrative.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Narrative %s not found\n", narrativeUUID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load narrative: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(detail); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	headerRows := [][]string{
		{"narrative_uuid", detail.NarrativeUUID},
		{"title", detail.Title},
		{"nucleus_entity", detail.NucleusEntity},
		{"state", detail.LifecycleState},
		{"articles", fmt.Sprintf("%d", detail.ArticleCount)},
		{"velocity", fmt.Sprintf("%.2f", detail.MentionVelocity)},
		{"momentum", detail.Momentum},
		{"reawakened", fmt.Sprintf("%d", detail.ReawakeningCount)},
		{"resurrection_velocity", fmt.Sprintf("%.2f", detail.ResurrectionVelocity)},
		{"first_seen", formatUTCTimestamp(detail.FirstSeen)},
		{"last_updated", formatUTCTimestamp(detail.LastUpdated)},
		{"needs_summary_update", fmt.Sprintf("%t", detail.NeedsSummaryUpdate)},
	}
	if err := writeTable([]string{"field", "value"}, headerRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render narrative table: %v\n", err)
		return 1
	}

	if len(detail.LifecycleHistory) > 0 {
		var history []narrative.LifecycleEntry
		if err := json.Unmarshal(detail.LifecycleHistory, &history); err == nil && len(history) > 0 {
			fmt.Println()
			historyRows := make([][]string, 0, len(history))
			for _, entry := range history {
				historyRows = append(historyRows, []string{
					string(entry.State),
					formatUTCTimestamp(entry.At),
					fmt.Sprintf("%d", entry.ArticleCount),
					fmt.Sprintf("%.2f", entry.Velocity),
				})
			}
			if err := writeTable([]string{"state", "at", "articles", "velocity"}, historyRows); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to render history table: %v\n", err)
				return 1
			}
		}
	}

	if len(detail.Articles) > 0 {
		fmt.Println()
		articleRows := make([][]string, 0, len(detail.Articles))
		for _, article := range detail.Articles {
			articleRows = append(articleRows, []string{
				article.ArticleUUID,
				truncateForTable(article.Title, 56),
				article.Source,
				formatUTCTimestamp(article.PublishedAt),
			})
		}
		if err := writeTable([]string{"article_uuid", "title", "source", "published_at"}, articleRows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render articles table: %v\n", err)
			return 1
		}
	}

	return 0
}
