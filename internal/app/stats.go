package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"horse.fit/narratives/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
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

	stats, err := pool.GetEngineStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query engine stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	totalsRows := [][]string{
		{"total_articles", fmt.Sprintf("%d", stats.TotalArticles)},
		{"pending_extraction", fmt.Sprintf("%d", stats.PendingExtraction)},
		{"unassigned_articles", fmt.Sprintf("%d", stats.UnassignedArticles)},
		{"total_narratives", fmt.Sprintf("%d", stats.TotalNarratives)},
		{"total_merges", fmt.Sprintf("%d", stats.TotalMerges)},
		{"open_summary_tasks", fmt.Sprintf("%d", stats.OpenSummaryTasks)},
	}
	if err := writeTable([]string{"metric", "value"}, totalsRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render totals table: %v\n", err)
		return 1
	}

	if len(stats.NarrativesByState) > 0 {
		states := make([]string, 0, len(stats.NarrativesByState))
		for state := range stats.NarrativesByState {
			states = append(states, state)
		}
		sort.Strings(states)

		fmt.Println()
		stateRows := make([][]string, 0, len(states))
		for _, state := range states {
			stateRows = append(stateRows, []string{state, fmt.Sprintf("%d", stats.NarrativesByState[state])})
		}
		if err := writeTable([]string{"lifecycle_state", "narratives"}, stateRows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render state table: %v\n", err)
			return 1
		}
	}

	return 0
}
