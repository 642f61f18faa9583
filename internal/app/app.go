package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "extract":
		return runExtract(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	case "dedup":
		return runDedup(args[1:])
	case "narratives":
		return runNarratives(args[1:])
	case "narrative":
		return runNarrativeDetail(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "narratives CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  narratives <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  validate   Validate article JSON files against the v1 schema")
	fmt.Fprintln(os.Stderr, "  ingest     Insert validated article JSON files")
	fmt.Fprintln(os.Stderr, "  extract    Run entity extraction for pending articles")
	fmt.Fprintln(os.Stderr, "  process    Cluster and match extracted articles into narratives")
	fmt.Fprintln(os.Stderr, "  run-once   Alias for process")
	fmt.Fprintln(os.Stderr, "  dedup      Reconcile duplicate narratives sharing a nucleus entity")
	fmt.Fprintln(os.Stderr, "  narratives List narratives (active, archive or resurrections view)")
	fmt.Fprintln(os.Stderr, "  narrative  Show one narrative with articles and lifecycle history")
	fmt.Fprintln(os.Stderr, "  stats      Show engine counters")
	fmt.Fprintln(os.Stderr, "  serve      Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"narratives <command> -h\" for command-specific flags.")
}
