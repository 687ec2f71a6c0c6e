package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Chunkys0up7/atomindex/cmd/atomindex/internal"
	"github.com/Chunkys0up7/atomindex/internal/config"
	"github.com/Chunkys0up7/atomindex/internal/engine"
)

// handleAsk implements the ask subcommand
func handleAsk(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)

	var mode, seed, types string
	var topK, maxHops int
	var jsonOutput, verbose bool

	fs.StringVar(&mode, "mode", "entity", "Query mode: entity, path or impact")
	fs.StringVar(&seed, "seed", "", "Atom ID to expand an impact traversal from")
	fs.StringVar(&types, "type", "", "Comma-separated atom types to restrict grounding to")
	fs.IntVar(&topK, "k", 10, "Number of results to ground the answer on")
	fs.IntVar(&maxHops, "hops", 0, "Traversal depth override for path/impact modes")
	fs.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	fs.BoolVar(&verbose, "v", false, "Verbose output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    atomindex ask [options] "<question>"

DESCRIPTION:
    Answer a question from the atom catalog. Retrieves per the chosen
    mode, re-ranks, and generates an answer with citations back to the
    catalog. When no answer model is configured (or it is down), the
    answer degrades to an extractive summary of the top results.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Ask a question
    atomindex ask "who owns the churn model dataset?"

    # What breaks if this atom changes
    atomindex ask "what depends on the identity service?" -mode impact

    # JSON output for scripting
    atomindex ask "which controls govern PII exports?" -json
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: question is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	query := fs.Arg(0)

	logger, err := internal.NewLogger("ask", verbose)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()

	eng, err := engine.Open(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}
	defer eng.Close()

	result, err := eng.Query(context.Background(), engine.QueryRequest{
		Query:   query,
		Mode:    mode,
		Seed:    seed,
		MaxHops: maxHops,
		TopK:    topK,
		Types:   splitTypes(types),
		Answer:  true,
	})
	if err != nil {
		log.Fatalf("Ask failed: %v", err)
	}

	if jsonOutput {
		jsonData, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal result: %v", err)
		}
		fmt.Println(string(jsonData))
		return
	}

	for _, note := range result.Notes {
		fmt.Fprintf(os.Stderr, "Note: %s\n", note)
	}
	if result.Answer == nil {
		fmt.Println("No answer generated")
		return
	}

	fmt.Println(result.Answer.Text)

	if len(result.Answer.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range result.Answer.Citations {
			fmt.Printf("  [%d] %s: %s (score %.2f)\n", c.Ref, c.RecordID, c.Title, c.Score)
		}
	}
	if result.Answer.Degraded {
		fmt.Fprintln(os.Stderr, "\nNote: answer model unavailable; this is an extractive summary.")
	}
}
