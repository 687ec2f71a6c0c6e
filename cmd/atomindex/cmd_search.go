package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Chunkys0up7/atomindex/cmd/atomindex/internal"
	"github.com/Chunkys0up7/atomindex/internal/config"
	"github.com/Chunkys0up7/atomindex/internal/engine"
)

// handleSearch implements the search subcommand
func handleSearch(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)

	var mode, seed, types string
	var topK, maxHops int
	var jsonOutput, verbose bool

	fs.StringVar(&mode, "mode", "entity", "Query mode: entity, path or impact")
	fs.StringVar(&seed, "seed", "", "Atom ID to expand an impact traversal from")
	fs.StringVar(&types, "type", "", "Comma-separated atom types to restrict results to")
	fs.IntVar(&topK, "k", 10, "Number of results to return")
	fs.IntVar(&maxHops, "hops", 0, "Traversal depth override for path/impact modes")
	fs.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	fs.BoolVar(&verbose, "v", false, "Verbose output (show per-signal scores)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    atomindex search [options] "<query>"

DESCRIPTION:
    Search the atom catalog using natural language queries.

    Modes:
      entity   Atoms most similar to the query (default)
      path     Matches plus their graph neighborhood
      impact   Everything downstream of an atom (use -seed to pin it)

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Natural language search
    atomindex search "customer onboarding process"

    # Expand the graph around the matches
    atomindex search "billing pipeline" -mode path

    # Downstream of a known atom
    atomindex search "retention policy" -mode impact -seed policy-retention

    # Get top 20 results as JSON
    atomindex search "data quality controls" -k 20 -json

    # Only processes and policies
    atomindex search "approval workflow" -type process,policy
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: search query is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	query := fs.Arg(0)

	logger, err := internal.NewLogger("search", verbose)
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
	})
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	if jsonOutput {
		outputJSON(result)
	} else {
		outputText(result, query, verbose)
	}
}

// splitTypes parses a comma-separated type list, dropping empty entries.
func splitTypes(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// outputText prints a query result as human-readable text
func outputText(result *engine.QueryResult, query string, verbose bool) {
	for _, note := range result.Notes {
		fmt.Fprintf(os.Stderr, "Note: %s\n", note)
	}

	if len(result.Results) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("Found %d result(s) for: %s\n\n", len(result.Results), query)

	for i, r := range result.Results {
		rec := r.Record
		fmt.Printf("%d. %s\n", i+1, rec.Title)
		fmt.Printf("   ID:     %s\n", rec.ID)
		fmt.Printf("   Type:   %s\n", rec.Type)
		if rec.Owner != "" {
			fmt.Printf("   Owner:  %s\n", rec.Owner)
		}
		if rec.Domain != "" {
			fmt.Printf("   Domain: %s\n", rec.Domain)
		}
		if r.Hop > 0 {
			fmt.Printf("   Via:    %s (%d hop(s))\n", r.Via, r.Hop)
		}

		if verbose {
			fmt.Printf("   Vector:   %.3f\n", r.VectorScore)
			fmt.Printf("   Graph:    %.3f\n", r.GraphScore)
			fmt.Printf("   Metadata: %.3f\n", r.MetadataScore)
			fmt.Printf("   Score:    %.3f\n", r.Score)
			fmt.Printf("   Sources:  %s\n", strings.Join(r.Sources, ", "))
		}

		body := strings.TrimSpace(rec.Body)
		if body != "" {
			if idx := strings.IndexByte(body, '\n'); idx > 0 {
				body = body[:idx]
			}
			if len(body) > 100 {
				body = body[:100] + "..."
			}
			fmt.Printf("   %s\n", body)
		}

		fmt.Println()
	}
}

// outputJSON prints a query result as JSON
func outputJSON(result *engine.QueryResult) {
	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal results: %v", err)
	}
	fmt.Println(string(jsonData))
}
