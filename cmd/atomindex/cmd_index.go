package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Chunkys0up7/atomindex/cmd/atomindex/internal"
	"github.com/Chunkys0up7/atomindex/internal/config"
	"github.com/Chunkys0up7/atomindex/internal/engine"
	"github.com/Chunkys0up7/atomindex/internal/indexer"
)

// handleIndex implements the index subcommand
func handleIndex(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	verbose := fs.Bool("v", false, "Verbose output")
	noProgress := fs.Bool("no-progress", false, "Disable the progress bar")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    atomindex index [options]

DESCRIPTION:
    Build or refresh the search index from the atom catalog.
    This will:
      1. Load atom records from the catalog directory
      2. Embed new and changed atoms (chunking long bodies)
      3. Rebuild relation edges for changed atoms
      4. Update the keyword index
      5. Remove atoms deleted from the catalog

    Unchanged atoms are skipped, so repeated runs are cheap.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Index the configured catalog
    atomindex index

    # Index a different catalog
    atomindex -catalog /path/to/catalog index

    # Verbose output
    atomindex index -v
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if _, err := os.Stat(cfg.Catalog.Path); os.IsNotExist(err) {
		log.Fatalf("Catalog path does not exist: %s", cfg.Catalog.Path)
	}

	logger, err := internal.NewLogger("index", *verbose)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()

	fmt.Printf("Building index for: %s\n\n", cfg.Catalog.Path)

	eng, err := engine.Open(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}
	defer eng.Close()

	progress := indexer.NewIndexProgress(indexer.DefaultProgressEnabled() && !*noProgress)

	report, err := eng.Reindex(context.Background(), progress)
	if err != nil {
		log.Fatalf("Indexing failed: %v", err)
	}

	fmt.Println("Indexing completed")
	fmt.Printf("\nDuration: %v\n", report.Elapsed.Round(time.Millisecond))
	fmt.Printf("\nAdded:   %6d\n", report.Added)
	fmt.Printf("Updated: %6d\n", report.Updated)
	fmt.Printf("Skipped: %6d\n", report.Skipped)
	fmt.Printf("Removed: %6d\n", report.Removed)
	if report.Failed > 0 {
		fmt.Printf("Failed:  %6d\n", report.Failed)
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", w)
	}
	if report.Failed > 0 {
		os.Exit(1)
	}
}
