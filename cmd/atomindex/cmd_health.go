package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Chunkys0up7/atomindex/cmd/atomindex/internal"
	"github.com/Chunkys0up7/atomindex/internal/config"
	"github.com/Chunkys0up7/atomindex/internal/engine"
	"github.com/Chunkys0up7/atomindex/internal/health"
)

// handleHealth implements the health subcommand
func handleHealth(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	var jsonOutput bool
	var probesFile string
	fs.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	fs.StringVar(&probesFile, "probes", "", "YAML file of known-answer probes for an MRR sweep")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    atomindex health [options]

DESCRIPTION:
    Show index health: freshness, per-backend connectivity, query latency
    quantiles and candidate duplication. With -probes, additionally run a
    known-answer probe sweep and report mean reciprocal rank.

    Probe file format:
      probes:
        - query: "customer onboarding"
          expected: proc-onboarding

OPTIONS:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	logger, err := internal.NewLogger("health", false)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()

	eng, err := engine.Open(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}
	defer eng.Close()

	ctx := context.Background()
	report, err := eng.Health(ctx)
	if err != nil {
		log.Fatalf("Failed to read health: %v", err)
	}

	mrr := -1.0
	if probesFile != "" {
		probes, err := health.LoadProbesFile(probesFile)
		if err != nil {
			log.Fatalf("Failed to load probes: %v", err)
		}
		if len(probes) == 0 {
			log.Fatalf("No probes found in %s", probesFile)
		}
		mrr, err = eng.MRR(ctx, probes)
		if err != nil {
			log.Fatalf("Probe sweep failed: %v", err)
		}
	}

	if jsonOutput {
		out := struct {
			*health.Report
			MRR *float64 `json:"mrr,omitempty"`
		}{Report: report}
		if mrr >= 0 {
			out.MRR = &mrr
		}
		jsonData, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("Index Health")
	fmt.Println()
	fmt.Printf("Indexed atoms: %d\n", report.IndexedAtoms)
	fmt.Printf("Records:       %d\n", report.Records)
	fmt.Printf("Embeddings:    %d\n", report.Embeddings)
	fmt.Printf("Edges:         %d\n", report.Edges)

	fmt.Println("\nBackends")
	for _, b := range report.Backends {
		status := "ok"
		if !b.OK {
			status = "DOWN"
		}
		if b.Detail != "" {
			status += " (" + b.Detail + ")"
		}
		fmt.Printf("  %-13s%s\n", b.Name+":", status)
	}
	if report.Degraded {
		fmt.Println("  one or more backends unreachable; queries will degrade")
	}

	if report.Samples > 0 {
		fmt.Printf("\nLatency:       p50 %s, p95 %s, p99 %s over %d queries\n",
			report.LatencyP50, report.LatencyP95, report.LatencyP99, report.Samples)
	}
	if report.CandidatesSampled > 0 {
		fmt.Printf("Dup candidates: %.1f%% of %d seen via more than one source\n",
			report.DuplicateCandidateRate*100, report.CandidatesSampled)
	}
	if report.NearDuplicateRate > 0 {
		fmt.Printf("Near-dup atoms: %.1f%%\n", report.NearDuplicateRate*100)
	}
	if mrr >= 0 {
		fmt.Printf("Probe MRR:     %.3f\n", mrr)
	}

	if report.IndexedAtoms == 0 {
		fmt.Println("\nNothing indexed yet. Run `atomindex index`.")
		return
	}

	age := time.Since(report.OldestIndexedAt).Round(time.Minute)
	fmt.Printf("\nOldest entry:  %s (%s ago)\n", report.OldestIndexedAt.Format(time.RFC3339), age)
	if report.Stale {
		fmt.Printf("Stale atoms:   %d (run `atomindex index` to refresh)\n", report.StaleAtoms)
	} else {
		fmt.Println("Freshness:     ok")
	}
}
