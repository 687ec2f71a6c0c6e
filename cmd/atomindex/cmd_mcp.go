package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Chunkys0up7/atomindex/cmd/atomindex/internal"
	"github.com/Chunkys0up7/atomindex/internal/config"
	"github.com/Chunkys0up7/atomindex/internal/engine"
	"github.com/Chunkys0up7/atomindex/internal/mcpserver"
)

// handleMCP implements the MCP stdio server subcommand
func handleMCP(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    atomindex mcp

DESCRIPTION:
    Run an MCP stdio server exposing:
      - atom_search
      - atom_ask
      - atom_status
      - atom_reindex
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	// stdout carries the MCP protocol; keep the logger off it.
	logger, err := internal.NewLogger("mcp", false)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()

	eng, err := engine.Open(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}
	defer eng.Close()

	server := mcpserver.New(eng, internal.Version)
	if err := server.Run(context.Background()); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}
}
