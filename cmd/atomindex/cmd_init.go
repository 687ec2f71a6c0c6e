package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Chunkys0up7/atomindex/internal/config"
)

// handleInit implements the init subcommand
func handleInit(configPath string, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    atomindex init

DESCRIPTION:
    Write a default config file template. Does nothing when the file
    already exists. Honors the global -config flag for the location.

EXAMPLES:
    # Write ~/.atomindex/config/atomindex.yaml
    atomindex init

    # Write to a custom location
    atomindex -config ./atomindex.yaml init
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	path := configPath
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to resolve home directory: %v", err)
		}
		path = filepath.Join(homeDir, ".atomindex", "config", "atomindex.yaml")
	}

	created, err := config.WriteDefaultTemplate(path)
	if err != nil {
		log.Fatalf("Failed to write config template: %v", err)
	}
	if !created {
		fmt.Printf("Config already exists at %s, leaving it untouched\n", path)
		return
	}
	fmt.Printf("Created config template at %s\n", path)
	fmt.Println("Set catalog.path and embedding.api_key, then run `atomindex index`.")
}
