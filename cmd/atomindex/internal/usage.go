package internal

import (
	"fmt"
	"os"
	"strings"
)

const Version = "0.4.2"

// PrintUsage writes the top-level usage text to stderr.
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `atomindex - Semantic Search over Documentation Catalogs

Version: %s

USAGE:
    atomindex [global options] <command> [command options]

GLOBAL OPTIONS:
    -config <path>
        Path to config file (default: ~/.atomindex/config/atomindex.yaml)

    -catalog <path>
        Override catalog root directory

    -v, -version
        Show version information

    -h, -help
        Show this help message

COMMANDS:
    init
        Write a default config file template

    index
        Build or refresh the index from the atom catalog

    search
        Search the catalog (modes: entity, path, impact)

    ask
        Answer a question from the catalog with citations

    stats
        Show index statistics

    health
        Show index freshness and query latency

    mcp
        Run MCP stdio server (tools: atom_search, atom_ask, atom_status, atom_reindex)

EXAMPLES:
    # Write the default config, then fill in the catalog path and API key
    atomindex init

    # Index the configured catalog
    atomindex index

    # Index a different catalog
    atomindex -catalog /path/to/catalog index

    # Find the atoms closest to a query
    atomindex search "customer onboarding"

    # Expand the graph neighborhood around the matches
    atomindex search "customer onboarding" -mode path

    # Everything downstream of one atom
    atomindex search "retention policy" -mode impact -seed policy-retention

    # Ask a question with citations
    atomindex ask "who owns the churn model dataset?"

    # Run MCP server over stdio
    atomindex mcp

For detailed help on each command, use:
    atomindex <command> -help
`, Version)
}

// StringList is a flag.Value that collects multiple strings
type StringList []string

func (s *StringList) String() string {
	return strings.Join(*s, ",")
}

func (s *StringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}
