package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Catalog   CatalogConfig   `yaml:"catalog"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database,omitempty"`
	TextIndex TextIndexConfig `yaml:"text_index,omitempty"`
	Indexer   IndexerConfig   `yaml:"indexer,omitempty"`
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty"`
	Answer    AnswerConfig    `yaml:"answer,omitempty"`
	Health    HealthConfig    `yaml:"health,omitempty"`
}

// CatalogConfig describes where atom records are read from
type CatalogConfig struct {
	// Root directory containing atom YAML files
	Path string `yaml:"path"`
	// Include patterns (doublestar globs, relative to Path)
	Include []string `yaml:"include,omitempty"`
	// Exclude patterns
	Exclude []string `yaml:"exclude,omitempty"`
	// Repo-relative alias file expanding domain shorthand in queries
	AliasesFile string `yaml:"aliases_file,omitempty"`
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "volcengine" | "openai"

	// VolcEngine specific
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`

	// OpenAI specific
	OpenAIAPIKey string `yaml:"openai_api_key,omitempty"`
	OpenAIModel  string `yaml:"openai_model,omitempty"`

	// Embedding parameters
	Dimensions     int    `yaml:"dimensions"`      // 1024 | 1536 | 2048
	BatchSize      int    `yaml:"batch_size"`      // Batch size for embedding
	EncodingFormat string `yaml:"encoding_format"` // "float" | "base64"
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Path to SQLite database file
	// If empty, uses ~/.atomindex/data/atomindex.db
	Path string `yaml:"path,omitempty"`
}

// TextIndexConfig holds keyword index configuration
type TextIndexConfig struct {
	// Path to the bleve index directory
	// If empty, uses ~/.atomindex/data/atomindex.bleve
	Path string `yaml:"path,omitempty"`
}

// IndexerConfig holds indexer-specific configuration
type IndexerConfig struct {
	MaxWorkers int `yaml:"max_workers,omitempty"` // Maximum parallel embedding calls
	// Bodies longer than this many characters are chunked before embedding
	ChunkThreshold int `yaml:"chunk_threshold,omitempty"`
	// Target chunk size in characters
	ChunkSize int `yaml:"chunk_size,omitempty"`
	// Adjacent-unit cosine similarity below which the chunker places a break
	ChunkSimilarity float64 `yaml:"chunk_similarity,omitempty"`
	// Consecutive failures before an index run aborts
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures,omitempty"`
}

// RetrievalConfig holds query-time configuration
type RetrievalConfig struct {
	DefaultTopK int `yaml:"default_top_k,omitempty"` // Default number of results

	// Re-ranking weights; must sum to 1.0
	VectorWeight   float64 `yaml:"vector_weight,omitempty"`
	GraphWeight    float64 `yaml:"graph_weight,omitempty"`
	MetadataWeight float64 `yaml:"metadata_weight,omitempty"`

	// Candidate caps per mode
	EntityCandidates int `yaml:"entity_candidates,omitempty"` // vector candidates for entity lookups
	PathSeeds        int `yaml:"path_seeds,omitempty"`        // top vector hits expanded for path queries
	PathMaxNodes     int `yaml:"path_max_nodes,omitempty"`    // total node cap for path expansion
	ImpactMaxHops    int `yaml:"impact_max_hops,omitempty"`   // traversal depth for impact queries

	// Metadata score shape
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days,omitempty"`
}

// AnswerConfig holds answer generation configuration
type AnswerConfig struct {
	Provider string `yaml:"provider,omitempty"` // "volcengine" | "openai"
	APIKey   string `yaml:"api_key,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Model    string `yaml:"model,omitempty"`

	// Per-attempt timeout in seconds
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
	// Retries after the first failed attempt
	MaxRetries int `yaml:"max_retries,omitempty"`
	// Context budget in characters handed to the model
	ContextBudget int `yaml:"context_budget,omitempty"`
}

// HealthConfig holds freshness monitoring configuration
type HealthConfig struct {
	// Age in hours after which an index entry counts as stale
	StaleAfterHours int `yaml:"stale_after_hours,omitempty"`
	// Samples retained for latency quantiles
	LatencyWindow int `yaml:"latency_window,omitempty"`
}

// Load loads configuration from the default config file
// Default location: ~/.atomindex/config/atomindex.yaml
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".atomindex", "config", "atomindex.yaml")
	return LoadFromFile(configPath)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			homeDir, _ := os.UserHomeDir()
			defaultPath := filepath.Join(homeDir, ".atomindex", "config", "atomindex.yaml")
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults
	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with -config flag\n"+
		"  3. Run 'atomindex init' to create a config template",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	_, ok := err.(*ConfigNotFoundError)
	return ok
}

// expandPath expands ~ and $HOME to the user's home directory
// Supports both:
//
//	~/.atomindex/data/atomindex.db
//	$HOME/.atomindex/data/atomindex.db
func expandPath(path string) string {
	// Handle $HOME environment variable
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			// Fallback to UserHomeDir if HOME is not set
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				// If we can't get home dir, return path as-is
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	// Handle ~ shorthand
	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			// If we can't get home dir, return path as-is
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() error {
	// Catalog
	if c.Catalog.Path != "" {
		c.Catalog.Path = expandPath(c.Catalog.Path)
	}
	if c.Catalog.AliasesFile == "" {
		c.Catalog.AliasesFile = "domain_aliases.yaml"
	}

	// Embedding
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "volcengine"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "doubao-embedding-vision-250615"
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 2048
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 10
	}
	if c.Embedding.EncodingFormat == "" {
		c.Embedding.EncodingFormat = "float"
	}

	// Storage paths
	if c.Database.Path != "" {
		c.Database.Path = expandPath(c.Database.Path)
	}
	if c.TextIndex.Path != "" {
		c.TextIndex.Path = expandPath(c.TextIndex.Path)
	}

	// Indexer
	if c.Indexer.MaxWorkers == 0 {
		c.Indexer.MaxWorkers = 4
	}
	if c.Indexer.ChunkThreshold == 0 {
		c.Indexer.ChunkThreshold = 4000
	}
	if c.Indexer.ChunkSize == 0 {
		c.Indexer.ChunkSize = 1500
	}
	if c.Indexer.ChunkSimilarity == 0 {
		c.Indexer.ChunkSimilarity = 0.8
	}
	if c.Indexer.MaxConsecutiveFailures == 0 {
		c.Indexer.MaxConsecutiveFailures = 5
	}

	// Retrieval
	if c.Retrieval.DefaultTopK == 0 {
		c.Retrieval.DefaultTopK = 10
	}
	if c.Retrieval.VectorWeight == 0 && c.Retrieval.GraphWeight == 0 && c.Retrieval.MetadataWeight == 0 {
		c.Retrieval.VectorWeight = 0.6
		c.Retrieval.GraphWeight = 0.3
		c.Retrieval.MetadataWeight = 0.1
	}
	if c.Retrieval.EntityCandidates == 0 {
		c.Retrieval.EntityCandidates = 30
	}
	if c.Retrieval.PathSeeds == 0 {
		c.Retrieval.PathSeeds = 5
	}
	if c.Retrieval.PathMaxNodes == 0 {
		c.Retrieval.PathMaxNodes = 50
	}
	if c.Retrieval.ImpactMaxHops == 0 {
		c.Retrieval.ImpactMaxHops = 3
	}
	if c.Retrieval.RecencyHalfLifeDays == 0 {
		c.Retrieval.RecencyHalfLifeDays = 30
	}

	// Answer generation
	if c.Answer.Provider == "" {
		c.Answer.Provider = c.Embedding.Provider
	}
	if c.Answer.Endpoint == "" {
		c.Answer.Endpoint = "https://ark.cn-beijing.volces.com/api/v3/chat/completions"
	}
	if c.Answer.Model == "" {
		c.Answer.Model = "doubao-1-5-pro-32k-250115"
	}
	if c.Answer.TimeoutSeconds == 0 {
		c.Answer.TimeoutSeconds = 20
	}
	if c.Answer.MaxRetries == 0 {
		c.Answer.MaxRetries = 1
	}
	if c.Answer.ContextBudget == 0 {
		c.Answer.ContextBudget = 12000
	}

	// Health
	if c.Health.StaleAfterHours == 0 {
		c.Health.StaleAfterHours = 24
	}
	if c.Health.LatencyWindow == 0 {
		c.Health.LatencyWindow = 512
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate embedding configuration based on provider
	switch c.Embedding.Provider {
	case "volcengine":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("volcengine provider requires api_key")
		}
	case "openai":
		if c.Embedding.OpenAIAPIKey == "" {
			return fmt.Errorf("openai provider requires openai_api_key")
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	// Validate dimensions
	switch c.Embedding.Dimensions {
	case 1024, 1536, 2048:
	default:
		return fmt.Errorf("dimensions must be 1024, 1536 or 2048, got: %d", c.Embedding.Dimensions)
	}

	// Validate batch size
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 100 {
		return fmt.Errorf("batch_size must be between 1 and 100, got: %d", c.Embedding.BatchSize)
	}

	// Re-ranking weights must form a convex combination
	sum := c.Retrieval.VectorWeight + c.Retrieval.GraphWeight + c.Retrieval.MetadataWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("retrieval weights must sum to 1.0, got: %.3f", sum)
	}
	for name, w := range map[string]float64{
		"vector_weight":   c.Retrieval.VectorWeight,
		"graph_weight":    c.Retrieval.GraphWeight,
		"metadata_weight": c.Retrieval.MetadataWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative, got: %.3f", name, w)
		}
	}

	if c.Indexer.ChunkSimilarity < 0 || c.Indexer.ChunkSimilarity > 1 {
		return fmt.Errorf("chunk_similarity must be between 0 and 1, got: %.3f", c.Indexer.ChunkSimilarity)
	}

	if c.Retrieval.ImpactMaxHops < 1 || c.Retrieval.ImpactMaxHops > 5 {
		return fmt.Errorf("impact_max_hops must be between 1 and 5, got: %d", c.Retrieval.ImpactMaxHops)
	}

	return nil
}

// DatabasePath returns the resolved SQLite path, applying the default
// location when unset.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".atomindex", "data", "atomindex.db"), nil
}

// TextIndexPath returns the resolved bleve index directory, applying the
// default location when unset.
func (c *Config) TextIndexPath() (string, error) {
	if c.TextIndex.Path != "" {
		return c.TextIndex.Path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".atomindex", "data", "atomindex.bleve"), nil
}

// Save saves the configuration to the default location
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".atomindex", "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "atomindex.yaml")
	return c.SaveToFile(configPath)
}

// SaveToFile saves the configuration to a specific file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

const defaultConfigTemplate = `# AtomIndex Configuration
#
# Copy and edit this file for your environment.
# Default location: $HOME/.atomindex/config/atomindex.yaml

catalog:
  # Directory containing atom YAML files
  path: ~/atoms
  # include:
  #   - "**/*.yaml"
  # exclude:
  #   - "drafts/**"

embedding:
  # Provider: "volcengine" or "openai"
  provider: volcengine

  # VolcEngine configuration
  api_key: your-volcengine-api-key
  endpoint: https://ark.cn-beijing.volces.com/api/v3
  model: doubao-embedding-vision-250615
  dimensions: 2048
  batch_size: 10
  encoding_format: float

  # OpenAI configuration (alternative)
  # provider: openai
  # openai_api_key: your-openai-api-key
  # openai_model: text-embedding-3-small
  # dimensions: 1536
  # batch_size: 100
  # encoding_format: float

# indexer:
#   chunk_threshold: 2000
#   chunk_size: 1500
#   chunk_similarity: 0.8

# retrieval:
#   vector_weight: 0.6
#   graph_weight: 0.3
#   metadata_weight: 0.1

# answer:
#   timeout_seconds: 20
#   max_retries: 1
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
