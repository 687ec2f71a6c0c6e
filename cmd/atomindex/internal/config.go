package internal

import (
	"fmt"
	"os"

	"github.com/Chunkys0up7/atomindex/internal/config"
)

// LoadConfig reads the config from an explicit path, or from the default
// location when the path is empty.
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// PrintConfigExample writes a minimal working config to stderr.
func PrintConfigExample() {
	homeDir, _ := os.UserHomeDir()
	configPath := fmt.Sprintf("%s/.atomindex/config/atomindex.yaml", homeDir)

	fmt.Fprintf(os.Stderr, `Create a configuration file at %s:

# Catalog of atom YAML files (required)
catalog:
  path: /path/to/catalog
  include:
    - "**/*.yaml"
    - "**/*.yml"

# Embedding service configuration (required)
embedding:
  # Provider: "volcengine" | "openai"
  provider: volcengine

  # VolcEngine configuration
  api_key: your-volcengine-api-key
  endpoint: https://ark.cn-beijing.volces.com/api/v3
  model: doubao-embedding-vision-250615

  # Embedding parameters
  dimensions: 2048              # 1024, 1536 or 2048
  batch_size: 10                # Batch size for embedding requests
  encoding_format: float        # "float" or "base64"

# For OpenAI provider, use:
# embedding:
#   provider: openai
#   openai_api_key: your-openai-api-key
#   openai_model: text-embedding-3-small
#   dimensions: 1536

# Optional: answer generation (without it, answers are extractive)
# answer:
#   api_key: your-chat-api-key
#   model: doubao-1-5-pro-32k-250115

Usage:
  1. Create the config file (or run: atomindex init)
  2. Build the index: atomindex index
  3. Search: atomindex search "your query"
  4. Ask: atomindex ask "your question"
`, configPath)
}
