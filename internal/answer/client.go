// Package answer turns ranked retrieval results into a cited natural
// language answer, falling back to a deterministic extract when the
// language model is slow or down.
package answer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Chunkys0up7/atomindex/internal/config"
)

// LLMClient generates completions from a system and user prompt.
type LLMClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ChatClient calls an OpenAI-compatible chat completions endpoint with SSE
// streaming.
type ChatClient struct {
	client   *http.Client
	apiKey   string
	endpoint string
	model    string
}

// NewChatClient creates a chat client from answer configuration.
func NewChatClient(cfg *config.AnswerConfig) (*ChatClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("answer config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("answer.api_key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://ark.cn-beijing.volces.com/api/v3/chat/completions"
	}

	model := cfg.Model
	if model == "" {
		model = "doubao-1-5-pro-32k-250115"
	}

	return &ChatClient{
		// Per-attempt deadlines come from the caller's context; this is
		// only a hard ceiling against leaked connections.
		client:   &http.Client{Timeout: 120 * time.Second},
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		model:    model,
	}, nil
}

// Model returns the configured model name.
func (c *ChatClient) Model() string {
	return c.model
}

// Complete sends one chat completion request and concatenates the streamed
// deltas into a single answer string.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": 0.2,
		"top_p":       0.7,
		"max_tokens":  2048,
		"stream":      true,
		"thinking":    map[string]any{"type": "disabled"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var content strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue // Empty line between SSE chunks
		}
		if strings.HasPrefix(line, "data: ") {
			line = strings.TrimPrefix(line, "data: ")
		}
		if line == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			// Skip non-JSON keepalive lines
			continue
		}

		if len(chunk.Choices) > 0 {
			if chunk.Choices[0].Delta.Content != "" {
				content.WriteString(chunk.Choices[0].Delta.Content)
			}
			if fr := chunk.Choices[0].FinishReason; fr != nil && *fr == "stop" {
				break
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading stream: %w", err)
	}

	text := strings.TrimSpace(content.String())
	if text == "" {
		return "", fmt.Errorf("empty content from streaming response")
	}
	return text, nil
}
