package answer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Chunkys0up7/atomindex/internal/retrieval"
)

// Citation ties a passage of the answer back to a catalog atom, carrying
// the ranked score and query mode the atom surfaced under.
type Citation struct {
	Ref      int     `json:"ref"`
	RecordID string  `json:"record_id"`
	Title    string  `json:"title"`
	Score    float64 `json:"score"`
	Mode     string  `json:"mode,omitempty"`
}

// Response is a generated answer with its provenance.
type Response struct {
	Text      string        `json:"text"`
	Citations []Citation    `json:"citations"`
	// Degraded is set when the answer came from the extractive fallback
	// rather than the language model.
	Degraded bool          `json:"degraded"`
	Model    string        `json:"model,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Options bound answer generation.
type Options struct {
	// Timeout applies per attempt, not to the whole call.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int
	// ContextBudget caps the evidence text handed to the model, in runes.
	ContextBudget int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 1
	}
	if o.ContextBudget <= 0 {
		o.ContextBudget = 12000
	}
	return o
}

// Generator produces cited answers from ranked results.
type Generator struct {
	client LLMClient
	opts   Options
	logger *zap.Logger
	model  string
	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// NewGenerator creates a generator. client may be nil, in which case every
// answer comes from the extractive fallback.
func NewGenerator(client LLMClient, opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		client: client,
		opts:   opts.withDefaults(),
		logger: logger.With(zap.String("component", "answer")),
		sleep:  time.Sleep,
	}
	if chat, ok := client.(*ChatClient); ok {
		g.model = chat.Model()
	}
	return g
}

// Generate builds a cited answer for the query from the ranked results.
// Model failures degrade to an extractive summary; they never fail the
// query and never fabricate citations.
func (g *Generator) Generate(ctx context.Context, query, mode string, results []retrieval.RankedResult) (*Response, error) {
	start := time.Now()

	if len(results) == 0 {
		return &Response{
			Text:    "No matching records were found for this query.",
			Elapsed: time.Since(start),
		}, nil
	}

	evidence, citations := buildEvidence(results, g.opts.ContextBudget, mode)

	if g.client != nil {
		text, err := g.complete(ctx, query, evidence)
		if err == nil {
			resp := &Response{
				Text:      text,
				Citations: citedSubset(text, citations),
				Model:     g.model,
				Elapsed:   time.Since(start),
			}
			return resp, nil
		}
		g.logger.Warn("answer generation degraded to extractive fallback", zap.Error(err))
	}

	resp := extractive(results, citations)
	resp.Elapsed = time.Since(start)
	return resp, nil
}

// complete runs the model call with per-attempt timeout and retry backoff.
func (g *Generator) complete(parent context.Context, query, evidence string) (string, error) {
	system := "You answer questions about an organization's documented processes, policies, controls, datasets and systems. " +
		"Use ONLY the numbered source records provided. Cite every claim with its source number in square brackets, like [1]. " +
		"If the sources do not answer the question, say so plainly."

	user := fmt.Sprintf("Question: %s\n\nSources:\n\n%s\n\nAnswer the question using only these sources, with [n] citations.", query, evidence)

	var lastErr error
	attempts := 1 + g.opts.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			g.sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}

		ctx, cancel := context.WithTimeout(parent, g.opts.Timeout)
		text, err := g.client.Complete(ctx, system, user)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if parent.Err() != nil {
			break
		}
		g.logger.Debug("answer attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return "", lastErr
}

// buildEvidence renders numbered source blocks under the context budget.
// Result order is preserved so citation numbers follow rank.
func buildEvidence(results []retrieval.RankedResult, budget int, mode string) (string, []Citation) {
	var b strings.Builder
	var citations []Citation
	used := 0

	for i, res := range results {
		rec := res.Record
		header := fmt.Sprintf("[%d] %s (%s) %s\n", i+1, rec.ID, rec.Type, rec.Title)
		body := strings.TrimSpace(rec.Body)

		remaining := budget - used - len([]rune(header))
		if remaining <= 0 {
			break
		}
		if bodyRunes := []rune(body); len(bodyRunes) > remaining {
			body = string(bodyRunes[:remaining]) + "..."
		}

		b.WriteString(header)
		b.WriteString(body)
		b.WriteString("\n\n")
		used += len([]rune(header)) + len([]rune(body)) + 2

		citations = append(citations, Citation{
			Ref:      i + 1,
			RecordID: rec.ID,
			Title:    rec.Title,
			Score:    res.Score,
			Mode:     mode,
		})
	}

	return b.String(), citations
}

var citationRef = regexp.MustCompile(`\[(\d+)\]`)

// citedSubset keeps only the citations the answer text actually references.
// References outside the provided range are ignored, never invented.
func citedSubset(text string, citations []Citation) []Citation {
	refs := make(map[int]bool)
	for _, m := range citationRef.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			refs[n] = true
		}
	}

	var cited []Citation
	for _, c := range citations {
		if refs[c.Ref] {
			cited = append(cited, c)
		}
	}
	if len(cited) == 0 {
		// The model answered without markers; fall back to the evidence
		// actually handed to it rather than returning an uncited answer.
		cited = citations
	}
	sort.Slice(cited, func(i, j int) bool { return cited[i].Ref < cited[j].Ref })
	return cited
}

// extractive builds a deterministic answer straight from the top results.
func extractive(results []retrieval.RankedResult, citations []Citation) *Response {
	const maxExtracts = 3

	n := len(results)
	if n > maxExtracts {
		n = maxExtracts
	}

	var b strings.Builder
	b.WriteString("The most relevant records, in ranked order:\n\n")
	for i := 0; i < n; i++ {
		rec := results[i].Record
		b.WriteString(fmt.Sprintf("%d. %s: %s [%d]\n", i+1, rec.Title, firstSentence(rec.Body), i+1))
	}

	return &Response{
		Text:      strings.TrimSpace(b.String()),
		Citations: citations[:min(n, len(citations))],
		Degraded:  true,
	}
}

// firstSentence returns the leading sentence of a body, bounded in length.
func firstSentence(body string) string {
	body = strings.TrimSpace(body)
	for i, r := range body {
		if r == '.' || r == '\n' {
			return strings.TrimSpace(body[:i+1])
		}
	}
	const limit = 200
	if runes := []rune(body); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return body
}
