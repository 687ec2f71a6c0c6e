// Package engine wires the catalog, indexes and answer generation into one
// query surface. The CLI and the MCP server both sit on top of it.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Chunkys0up7/atomindex/internal/answer"
	"github.com/Chunkys0up7/atomindex/internal/atom"
	"github.com/Chunkys0up7/atomindex/internal/config"
	"github.com/Chunkys0up7/atomindex/internal/embedding"
	"github.com/Chunkys0up7/atomindex/internal/health"
	"github.com/Chunkys0up7/atomindex/internal/indexer"
	"github.com/Chunkys0up7/atomindex/internal/retrieval"
	"github.com/Chunkys0up7/atomindex/internal/store"
	"github.com/Chunkys0up7/atomindex/internal/textindex"
)

// Engine is the assembled retrieval system.
type Engine struct {
	cfg      *config.Config
	db       *store.DB
	text     *textindex.Index
	records  *store.RecordStore
	graph    *store.GraphStore
	embedder *embedding.Service
	llm      answer.LLMClient

	catalog   atom.Catalog
	indexer   *indexer.Indexer
	router    *retrieval.Router
	reranker  *retrieval.Reranker
	generator *answer.Generator
	monitor   *health.Monitor

	logger *zap.Logger
}

// Open assembles an engine from configuration. The answer model is
// optional: without answer credentials every ask falls back to the
// extractive summary.
func Open(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	textPath, err := cfg.TextIndexPath()
	if err != nil {
		db.Close()
		return nil, err
	}
	text, err := textindex.Open(textPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open text index: %w", err)
	}

	embedSvc, err := embedding.NewService(&cfg.Embedding)
	if err != nil {
		text.Close()
		db.Close()
		return nil, err
	}

	catalog, err := atom.NewFileCatalog(cfg.Catalog.Path, cfg.Catalog.Include, cfg.Catalog.Exclude)
	if err != nil {
		text.Close()
		db.Close()
		return nil, err
	}

	aliases, err := retrieval.LoadAliasesForCatalog(cfg.Catalog.Path, cfg.Catalog.AliasesFile)
	if err != nil {
		text.Close()
		db.Close()
		return nil, err
	}

	var llm answer.LLMClient
	if cfg.Answer.APIKey != "" {
		chat, err := answer.NewChatClient(&cfg.Answer)
		if err != nil {
			text.Close()
			db.Close()
			return nil, err
		}
		llm = chat
	} else {
		logger.Info("no answer model configured, answers will be extractive")
	}

	records := store.NewRecordStore(db)
	graph := store.NewGraphStore(db)

	eng := &Engine{
		cfg:      cfg,
		db:       db,
		text:     text,
		records:  records,
		graph:    graph,
		embedder: embedSvc,
		llm:      llm,
		catalog:  catalog,
		indexer: indexer.New(catalog, embedSvc, db, text, indexer.Options{
			MaxWorkers:             cfg.Indexer.MaxWorkers,
			ChunkThreshold:         cfg.Indexer.ChunkThreshold,
			ChunkSize:              cfg.Indexer.ChunkSize,
			ChunkSimilarity:        float32(cfg.Indexer.ChunkSimilarity),
			MaxConsecutiveFailures: cfg.Indexer.MaxConsecutiveFailures,
			Model:                  cfg.Embedding.Model,
		}, logger),
		router: retrieval.NewRouter(embedSvc, store.NewVectorStore(db), graph, text, aliases, retrieval.Options{
			EntityCandidates: cfg.Retrieval.EntityCandidates,
			PathSeeds:        cfg.Retrieval.PathSeeds,
			PathMaxNodes:     cfg.Retrieval.PathMaxNodes,
			ImpactMaxHops:    cfg.Retrieval.ImpactMaxHops,
		}, logger),
		reranker: retrieval.NewReranker(records, retrieval.Weights{
			Vector:   cfg.Retrieval.VectorWeight,
			Graph:    cfg.Retrieval.GraphWeight,
			Metadata: cfg.Retrieval.MetadataWeight,
		}, time.Duration(cfg.Retrieval.RecencyHalfLifeDays*24)*time.Hour),
		generator: answer.NewGenerator(llm, answer.Options{
			Timeout:       time.Duration(cfg.Answer.TimeoutSeconds) * time.Second,
			MaxRetries:    cfg.Answer.MaxRetries,
			ContextBudget: cfg.Answer.ContextBudget,
		}, logger),
		monitor: health.New(db, time.Duration(cfg.Health.StaleAfterHours)*time.Hour, cfg.Health.LatencyWindow, logger),
		logger:  logger.With(zap.String("component", "engine")),
	}
	return eng, nil
}

// Close releases the engine's index handles.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.text.Close(); err != nil {
		firstErr = err
	}
	if err := e.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// QueryRequest is one ask or search call.
type QueryRequest struct {
	Query string
	// Mode is entity, path or impact; empty means entity.
	Mode string
	// Seed pins an impact traversal to a known atom ID.
	Seed string
	// MaxHops overrides the mode's traversal bound when positive.
	MaxHops int
	// TopK bounds the ranked results; 0 means the configured default.
	TopK int
	// Types restricts results to the given atom types; empty means all.
	Types []string
	// Answer requests a generated answer over the ranked results.
	Answer bool
}

// QueryResult is a ranked result set, optionally with a generated answer.
type QueryResult struct {
	// ID correlates this query across logs.
	ID      string                   `json:"id"`
	Mode    retrieval.Mode           `json:"mode"`
	Results []retrieval.RankedResult `json:"results"`
	Answer  *answer.Response         `json:"answer,omitempty"`
	// Degraded is set when any stage fell back to a weaker strategy.
	Degraded bool     `json:"degraded"`
	Notes    []string `json:"notes,omitempty"`
	Seed     string   `json:"seed,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Query retrieves, re-ranks and optionally answers. Index outages degrade
// the result rather than failing it; only malformed requests error.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	start := time.Now()

	mode, err := retrieval.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if req.TopK < 0 {
		return nil, fmt.Errorf("top_k must not be negative, got %d", req.TopK)
	}

	topK := req.TopK
	if topK == 0 {
		topK = e.cfg.Retrieval.DefaultTopK
	}
	if topK <= 0 {
		topK = 10
	}

	result := &QueryResult{
		ID:   uuid.NewString(),
		Mode: mode,
	}
	logger := e.logger.With(zap.String("query_id", result.ID), zap.String("mode", string(mode)))

	retrieved, err := e.router.Retrieve(ctx, retrieval.Request{
		Query:   req.Query,
		Mode:    mode,
		Seed:    req.Seed,
		MaxHops: req.MaxHops,
		Types:   req.Types,
	})
	if err != nil {
		return nil, err
	}
	result.Degraded = retrieved.Degraded
	result.Notes = retrieved.Notes
	result.Seed = retrieved.Seed

	multi := 0
	for _, c := range retrieved.Candidates {
		if len(c.Sources) > 1 {
			multi++
		}
	}
	e.monitor.ObserveCandidates(len(retrieved.Candidates), multi)

	ranked, err := e.reranker.Rank(retrieved.Candidates, topK, req.Types)
	if err != nil {
		return nil, err
	}
	result.Results = ranked

	if req.Answer {
		resp, err := e.generator.Generate(ctx, req.Query, string(mode), ranked)
		if err != nil {
			return nil, err
		}
		result.Answer = resp
		if resp.Degraded {
			result.Degraded = true
		}
	}

	result.Elapsed = time.Since(start)
	e.monitor.ObserveQuery(result.Elapsed)
	logger.Info("query served",
		zap.Int("candidates", len(retrieved.Candidates)),
		zap.Int("results", len(ranked)),
		zap.Bool("degraded", result.Degraded),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// Reindex runs one incremental index pass. progress may be nil.
func (e *Engine) Reindex(ctx context.Context, progress indexer.ProgressReporter) (*indexer.Report, error) {
	return e.indexer.Run(ctx, progress)
}

// Health returns a point-in-time health snapshot with per-backend
// connectivity. The embedding probe makes one real embed call.
func (e *Engine) Health(ctx context.Context) (*health.Report, error) {
	report, err := e.monitor.Snapshot()
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, backendProbeTimeout)
	defer cancel()
	statuses, degraded := e.monitor.CheckBackends(probeCtx, []health.BackendProbe{
		{Name: "database", Check: func(context.Context) error {
			_, err := e.db.Stats()
			return err
		}},
		{Name: "text_index", Check: func(context.Context) error {
			_, err := e.text.Count()
			return err
		}},
		{Name: "graph", Check: func(context.Context) error {
			_, err := e.graph.Count()
			return err
		}},
		{Name: "embedding", Check: func(ctx context.Context) error {
			_, err := e.embedder.Embed(ctx, "connectivity probe")
			return err
		}},
	})

	llm := health.BackendStatus{Name: "answer_model", OK: true, Detail: "configured"}
	if e.llm == nil {
		llm.Detail = "not configured; answers are extractive"
	}
	report.Backends = append(statuses, llm)
	report.Degraded = degraded
	return report, nil
}

const backendProbeTimeout = 5 * time.Second

// MRR runs known-answer probes through the full query path and reports
// mean reciprocal rank of the expected atoms.
func (e *Engine) MRR(ctx context.Context, probes []health.Probe) (float64, error) {
	return e.monitor.MRR(ctx, probes, func(ctx context.Context, query string) ([]string, error) {
		res, err := e.Query(ctx, QueryRequest{Query: query})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(res.Results))
		for _, r := range res.Results {
			ids = append(ids, r.Record.ParentID)
		}
		return ids, nil
	})
}

// Stats describes the indexed corpus.
type Stats struct {
	DB      *store.DBStats `json:"db"`
	ByType  map[string]int `json:"by_type"`
	TextDocs uint64        `json:"text_docs"`
}

// Stats reports index sizes broken down by record type.
func (e *Engine) Stats() (*Stats, error) {
	dbStats, err := e.db.Stats()
	if err != nil {
		return nil, err
	}
	byType, err := e.records.CountByType()
	if err != nil {
		return nil, err
	}
	textDocs, err := e.text.Count()
	if err != nil {
		return nil, err
	}
	return &Stats{DB: dbStats, ByType: byType, TextDocs: textDocs}, nil
}

// Get looks up a single record by ID.
func (e *Engine) Get(recordID string) (*store.Record, error) {
	return e.records.GetByID(recordID)
}
