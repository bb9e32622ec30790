// Package retrieval implements the hybrid retrieval and ranking engine:
// it classifies a query, fans out concurrently to the vector index and the
// entity graph, then merges, scores, deduplicates and caches the results
// into a single ranked list.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/recall/ai"
	"github.com/hrygo/recall/metrics"
	"github.com/hrygo/recall/queryengine"
	"github.com/hrygo/recall/ranker"
	"github.com/hrygo/recall/store"
)

// SearchOptions tune a single search call. The zero value asks for the
// defaults: configured limit, graph included, cache consulted.
type SearchOptions struct {
	ConversationID string

	// Limit caps the final result count. Zero means the configured
	// default; negative values are rejected.
	Limit int

	// DisableGraph skips the entity graph branch.
	DisableGraph bool

	// ForceRefresh bypasses the cache lookup (the fresh result is still
	// stored).
	ForceRefresh bool
}

// ResultMetadata describes how a result set was produced.
type ResultMetadata struct {
	RequestID       string
	VectorCount     int
	GraphCount      int
	TotalCandidates int
	FinalCount      int
	ExecutionTimeMs int64
	CacheHit        bool
	WeightsUsed     ranker.Weights
}

// Result is the engine's output: the parsed query, the ranked results and
// the production metadata.
type Result struct {
	Query    *queryengine.StructuredQuery
	Results  []*ranker.RankedResult
	Metadata ResultMetadata
}

// Engine composes the parser, strategy table, both store adapters and the
// result cache into a single Search operation. Construct it with NewEngine
// and share it by reference; there is no package-level instance.
type Engine struct {
	embedder ai.EmbeddingService
	vectors  store.VectorStore
	graph    store.GraphStore
	cache    *ResultCache
	parser   *queryengine.Parser
	exporter *metrics.Exporter
	logger   *slog.Logger
	nowFn    func() time.Time

	// config is guarded for runtime updates; reads take the snapshot once
	// per search.
	configMu sync.RWMutex
	config   *Config
}

// Option customizes an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches a Prometheus exporter.
func WithMetrics(exporter *metrics.Exporter) Option {
	return func(e *Engine) { e.exporter = exporter }
}

// WithNow overrides the engine clock (and the parser's temporal clock).
func WithNow(fn func() time.Time) Option {
	return func(e *Engine) {
		e.nowFn = fn
		e.parser = queryengine.NewParser(queryengine.WithNow(fn))
	}
}

// NewEngine creates the retrieval engine with injected collaborators.
func NewEngine(embedder ai.EmbeddingService, vectors store.VectorStore, graph store.GraphStore, opts ...Option) (*Engine, error) {
	e := &Engine{
		embedder: embedder,
		vectors:  vectors,
		graph:    graph,
		parser:   queryengine.NewParser(),
		logger:   slog.Default(),
		nowFn:    time.Now,
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e.cache = NewResultCache(e.config.CacheCapacity, e.config.CacheTTL)
	return e, nil
}

// Search runs one hybrid retrieval for the user's query. Adapter failures
// degrade to empty result sets; the only errors returned are programming
// errors caught before any I/O.
func (e *Engine) Search(ctx context.Context, userID, queryText string, opts *SearchOptions) (*Result, error) {
	start := time.Now()
	if opts == nil {
		opts = &SearchOptions{}
	}

	cfg := e.snapshotConfig()

	if opts.Limit < 0 {
		return nil, fmt.Errorf("invalid limit: %d", opts.Limit)
	}
	if userID == "" {
		return nil, fmt.Errorf("user id required")
	}
	if len(queryText) > cfg.MaxQueryLength {
		return nil, fmt.Errorf("query too long: %d characters (max %d)", len(queryText), cfg.MaxQueryLength)
	}

	limit := opts.Limit
	if limit == 0 {
		limit = cfg.DefaultLimit
	}

	requestID := uuid.NewString()
	logger := e.logger.With("request_id", requestID, "user_id", userID)

	if !opts.ForceRefresh {
		if cached, ok := e.cache.Get(queryText, userID); ok {
			logger.InfoContext(ctx, "Result cache hit",
				"query_type", cached.Query.Type,
				"result_count", len(cached.Results),
			)
			hit := *cached
			hit.Metadata.CacheHit = true
			hit.Metadata.ExecutionTimeMs = time.Since(start).Milliseconds()
			e.recordSearch(string(cached.Query.Type), time.Since(start), true)
			return &hit, nil
		}
	}

	query := e.parser.Parse(queryText)
	strategy := queryengine.Suggest(query)

	weights := cfg.Weights
	weights.Vector = float64(strategy.VectorWeight)
	weights.Graph = float64(strategy.GraphWeight)
	if strategy.UseRecencyBoost {
		weights.Recency *= 1.5
	}

	logger.InfoContext(ctx, "Running hybrid search",
		"query_type", query.Type,
		"intent", query.Intent,
		"confidence", query.Confidence,
		"entities", len(query.Entities),
		"keywords", len(query.Keywords),
	)

	vectorHits, graphHits := e.fanOut(ctx, logger, cfg, userID, queryText, query, opts.DisableGraph)

	now := e.nowFn()
	rankerQuery := &ranker.Query{Entities: query.Entities, Keywords: query.Keywords}
	vectorRanked := ranker.RankVector(vectorHits, rankerQuery, weights, now)
	graphRanked := ranker.RankGraph(graphHits, rankerQuery, weights, now)

	merged := ranker.MergeAndRank(vectorRanked, graphRanked)
	filtered := ranker.FilterByThreshold(merged, cfg.MinCombinedScore)
	final := ranker.TopN(filtered, limit)

	result := &Result{
		Query:   query,
		Results: final,
		Metadata: ResultMetadata{
			RequestID:       requestID,
			VectorCount:     len(vectorHits),
			GraphCount:      len(graphHits),
			TotalCandidates: len(merged),
			FinalCount:      len(final),
			ExecutionTimeMs: time.Since(start).Milliseconds(),
			WeightsUsed:     weights,
		},
	}

	e.cache.Set(queryText, userID, result)
	e.recordSearch(string(query.Type), time.Since(start), false)
	if e.exporter != nil {
		e.exporter.RecordSourceResults(len(vectorHits), len(graphHits))
	}

	logger.InfoContext(ctx, "Hybrid search completed",
		"query_type", query.Type,
		"vector_count", len(vectorHits),
		"graph_count", len(graphHits),
		"final_count", len(final),
		"duration_ms", result.Metadata.ExecutionTimeMs,
	)

	return result, nil
}

// fanOut runs the vector and graph lookups concurrently. Either branch
// failing is logged and degraded to an empty slice; retrieval stays
// best-effort across partial outages.
func (e *Engine) fanOut(
	ctx context.Context,
	logger *slog.Logger,
	cfg *Config,
	userID, queryText string,
	query *queryengine.StructuredQuery,
	disableGraph bool,
) ([]*store.MemoryHit, []*store.GraphHit) {
	type vectorOut struct {
		hits []*store.MemoryHit
		err  error
	}
	type graphOut struct {
		hits []*store.GraphHit
		err  error
	}

	vectorCh := make(chan vectorOut, 1)
	graphCh := make(chan graphOut, 1)

	go func() {
		hits, err := e.searchVector(ctx, cfg, userID, queryText, query)
		select {
		case <-ctx.Done():
		case vectorCh <- vectorOut{hits: hits, err: err}:
		}
	}()

	if disableGraph {
		graphCh <- graphOut{}
	} else {
		go func() {
			hits, err := e.searchGraph(ctx, cfg, userID, query)
			select {
			case <-ctx.Done():
			case graphCh <- graphOut{hits: hits, err: err}:
			}
		}()
	}

	var vectorHits []*store.MemoryHit
	var graphHits []*store.GraphHit

	select {
	case <-ctx.Done():
	case out := <-vectorCh:
		if out.err != nil {
			logger.WarnContext(ctx, "Vector branch failed, continuing without it", "error", out.err)
			e.recordAdapterError("vector")
		} else {
			vectorHits = out.hits
		}
	}

	select {
	case <-ctx.Done():
	case out := <-graphCh:
		if out.err != nil {
			logger.WarnContext(ctx, "Graph branch failed, continuing without it", "error", out.err)
			e.recordAdapterError("graph")
		} else {
			graphHits = out.hits
		}
	}

	return vectorHits, graphHits
}

// searchVector embeds the query and runs the similarity search. An
// embedding failure aborts only this branch.
func (e *Engine) searchVector(ctx context.Context, cfg *Config, userID, queryText string, query *queryengine.StructuredQuery) ([]*store.MemoryHit, error) {
	vector, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	opts := &store.VectorSearchOptions{
		UserID: userID,
		Vector: vector,
		Limit:  cfg.VectorLimit,
	}
	if query.Window != nil {
		opts.CreatedAfter = query.Window.From.Unix()
	}

	hits, err := e.vectors.SearchSimilar(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return hits, nil
}

// searchGraph looks up the first few keywords and entities in the graph
// store, bounded in parallel, and deduplicates hits by (label, name).
// Individual term failures are logged and skipped.
func (e *Engine) searchGraph(ctx context.Context, cfg *Config, userID string, query *queryengine.StructuredQuery) ([]*store.GraphHit, error) {
	terms := graphTerms(query, cfg.MaxGraphKeywords, cfg.MaxGraphEntities)
	if len(terms) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	collected := make([][]*store.GraphHit, len(terms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, term := range terms {
		i, term := i, term
		g.Go(func() error {
			hits, err := e.graph.SearchEntities(gctx, userID, term, cfg.GraphTermLimit)
			if err != nil {
				e.logger.WarnContext(gctx, "Graph term lookup failed", "term", term, "error", err)
				e.recordAdapterError("graph")
				return nil
			}
			mu.Lock()
			collected[i] = hits
			mu.Unlock()
			return nil
		})
	}
	// Term errors are swallowed above; Wait only propagates ctx cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var deduped []*store.GraphHit
	for _, hits := range collected {
		for _, hit := range hits {
			key := hit.Label + ":" + strings.ToLower(hit.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			deduped = append(deduped, hit)
		}
	}
	return deduped, nil
}

// graphTerms picks the query terms worth a graph lookup: the first few
// keywords plus the first few entities, deduplicated case-insensitively.
func graphTerms(query *queryengine.StructuredQuery, maxKeywords, maxEntities int) []string {
	seen := make(map[string]bool)
	var terms []string

	add := func(term string) {
		lowered := strings.ToLower(term)
		if term == "" || seen[lowered] {
			return
		}
		seen[lowered] = true
		terms = append(terms, term)
	}

	for i, kw := range query.Keywords {
		if i >= maxKeywords {
			break
		}
		add(kw)
	}
	for i, entity := range query.Entities {
		if i >= maxEntities {
			break
		}
		add(entity)
	}
	return terms
}

// ClearCache drops every cached result.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// CacheStats reports result cache occupancy and hit accounting.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// UpdateConfig merges the partial update into the running configuration.
// In-flight searches keep the snapshot they started with.
func (e *Engine) UpdateConfig(update *ConfigUpdate) error {
	if update == nil {
		return nil
	}

	e.configMu.Lock()
	defer e.configMu.Unlock()

	merged := update.merge(e.config)
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("invalid config update: %w", err)
	}
	e.config = merged
	return nil
}

func (e *Engine) snapshotConfig() *Config {
	e.configMu.RLock()
	defer e.configMu.RUnlock()
	return e.config
}

func (e *Engine) recordSearch(queryType string, duration time.Duration, cacheHit bool) {
	if e.exporter != nil {
		e.exporter.RecordSearch(queryType, duration, cacheHit)
	}
}

func (e *Engine) recordAdapterError(adapter string) {
	if e.exporter != nil {
		e.exporter.RecordAdapterError(adapter)
	}
}
