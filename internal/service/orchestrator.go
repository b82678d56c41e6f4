package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-logr/logr"

	"agentiq/internal/audit"
	"agentiq/internal/domain"
	"agentiq/internal/generation"
	"agentiq/internal/vectorstore"
)

const (
	DefaultTopK         = 5
	DefaultMinRelevance = 0.3
	DefaultPreviewTopK  = 3

	previewChars = 300
)

// ErrEmptyQuery is returned for blank questions.
var ErrEmptyQuery = errors.New("query cannot be empty")

// QueryOptions tunes a single retrieval. A non-positive TopK and a negative
// MinRelevance fall back to the orchestrator defaults.
type QueryOptions struct {
	TopK         int
	MinRelevance float64
}

// Orchestrator runs the embed, retrieve, filter, generate and package
// pipeline for one tenant-scoped question.
type Orchestrator struct {
	embedder  domain.Embedder
	store     vectorstore.TenantStore
	generator domain.Generator
	sink      domain.AuditSink
	defaults  QueryOptions
	logger    logr.Logger
	now       func() time.Time
}

// NewOrchestrator wires the pipeline. A nil sink disables auditing.
func NewOrchestrator(embedder domain.Embedder, store vectorstore.TenantStore, generator domain.Generator,
	sink domain.AuditSink, defaults QueryOptions, logger logr.Logger) *Orchestrator {
	if defaults.TopK <= 0 {
		defaults.TopK = DefaultTopK
	}
	if defaults.MinRelevance < 0 {
		defaults.MinRelevance = DefaultMinRelevance
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Orchestrator{
		embedder:  embedder,
		store:     store,
		generator: generator,
		sink:      sink,
		defaults:  defaults,
		logger:    logger.WithName("orchestrator"),
		now:       time.Now,
	}
}

// Defaults returns the options used when a caller leaves them unset.
func (o *Orchestrator) Defaults() QueryOptions { return o.defaults }

// Query answers query from the documents of tenantID.
//
// Embedder and generator failures do not fail the call: the result carries
// the error in its answer, a zero confidence and Degraded set. Missing
// configuration (domain.ErrNotConfigured) and index errors are returned.
func (o *Orchestrator) Query(ctx context.Context, tenantID, query string, opts QueryOptions) (domain.RetrievalResult, error) {
	start := o.now()
	if tenantID == "" {
		return domain.RetrievalResult{}, domain.ErrTenantRequired
	}
	if strings.TrimSpace(query) == "" {
		return domain.RetrievalResult{}, ErrEmptyQuery
	}
	opts = o.resolve(opts)
	result := domain.RetrievalResult{Query: query, Sources: []domain.SourceRef{}}

	vec, err := o.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if errors.Is(err, domain.ErrNotConfigured) {
			return domain.RetrievalResult{}, fmt.Errorf("service: embed query: %w", err)
		}
		o.logger.Error(err, "query embedding failed", "tenant", tenantID)
		result.Answer = generation.ErrorAnswer(err)
		result.Degraded = true
		return o.finish(ctx, tenantID, start, result), nil
	}

	hits, err := o.store.Search(vec, opts.TopK, tenantID)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("service: search: %w", err)
	}

	var chunks []domain.ContextChunk
	for _, h := range hits {
		if h.Similarity < opts.MinRelevance {
			continue
		}
		chunks = append(chunks, domain.ContextChunk{Text: h.Record.Text, Metadata: h.Record.Metadata, Similarity: h.Similarity})
		ref := domain.SourceRef{
			Source:     h.Record.Metadata.Source,
			ChunkIndex: h.Record.Metadata.ChunkIndex,
			Similarity: percent(h.Similarity),
		}
		if !containsRef(result.Sources, ref) {
			result.Sources = append(result.Sources, ref)
		}
	}
	result.ChunksRetrieved = len(chunks)

	if len(chunks) == 0 {
		result.Sources = []domain.SourceRef{}
		answer, err := o.generator.GenerateFallback(ctx, query)
		switch {
		case errors.Is(err, domain.ErrNotConfigured):
			return domain.RetrievalResult{}, fmt.Errorf("service: fallback answer: %w", err)
		case err != nil:
			o.logger.Error(err, "fallback generation failed", "tenant", tenantID)
			answer = generation.FallbackErrorAnswer(err)
			result.Degraded = true
		}
		result.Answer = answer
		return o.finish(ctx, tenantID, start, result), nil
	}

	answer, confidence, err := o.generator.Generate(ctx, query, chunks)
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return domain.RetrievalResult{}, fmt.Errorf("service: generate answer: %w", err)
	case err != nil:
		o.logger.Error(err, "answer generation failed", "tenant", tenantID, "chunks", len(chunks))
		result.Answer = generation.ErrorAnswer(err)
		result.Degraded = true
	default:
		result.Answer = answer
		result.Confidence = math.Max(0, math.Min(100, confidence))
	}
	return o.finish(ctx, tenantID, start, result), nil
}

// Preview returns the best matching fragments without generating an answer.
func (o *Orchestrator) Preview(ctx context.Context, tenantID, query string, topK int) ([]domain.ContextPreview, error) {
	if tenantID == "" {
		return nil, domain.ErrTenantRequired
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultPreviewTopK
	}
	vec, err := o.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("service: embed query: %w", err)
	}
	hits, err := o.store.Search(vec, topK, tenantID)
	if err != nil {
		return nil, fmt.Errorf("service: search: %w", err)
	}
	out := make([]domain.ContextPreview, len(hits))
	for i, h := range hits {
		out[i] = domain.ContextPreview{
			Text:       truncate(h.Record.Text, previewChars),
			Source:     h.Record.Metadata.Source,
			Similarity: percent(h.Similarity),
		}
	}
	return out, nil
}

func (o *Orchestrator) resolve(opts QueryOptions) QueryOptions {
	if opts.TopK <= 0 {
		opts.TopK = o.defaults.TopK
	}
	if opts.MinRelevance < 0 {
		opts.MinRelevance = o.defaults.MinRelevance
	}
	return opts
}

// finish stamps the elapsed time and hands the result to the audit sink.
func (o *Orchestrator) finish(ctx context.Context, tenantID string, start time.Time, result domain.RetrievalResult) domain.RetrievalResult {
	result.ElapsedMS = o.now().Sub(start).Milliseconds()

	sources, err := json.Marshal(result.Sources)
	if err != nil {
		sources = []byte("[]")
	}
	entry := domain.AuditEntry{
		TenantID:    tenantID,
		Query:       result.Query,
		Answer:      result.Answer,
		Confidence:  result.Confidence,
		SourcesJSON: string(sources),
		ElapsedMS:   result.ElapsedMS,
		CreatedAt:   o.now(),
	}
	if err := o.sink.Record(ctx, entry); err != nil {
		o.logger.Error(err, "audit record failed", "tenant", tenantID)
	}
	o.logger.V(1).Info("query answered", "tenant", tenantID, "chunks", result.ChunksRetrieved,
		"confidence", result.Confidence, "degraded", result.Degraded, "elapsed_ms", result.ElapsedMS)
	return result
}

// percent converts a [0,1] similarity to a percentage with one decimal.
func percent(similarity float64) float64 {
	return math.Round(similarity*1000) / 10
}

func containsRef(refs []domain.SourceRef, ref domain.SourceRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

// truncate cuts s to n runes and appends "..." when it was longer.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
