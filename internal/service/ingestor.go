// Package service hosts the use cases on top of the vector index: answering
// questions (Orchestrator), indexing documents (Ingestor) and the
// cross-tenant maintenance operations (Admin).
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"agentiq/internal/domain"
	"agentiq/internal/extract"
	"agentiq/internal/vectorstore"
)

// IngestResult describes one indexed document.
type IngestResult struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks_created"`
}

// Ingestor extracts, chunks, embeds and indexes documents for a tenant.
type Ingestor struct {
	extractor domain.Extractor
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     vectorstore.TenantStore
	logger    logr.Logger
	newID     func() string
}

// NewIngestor wires the ingestion pipeline.
func NewIngestor(extractor domain.Extractor, chunker domain.Chunker, embedder domain.Embedder,
	store vectorstore.TenantStore, logger logr.Logger) *Ingestor {
	return &Ingestor{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		logger:    logger.WithName("ingestor"),
		newID:     uuid.NewString,
	}
}

// Ingest indexes an uploaded file. The base of filename becomes the source name.
func (i *Ingestor) Ingest(ctx context.Context, tenantID, filename string, data []byte) (IngestResult, error) {
	if tenantID == "" {
		return IngestResult{}, domain.ErrTenantRequired
	}
	source := filepath.Base(strings.TrimSpace(filename))
	if !extract.Supported(source) {
		return IngestResult{}, fmt.Errorf("service: %q (allowed: %s): %w",
			source, strings.Join(extract.SupportedExtensions, ", "), domain.ErrUnsupportedFormat)
	}
	text, err := i.extractor.Extract(data, source)
	if err != nil {
		return IngestResult{}, fmt.Errorf("service: extract %s: %w", source, err)
	}
	return i.IngestText(ctx, domain.Document{Source: source, TenantID: tenantID, Content: text})
}

// IngestText indexes already extracted text.
func (i *Ingestor) IngestText(ctx context.Context, doc domain.Document) (IngestResult, error) {
	if doc.TenantID == "" {
		return IngestResult{}, domain.ErrTenantRequired
	}
	if strings.TrimSpace(doc.Content) == "" {
		return IngestResult{}, fmt.Errorf("service: %s: could not extract text: %w", doc.Source, domain.ErrEmptyContent)
	}
	fragments, err := i.chunker.Chunk(doc)
	if err != nil {
		return IngestResult{}, fmt.Errorf("service: chunk %s: %w", doc.Source, err)
	}
	if len(fragments) == 0 {
		return IngestResult{}, fmt.Errorf("service: %s: %w", doc.Source, domain.ErrEmptyContent)
	}

	texts := make([]string, len(fragments))
	for n, f := range fragments {
		texts[n] = f.Text
	}
	vectors, err := i.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return IngestResult{}, fmt.Errorf("service: embed %s: %w", doc.Source, err)
	}
	if len(vectors) != len(fragments) {
		return IngestResult{}, fmt.Errorf("service: embed %s: got %d vectors for %d fragments: %w",
			doc.Source, len(vectors), len(fragments), domain.ErrExternalService)
	}

	records := make([]domain.IndexRecord, len(fragments))
	for n, f := range fragments {
		records[n] = domain.IndexRecord{
			ID:        i.newID(),
			Text:      f.Text,
			Embedding: vectors[n],
			Metadata: domain.Metadata{
				Source:      f.Source,
				ChunkIndex:  f.ChunkIndex,
				TotalChunks: f.TotalChunks,
				CharStart:   f.CharStart,
				CharEnd:     f.CharEnd,
				TenantID:    doc.TenantID,
			},
		}
	}
	if err := i.store.Add(ctx, records); err != nil {
		return IngestResult{}, fmt.Errorf("service: index %s: %w", doc.Source, err)
	}
	i.logger.Info("indexed document", "tenant", doc.TenantID, "source", doc.Source,
		"chunks", len(records), "embedder", i.embedder.Name())
	return IngestResult{Source: doc.Source, Chunks: len(records)}, nil
}

// SourceList is the per-tenant document inventory.
type SourceList struct {
	Sources     []string `json:"sources"`
	Count       int      `json:"count"`
	TotalChunks int      `json:"total_chunks"`
}

// Sources lists the documents indexed for tenantID.
func (i *Ingestor) Sources(tenantID string) (SourceList, error) {
	if tenantID == "" {
		return SourceList{}, domain.ErrTenantRequired
	}
	sources := i.store.Sources(tenantID)
	return SourceList{Sources: sources, Count: len(sources), TotalChunks: i.store.Count(tenantID)}, nil
}

// ErrSourceNotFound is returned when a tenant deletes a source it does not own.
var ErrSourceNotFound = errors.New("document not found")

// DeleteSource removes every fragment of source owned by tenantID.
func (i *Ingestor) DeleteSource(ctx context.Context, tenantID, source string) (int, error) {
	if tenantID == "" {
		return 0, domain.ErrTenantRequired
	}
	removed, err := i.store.DeleteBySource(ctx, source, tenantID)
	if err != nil {
		return 0, fmt.Errorf("service: delete %s: %w", source, err)
	}
	if removed == 0 {
		return 0, ErrSourceNotFound
	}
	i.logger.Info("deleted document", "tenant", tenantID, "source", source, "chunks", removed)
	return removed, nil
}
