package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"agentiq/internal/domain"
)

// RAGService bundles the tenant-facing use cases for front ends that work
// with local files, such as the command line and the terminal UI.
type RAGService struct {
	orchestrator *Orchestrator
	ingestor     *Ingestor
}

// NewRAGService combines an orchestrator and an ingestor.
func NewRAGService(orchestrator *Orchestrator, ingestor *Ingestor) *RAGService {
	return &RAGService{orchestrator: orchestrator, ingestor: ingestor}
}

// IngestPaths indexes every file matched by paths (glob patterns allowed).
// It stops at the first failing file; files indexed before it stay indexed.
func (s *RAGService) IngestPaths(ctx context.Context, tenantID string, paths []string) ([]IngestResult, error) {
	var files []string
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("service: no documents given: %w", domain.ErrEmptyContent)
	}
	results := make([]IngestResult, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return results, fmt.Errorf("service: read %s: %w", f, err)
		}
		res, err := s.ingestor.Ingest(ctx, tenantID, f, data)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Ask answers query with the default options and the given topK.
func (s *RAGService) Ask(ctx context.Context, tenantID, query string, topK int) (domain.RetrievalResult, error) {
	opts := s.orchestrator.Defaults()
	if topK > 0 {
		opts.TopK = topK
	}
	return s.orchestrator.Query(ctx, tenantID, query, opts)
}

// Preview returns matching fragments without an answer.
func (s *RAGService) Preview(ctx context.Context, tenantID, query string, topK int) ([]domain.ContextPreview, error) {
	return s.orchestrator.Preview(ctx, tenantID, query, topK)
}

// Sources lists the tenant's documents.
func (s *RAGService) Sources(tenantID string) (SourceList, error) {
	return s.ingestor.Sources(tenantID)
}

// DeleteSource removes one of the tenant's documents.
func (s *RAGService) DeleteSource(ctx context.Context, tenantID, source string) (int, error) {
	return s.ingestor.DeleteSource(ctx, tenantID, source)
}

// Ingest indexes one uploaded file.
func (s *RAGService) Ingest(ctx context.Context, tenantID, filename string, data []byte) (IngestResult, error) {
	return s.ingestor.Ingest(ctx, tenantID, filename, data)
}
