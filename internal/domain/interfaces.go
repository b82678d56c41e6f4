package domain

import (
	"context"
	"time"
)

// Document is a single uploaded file after text extraction.
type Document struct {
	Source   string
	TenantID string
	Content  string
}

// Fragment is a contiguous slice of a normalized document, the unit of retrieval.
// CharStart and CharEnd are rune offsets into the normalized text.
type Fragment struct {
	Text        string
	Source      string
	ChunkIndex  int
	TotalChunks int
	CharStart   int
	CharEnd     int
}

// Metadata is stored alongside every indexed fragment.
type Metadata struct {
	Source      string `json:"source"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	CharStart   int    `json:"char_start"`
	CharEnd     int    `json:"char_end"`
	TenantID    string `json:"tenant_id"`
}

// IndexRecord is one entry of the vector index.
type IndexRecord struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  Metadata
}

// SearchHit is a ranked match produced by a single search call.
type SearchHit struct {
	Record     IndexRecord
	Similarity float64 // cosine similarity folded into [0,1]
	Rank       int
}

// Distance reports the hit as a distance for callers that expect one.
func (h SearchHit) Distance() float64 { return 1 - h.Similarity }

// ContextChunk is a retained hit handed to the answer generator.
type ContextChunk struct {
	Text       string
	Metadata   Metadata
	Similarity float64
}

// SourceRef cites a fragment used to answer a query. Similarity is a percentage.
type SourceRef struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

// RetrievalResult is the packaged outcome of one query.
type RetrievalResult struct {
	Query           string      `json:"query"`
	Answer          string      `json:"answer"`
	Confidence      float64     `json:"confidence"`
	Sources         []SourceRef `json:"sources"`
	ChunksRetrieved int         `json:"chunks_retrieved"`
	ElapsedMS       int64       `json:"response_time_ms"`
	Degraded        bool        `json:"degraded,omitempty"`
}

// ContextPreview is a truncated view of a matching fragment.
type ContextPreview struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// AuditEntry is written once per answered query.
type AuditEntry struct {
	TenantID    string
	Query       string
	Answer      string
	Confidence  float64
	SourcesJSON string
	ElapsedMS   int64
	CreatedAt   time.Time
}

// Chunker splits documents into fragments suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Fragment, error)
}

// Embedder converts text into fixed-length vectors.
// Implementations must fail with ErrNotConfigured rather than return zero vectors.
type Embedder interface {
	Name() string
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces answers conditioned on retrieved context.
type Generator interface {
	Generate(ctx context.Context, query string, chunks []ContextChunk) (answer string, confidence float64, err error)
	GenerateFallback(ctx context.Context, query string) (string, error)
}

// Extractor turns uploaded bytes into plain text.
type Extractor interface {
	Extract(data []byte, declaredType string) (string, error)
}

// AuditSink receives one entry per query. It is write-only.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}
