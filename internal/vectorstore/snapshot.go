package vectorstore

import (
	"fmt"

	"agentiq/internal/domain"
)

// Snapshot is the persisted layout of the index: four parallel sequences of
// equal length.
type Snapshot struct {
	IDs        []string          `json:"ids"`
	Documents  []string          `json:"documents"`
	Embeddings [][]float32       `json:"embeddings"`
	Metadatas  []domain.Metadata `json:"metadatas"`
}

// SnapshotOf flattens records into parallel sequences.
func SnapshotOf(records []domain.IndexRecord) Snapshot {
	snap := Snapshot{
		IDs:        make([]string, len(records)),
		Documents:  make([]string, len(records)),
		Embeddings: make([][]float32, len(records)),
		Metadatas:  make([]domain.Metadata, len(records)),
	}
	for i, r := range records {
		snap.IDs[i] = r.ID
		snap.Documents[i] = r.Text
		snap.Embeddings[i] = r.Embedding
		snap.Metadatas[i] = r.Metadata
	}
	return snap
}

// Len returns the number of records in the snapshot.
func (s Snapshot) Len() int { return len(s.IDs) }

// Validate checks that the parallel sequences line up and that all embeddings
// share one dimension.
func (s Snapshot) Validate() error {
	n := len(s.IDs)
	if len(s.Documents) != n || len(s.Embeddings) != n || len(s.Metadatas) != n {
		return fmt.Errorf("vectorstore: snapshot length mismatch: ids=%d documents=%d embeddings=%d metadatas=%d",
			n, len(s.Documents), len(s.Embeddings), len(s.Metadatas))
	}
	for i := 1; i < n; i++ {
		if len(s.Embeddings[i]) != len(s.Embeddings[0]) {
			return fmt.Errorf("vectorstore: snapshot record %d has dimension %d, want %d: %w",
				i, len(s.Embeddings[i]), len(s.Embeddings[0]), domain.ErrDimensionMismatch)
		}
	}
	return nil
}

// Records rebuilds index records from a validated snapshot.
func (s Snapshot) Records() []domain.IndexRecord {
	out := make([]domain.IndexRecord, len(s.IDs))
	for i := range s.IDs {
		out[i] = domain.IndexRecord{
			ID:        s.IDs[i],
			Text:      s.Documents[i],
			Embedding: s.Embeddings[i],
			Metadata:  s.Metadatas[i],
		}
	}
	return out
}
