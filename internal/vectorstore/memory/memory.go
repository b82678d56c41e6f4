package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"agentiq/internal/domain"
	"agentiq/internal/vectorstore"
)

// normEpsilon is added to vector norms so all-zero vectors score 0 instead of NaN.
const normEpsilon = 1e-10

// Index is an exact, brute-force cosine similarity index partitioned by
// tenant through record metadata. Mutations build the next record set,
// persist it and only then swap it in, all under the write lock; readers
// always see a complete set.
//
// Duplicate ids are accepted on Add; a later search may return both copies.
type Index struct {
	mu        sync.RWMutex
	records   []domain.IndexRecord
	dimension int
	degraded  bool

	persister vectorstore.Persister
	logger    logr.Logger
}

var _ vectorstore.AdminStore = (*Index)(nil)

// New returns an empty index. A nil persister keeps the index in memory only.
func New(persister vectorstore.Persister, logger logr.Logger) *Index {
	return &Index{persister: persister, logger: logger}
}

// Open creates the index and loads the persisted snapshot. When the snapshot
// cannot be read or is inconsistent, Open still returns a usable empty index
// marked degraded, together with an error wrapping domain.ErrPersistence.
func Open(ctx context.Context, persister vectorstore.Persister, logger logr.Logger) (*Index, error) {
	idx := New(persister, logger)
	if persister == nil {
		return idx, nil
	}
	snap, err := persister.Load(ctx)
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		idx.degraded = true
		logger.Error(err, "vector index load failed, continuing with an empty index")
		return idx, fmt.Errorf("memory: load index: %w: %w", domain.ErrPersistence, err)
	}
	idx.records = snap.Records()
	if len(idx.records) > 0 {
		idx.dimension = len(idx.records[0].Embedding)
	}
	logger.Info("vector index loaded", "records", len(idx.records), "dimension", idx.dimension)
	return idx, nil
}

// Degraded reports whether the persisted state could not be loaded.
func (x *Index) Degraded() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.degraded
}

// Dimension returns the embedding dimension, or 0 while the index is empty.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimension
}

// Len returns the number of records across all tenants.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

// Add appends records. All embeddings must share the index dimension; the
// first record added to an empty index fixes it. Embeddings are copied, so the
// caller keeps ownership of its slices.
func (x *Index) Add(ctx context.Context, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	dim := x.dimension
	for _, r := range records {
		if len(r.Embedding) == 0 {
			return fmt.Errorf("memory: record %q has no embedding: %w", r.ID, domain.ErrDimensionMismatch)
		}
		if dim == 0 {
			dim = len(r.Embedding)
		}
		if len(r.Embedding) != dim {
			return fmt.Errorf("memory: record %q has dimension %d, want %d: %w",
				r.ID, len(r.Embedding), dim, domain.ErrDimensionMismatch)
		}
	}

	next := make([]domain.IndexRecord, 0, len(x.records)+len(records))
	next = append(next, x.records...)
	for _, r := range records {
		r.Embedding = slices.Clone(r.Embedding)
		next = append(next, r)
	}
	if err := x.persist(ctx, next); err != nil {
		return err
	}
	x.records = next
	x.dimension = dim
	return nil
}

// Search returns at most k hits ordered by descending cosine similarity, ties
// kept in insertion order. Only records of tenantID participate; an empty
// tenantID searches every tenant. Hit embeddings are copies.
func (x *Index) Search(query []float32, k int, tenantID string) ([]domain.SearchHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || len(x.records) == 0 {
		return nil, nil
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("memory: query dimension %d != index dimension %d: %w",
			len(query), x.dimension, domain.ErrDimensionMismatch)
	}

	type scored struct {
		idx   int
		score float64
	}
	qnorm := norm(query)
	candidates := make([]scored, 0, len(x.records))
	for i, r := range x.records {
		if tenantID != "" && r.Metadata.TenantID != tenantID {
			continue
		}
		candidates = append(candidates, scored{idx: i, score: cosine(query, qnorm, r.Embedding)})
	}
	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].score > candidates[b].score })

	if k > len(candidates) {
		k = len(candidates)
	}
	hits := make([]domain.SearchHit, k)
	for n := 0; n < k; n++ {
		c := candidates[n]
		r := x.records[c.idx]
		r.Embedding = slices.Clone(r.Embedding)
		hits[n] = domain.SearchHit{
			Record:     r,
			Similarity: math.Max(0, c.score),
			Rank:       n + 1,
		}
	}
	return hits, nil
}

// Count returns the number of records owned by tenantID, or all records when
// tenantID is empty.
func (x *Index) Count(tenantID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if tenantID == "" {
		return len(x.records)
	}
	n := 0
	for _, r := range x.records {
		if r.Metadata.TenantID == tenantID {
			n++
		}
	}
	return n
}

// Sources returns the sorted distinct sources of tenantID (all tenants when empty).
func (x *Index) Sources(tenantID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range x.records {
		if tenantID != "" && r.Metadata.TenantID != tenantID {
			continue
		}
		seen[r.Metadata.Source] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// DeleteBySource removes every record of tenantID whose source matches. An
// empty tenantID is rejected; use DeleteBySourceAllTenants for that.
func (x *Index) DeleteBySource(ctx context.Context, source, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("memory: delete %q: %w", source, domain.ErrTenantRequired)
	}
	return x.deleteWhere(ctx, func(r domain.IndexRecord) bool {
		return r.Metadata.Source == source && r.Metadata.TenantID == tenantID
	})
}

// DeleteBySourceAllTenants removes source from every tenant. It is only
// reachable through vectorstore.AdminStore.
func (x *Index) DeleteBySourceAllTenants(ctx context.Context, source string) (int, error) {
	return x.deleteWhere(ctx, func(r domain.IndexRecord) bool { return r.Metadata.Source == source })
}

func (x *Index) deleteWhere(ctx context.Context, match func(domain.IndexRecord) bool) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	next := make([]domain.IndexRecord, 0, len(x.records))
	for _, r := range x.records {
		if !match(r) {
			next = append(next, r)
		}
	}
	removed := len(x.records) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := x.persist(ctx, next); err != nil {
		return 0, err
	}
	x.records = next
	if len(next) == 0 {
		x.dimension = 0
	}
	return removed, nil
}

// persist must be called with the write lock held.
func (x *Index) persist(ctx context.Context, next []domain.IndexRecord) error {
	if x.persister == nil {
		return nil
	}
	if err := x.persister.Save(ctx, vectorstore.SnapshotOf(next)); err != nil {
		x.logger.Error(err, "vector index save failed", "records", len(next))
		return fmt.Errorf("memory: save index: %w: %w", domain.ErrPersistence, err)
	}
	x.logger.V(1).Info("vector index saved", "records", len(next))
	return nil
}

// Cosine returns the cosine similarity of a and b clamped to [-1, 1].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosine(a, norm(a), b)
}

func cosine(q []float32, qnorm float64, v []float32) float64 {
	s := dot(q, v) / ((qnorm + normEpsilon) * (norm(v) + normEpsilon))
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(-1, math.Min(1, s))
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 { return math.Sqrt(dot(v, v)) }
