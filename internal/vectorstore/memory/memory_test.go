package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/go-logr/logr"

	"agentiq/internal/domain"
	"agentiq/internal/vectorstore"
)

type fakePersister struct {
	mu      sync.Mutex
	snap    vectorstore.Snapshot
	saves   int
	loadErr error
	saveErr error
}

func (p *fakePersister) Load(context.Context) (vectorstore.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, p.loadErr
}

func (p *fakePersister) Save(_ context.Context, snap vectorstore.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.snap = snap
	p.saves++
	return nil
}

func rec(id, tenant, source string, vec ...float32) domain.IndexRecord {
	return domain.IndexRecord{
		ID:        id,
		Text:      "text " + id,
		Embedding: vec,
		Metadata:  domain.Metadata{Source: source, TenantID: tenant, TotalChunks: 1},
	}
}

func TestIndex_AddAndSearch(t *testing.T) {
	idx := New(nil, logr.Discard())
	ctx := context.Background()
	if err := idx.Add(ctx, []domain.IndexRecord{
		rec("1", "u1", "a.txt", 1, 0),
		rec("2", "u1", "b.txt", 0, 1),
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	hits, err := idx.Search([]float32{0.9, 0.1}, 1, "u1")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Record.ID != "1" {
		t.Fatalf("expected best match 1, got %s", hits[0].Record.ID)
	}
	if hits[0].Rank != 1 {
		t.Fatalf("rank = %d, want 1", hits[0].Rank)
	}
	if d := hits[0].Distance(); math.Abs(d-(1-hits[0].Similarity)) > 1e-12 {
		t.Fatalf("distance = %v, similarity = %v", d, hits[0].Similarity)
	}
}

func TestIndex_SearchEmpty(t *testing.T) {
	idx := New(nil, logr.Discard())
	hits, err := idx.Search([]float32{1, 2, 3}, 5, "u1")
	if err != nil {
		t.Fatalf("Search on empty index failed: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected 0 hits, got %d", len(hits))
	}
}

func TestIndex_TopKCorrectness(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	idx := New(nil, logr.Discard())
	const dim = 8
	var records []domain.IndexRecord
	for i := 0; i < 60; i++ {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(r.NormFloat64())
		}
		tenant := "u1"
		if i%3 == 0 {
			tenant = "u2"
		}
		records = append(records, rec(fmt.Sprint(i), tenant, "s", v...))
	}
	if err := idx.Add(context.Background(), records); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	q := make([]float32, dim)
	for j := range q {
		q[j] = float32(r.NormFloat64())
	}

	var want []float64
	for _, rc := range records {
		if rc.Metadata.TenantID == "u1" {
			want = append(want, math.Max(0, Cosine(q, rc.Embedding)))
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(want)))

	for _, k := range []int{1, 5, 10, 40, 100} {
		hits, err := idx.Search(q, k, "u1")
		if err != nil {
			t.Fatalf("Search(k=%d) failed: %v", k, err)
		}
		expect := k
		if expect > len(want) {
			expect = len(want)
		}
		if len(hits) != expect {
			t.Fatalf("k=%d: got %d hits, want %d", k, len(hits), expect)
		}
		for i, h := range hits {
			if math.Abs(h.Similarity-want[i]) > 1e-9 {
				t.Fatalf("k=%d: hit %d similarity %v, want %v", k, i, h.Similarity, want[i])
			}
			if h.Similarity < 0 || h.Similarity > 1 {
				t.Fatalf("similarity %v out of [0,1]", h.Similarity)
			}
			if i > 0 && hits[i-1].Similarity < h.Similarity {
				t.Fatalf("hits not in descending order at %d", i)
			}
		}
	}
}

func TestIndex_SimilarityBound(t *testing.T) {
	idx := New(nil, logr.Discard())
	if err := idx.Add(context.Background(), []domain.IndexRecord{
		rec("zero", "u1", "s", 0, 0, 0),
		rec("same", "u1", "s", 2, 2, 2),
		rec("opposite", "u1", "s", -1, -1, -1),
		rec("huge", "u1", "s", 1e30, 1e30, 1e30),
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	for _, q := range [][]float32{{1, 1, 1}, {0, 0, 0}, {-3, 0, 5}} {
		hits, err := idx.Search(q, 10, "u1")
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		for _, h := range hits {
			if math.IsNaN(h.Similarity) || h.Similarity < 0 || h.Similarity > 1 {
				t.Fatalf("query %v: record %s similarity %v out of bounds", q, h.Record.ID, h.Similarity)
			}
		}
	}
}

func TestIndex_TiesKeepInsertionOrder(t *testing.T) {
	idx := New(nil, logr.Discard())
	if err := idx.Add(context.Background(), []domain.IndexRecord{
		rec("first", "u1", "s", 0.6, 0.8),
		rec("second", "u1", "s", 0.6, 0.8),
		rec("third", "u1", "s", 0.6, 0.8),
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	hits, err := idx.Search([]float32{1, 0}, 3, "u1")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if hits[i].Record.ID != want {
			t.Fatalf("hit %d = %s, want %s", i, hits[i].Record.ID, want)
		}
	}
}

func TestIndex_TenantIsolation(t *testing.T) {
	idx := New(nil, logr.Discard())
	ctx := context.Background()
	if err := idx.Add(ctx, []domain.IndexRecord{rec("a", "A", "secret.txt", 1, 0)}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := idx.Add(ctx, []domain.IndexRecord{rec("b", "B", "other.txt", 0, 1)}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	hits, err := idx.Search([]float32{1, 0}, 10, "B")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, h := range hits {
		if h.Record.Metadata.TenantID != "B" {
			t.Fatalf("tenant B search returned record of tenant %s", h.Record.Metadata.TenantID)
		}
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit for tenant B, got %d", len(hits))
	}
	all, err := idx.Search([]float32{1, 0}, 10, "")
	if err != nil {
		t.Fatalf("global Search failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("global view should see 2 records, got %d", len(all))
	}
	if idx.Count("A") != 1 || idx.Count("B") != 1 || idx.Count("") != 2 {
		t.Fatalf("unexpected counts A=%d B=%d all=%d", idx.Count("A"), idx.Count("B"), idx.Count(""))
	}
	if got := idx.Sources("A"); len(got) != 1 || got[0] != "secret.txt" {
		t.Fatalf("Sources(A) = %v", got)
	}
}

func TestIndex_DeleteBySourceScoped(t *testing.T) {
	p := &fakePersister{}
	idx := New(p, logr.Discard())
	ctx := context.Background()
	if err := idx.Add(ctx, []domain.IndexRecord{
		rec("1", "u1", "doc.txt", 1, 0),
		rec("2", "u1", "doc.txt", 1, 1),
		rec("3", "u2", "doc.txt", 0, 1),
		rec("4", "u1", "keep.txt", 1, 1),
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	removed, err := idx.DeleteBySource(ctx, "doc.txt", "u1")
	if err != nil {
		t.Fatalf("DeleteBySource failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if idx.Count("u2") != 1 {
		t.Fatalf("record of u2 with the same source must survive")
	}
	if got := idx.Sources("u1"); len(got) != 1 || got[0] != "keep.txt" {
		t.Fatalf("Sources(u1) after delete = %v", got)
	}
	if p.snap.Len() != 2 {
		t.Fatalf("persisted snapshot has %d records, want 2", p.snap.Len())
	}

	removed, err = idx.DeleteBySourceAllTenants(ctx, "doc.txt")
	if err != nil {
		t.Fatalf("DeleteBySourceAllTenants failed: %v", err)
	}
	if removed != 1 || idx.Len() != 1 {
		t.Fatalf("admin delete removed %d, remaining %d", removed, idx.Len())
	}
}

func TestIndex_DeleteBySourceRequiresTenant(t *testing.T) {
	idx := New(nil, logr.Discard())
	ctx := context.Background()
	if err := idx.Add(ctx, []domain.IndexRecord{
		rec("1", "u1", "doc.txt", 1, 0),
		rec("2", "u2", "doc.txt", 0, 1),
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	var store vectorstore.TenantStore = idx
	removed, err := store.DeleteBySource(ctx, "doc.txt", "")
	if !errors.Is(err, domain.ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}
	if removed != 0 || idx.Len() != 2 {
		t.Fatalf("empty tenant must not delete anything: removed=%d len=%d", removed, idx.Len())
	}
}

func TestIndex_EmbeddingsAreNotShared(t *testing.T) {
	idx := New(nil, logr.Discard())
	ctx := context.Background()
	vec := []float32{1, 0}
	if err := idx.Add(ctx, []domain.IndexRecord{rec("1", "u1", "a.txt", vec...)}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	vec[0], vec[1] = 0, 1

	hits, err := idx.Search([]float32{1, 0}, 1, "u1")
	if err != nil || len(hits) != 1 {
		t.Fatalf("Search = %v, %v", hits, err)
	}
	if hits[0].Similarity < 0.999 {
		t.Fatalf("caller mutation after Add leaked into the index: similarity %v", hits[0].Similarity)
	}
	hits[0].Record.Embedding[0] = -1

	again, err := idx.Search([]float32{1, 0}, 1, "u1")
	if err != nil || len(again) != 1 {
		t.Fatalf("Search = %v, %v", again, err)
	}
	if again[0].Similarity < 0.999 || again[0].Record.Embedding[0] != 1 {
		t.Fatalf("mutating a hit changed the index: %+v", again[0])
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	idx := New(nil, logr.Discard())
	ctx := context.Background()
	if err := idx.Add(ctx, []domain.IndexRecord{rec("1", "u1", "s", 1, 0)}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	err := idx.Add(ctx, []domain.IndexRecord{rec("2", "u1", "s", 1, 0, 0)})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := idx.Search([]float32{1}, 1, "u1"); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for query, got %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("rejected batch must not be applied")
	}
}

func TestIndex_DuplicateIDsTolerated(t *testing.T) {
	idx := New(nil, logr.Discard())
	ctx := context.Background()
	r := rec("dup", "u1", "s", 1, 0)
	if err := idx.Add(ctx, []domain.IndexRecord{r, r}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	hits, _ := idx.Search([]float32{1, 0}, 5, "u1")
	if len(hits) != 2 {
		t.Fatalf("expected both duplicates to be returned, got %d", len(hits))
	}
}

func TestIndex_SaveFailureLeavesStateUnchanged(t *testing.T) {
	p := &fakePersister{}
	idx := New(p, logr.Discard())
	ctx := context.Background()
	if err := idx.Add(ctx, []domain.IndexRecord{rec("1", "u1", "s", 1, 0)}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	p.saveErr = errors.New("disk full")
	err := idx.Add(ctx, []domain.IndexRecord{rec("2", "u1", "s", 0, 1)})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("failed save must not change the index, len=%d", idx.Len())
	}
	if _, err := idx.DeleteBySource(ctx, "s", "u1"); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence on delete, got %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("failed delete must not change the index, len=%d", idx.Len())
	}
}

func TestOpen_LoadsSnapshot(t *testing.T) {
	p := &fakePersister{snap: vectorstore.SnapshotOf([]domain.IndexRecord{
		rec("1", "u1", "a", 1, 0, 0),
		rec("2", "u2", "b", 0, 1, 0),
	})}
	idx, err := Open(context.Background(), p, logr.Discard())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if idx.Len() != 2 || idx.Dimension() != 3 || idx.Degraded() {
		t.Fatalf("unexpected state len=%d dim=%d degraded=%v", idx.Len(), idx.Dimension(), idx.Degraded())
	}
}

func TestOpen_CorruptSnapshotDegrades(t *testing.T) {
	cases := map[string]*fakePersister{
		"load error": {loadErr: errors.New("unexpected EOF")},
		"length mismatch": {snap: vectorstore.Snapshot{
			IDs:       []string{"1", "2"},
			Documents: []string{"x"},
		}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			idx, err := Open(context.Background(), p, logr.Discard())
			if !errors.Is(err, domain.ErrPersistence) {
				t.Fatalf("expected ErrPersistence, got %v", err)
			}
			if idx == nil || !idx.Degraded() || idx.Len() != 0 {
				t.Fatalf("expected an empty degraded index")
			}
		})
	}
}

func TestIndex_ConcurrentAddAndSearch(t *testing.T) {
	p := &fakePersister{}
	idx := New(p, logr.Discard())
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				id := fmt.Sprintf("%d-%d", w, i)
				if err := idx.Add(ctx, []domain.IndexRecord{rec(id, "u1", "s", 1, float32(i))}); err != nil {
					t.Errorf("Add failed: %v", err)
					return
				}
				if _, err := idx.Search([]float32{1, 1}, 3, "u1"); err != nil {
					t.Errorf("Search failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	if idx.Len() != 200 {
		t.Fatalf("len = %d, want 200", idx.Len())
	}
	if err := p.snap.Validate(); err != nil || p.snap.Len() != 200 {
		t.Fatalf("persisted snapshot inconsistent: len=%d err=%v", p.snap.Len(), err)
	}
}
