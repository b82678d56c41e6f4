package vectorstore

import (
	"context"

	"agentiq/internal/domain"
)

// TenantStore is the tenant-scoped view of the vector index used by request
// handlers. DeleteBySource fails with domain.ErrTenantRequired for an empty
// tenant id; read methods treat it as every tenant and are guarded at the
// service layer.
type TenantStore interface {
	Add(ctx context.Context, records []domain.IndexRecord) error
	Search(query []float32, k int, tenantID string) ([]domain.SearchHit, error)
	Count(tenantID string) int
	Sources(tenantID string) []string
	DeleteBySource(ctx context.Context, source, tenantID string) (int, error)
}

// AdminStore adds operations that cross tenant boundaries. It must never be
// handed to a tenant-scoped request handler.
type AdminStore interface {
	TenantStore
	DeleteBySourceAllTenants(ctx context.Context, source string) (int, error)
	Len() int
}

// Persister loads and saves full index snapshots.
type Persister interface {
	// Load returns an empty snapshot and no error when nothing was saved yet.
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}
