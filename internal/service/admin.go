package service

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"agentiq/internal/vectorstore"
)

// Admin exposes operations that cross tenant boundaries. It is only wired
// into the command line, never into request handlers.
type Admin struct {
	store  vectorstore.AdminStore
	logger logr.Logger
}

// NewAdmin returns the administrative capability over store.
func NewAdmin(store vectorstore.AdminStore, logger logr.Logger) *Admin {
	return &Admin{store: store, logger: logger.WithName("admin")}
}

// PurgeSource deletes source for every tenant.
func (a *Admin) PurgeSource(ctx context.Context, source string) (int, error) {
	removed, err := a.store.DeleteBySourceAllTenants(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("service: purge %s: %w", source, err)
	}
	a.logger.Info("purged source across tenants", "source", source, "chunks", removed)
	return removed, nil
}

// Stats reports the total number of indexed fragments and sources.
func (a *Admin) Stats() (records int, sources []string) {
	return a.store.Len(), a.store.Sources("")
}
