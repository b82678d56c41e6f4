package domain

import "errors"

var (
	// ErrNotConfigured reports missing credentials or settings for an external service.
	ErrNotConfigured = errors.New("not configured")
	// ErrUnsupportedFormat is returned by extractors for unrecognized file types.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyContent means extraction or chunking produced nothing to index.
	ErrEmptyContent = errors.New("no content to process")
	// ErrExternalService wraps failures of the embedder or generator.
	ErrExternalService = errors.New("external service failure")
	// ErrPersistence wraps index load and save failures.
	ErrPersistence = errors.New("vector index persistence failure")
	// ErrTenantRequired is returned when a tenant-scoped call has no tenant.
	ErrTenantRequired = errors.New("tenant id is required")
	// ErrDimensionMismatch is returned when an embedding does not match the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
