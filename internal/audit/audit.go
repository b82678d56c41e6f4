// Package audit records answered queries. Sinks are write-only from the
// retrieval path; a failing sink never fails a query.
package audit

import (
	"context"

	"github.com/go-logr/logr"

	"agentiq/internal/domain"
)

// Sink is re-exported for callers that only deal with auditing.
type Sink = domain.AuditSink

// Entry is re-exported alongside Sink.
type Entry = domain.AuditEntry

// Nop discards every entry.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, Entry) error { return nil }

// LogSink writes entries to a logger.
type LogSink struct {
	logger logr.Logger
}

// NewLogSink returns a sink logging at info level under the "audit" name.
func NewLogSink(logger logr.Logger) *LogSink {
	return &LogSink{logger: logger.WithName("audit")}
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, e Entry) error {
	s.logger.Info("query answered",
		"tenant", e.TenantID,
		"query", e.Query,
		"confidence", e.Confidence,
		"sources", e.SourcesJSON,
		"response_time_ms", e.ElapsedMS,
	)
	return nil
}

var (
	_ Sink = Nop{}
	_ Sink = (*LogSink)(nil)
)
