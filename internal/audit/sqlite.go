package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const queryLogsSchema = `
CREATE TABLE IF NOT EXISTS query_logs (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id        TEXT NOT NULL,
    query_text       TEXT NOT NULL,
    answer_text      TEXT,
    confidence_score REAL,
    sources_used     TEXT,
    response_time_ms INTEGER,
    was_helpful      INTEGER,
    created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_logs_tenant ON query_logs(tenant_id);
`

// ErrNotFound is returned when a logged query does not exist for the tenant.
var ErrNotFound = errors.New("audit: query not found")

// LoggedQuery is a stored entry with its id and optional feedback.
type LoggedQuery struct {
	ID         int64     `json:"id"`
	Query      string    `json:"query_text"`
	Answer     string    `json:"answer_text"`
	Confidence float64   `json:"confidence_score"`
	Sources    string    `json:"sources_used"`
	ElapsedMS  int64     `json:"response_time_ms"`
	WasHelpful *bool     `json:"was_helpful"`
	CreatedAt  time.Time `json:"created_at"`
}

// SQLiteSink keeps a query log table.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

var _ Sink = (*SQLiteSink)(nil)

// NewSQLiteSink ensures the schema exists in db.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: db is nil")
	}
	if _, err := db.Exec(queryLogsSchema); err != nil {
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &SQLiteSink{db: db, now: time.Now}, nil
}

// Record implements Sink.
func (s *SQLiteSink) Record(ctx context.Context, e Entry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_logs(tenant_id, query_text, answer_text, confidence_score, sources_used, response_time_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		e.TenantID, e.Query, e.Answer, e.Confidence, e.SourcesJSON, e.ElapsedMS, created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Feedback marks a logged query of tenantID as helpful or not.
func (s *SQLiteSink) Feedback(ctx context.Context, tenantID string, id int64, helpful bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE query_logs SET was_helpful = ? WHERE id = ? AND tenant_id = ?`, helpful, id, tenantID)
	if err != nil {
		return fmt.Errorf("audit: feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("audit: feedback: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Recent returns the newest entries of tenantID, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, tenantID string, limit int) ([]LoggedQuery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query_text, COALESCE(answer_text, ''), COALESCE(confidence_score, 0), COALESCE(sources_used, ''),
		        COALESCE(response_time_ms, 0), was_helpful, created_at
		 FROM query_logs WHERE tenant_id = ? ORDER BY id DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []LoggedQuery
	for rows.Next() {
		var (
			q       LoggedQuery
			helpful sql.NullBool
			created string
		)
		if err := rows.Scan(&q.ID, &q.Query, &q.Answer, &q.Confidence, &q.Sources, &q.ElapsedMS, &helpful, &created); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if helpful.Valid {
			v := helpful.Bool
			q.WasHelpful = &v
		}
		if q.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("audit: created_at of %d: %w", q.ID, err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: read: %w", err)
	}
	return out, nil
}
