package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"agentiq/internal/sqlitedb"
)

func newSQLiteSink(t *testing.T) *SQLiteSink {
	t.Helper()
	db, err := sqlitedb.Open(":memory:")
	if err != nil {
		t.Fatalf("sqlitedb.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s, err := NewSQLiteSink(db)
	if err != nil {
		t.Fatalf("NewSQLiteSink failed: %v", err)
	}
	return s
}

func TestSQLiteSink_RecordAndRecent(t *testing.T) {
	s := newSQLiteSink(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, q := range []string{"first", "second"} {
		err := s.Record(ctx, Entry{
			TenantID:    "u1",
			Query:       q,
			Answer:      "answer " + q,
			Confidence:  float64(50 + i),
			SourcesJSON: `[{"source":"a.txt","chunk_index":0,"similarity":91.2}]`,
			ElapsedMS:   12,
			CreatedAt:   at.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := s.Record(ctx, Entry{TenantID: "u2", Query: "other"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := s.Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(got))
	}
	if got[0].Query != "second" || got[1].Query != "first" {
		t.Errorf("Recent order = [%s, %s], want [second, first]", got[0].Query, got[1].Query)
	}
	if got[0].Confidence != 51 || got[0].ElapsedMS != 12 || got[0].WasHelpful != nil {
		t.Errorf("unexpected entry %+v", got[0])
	}
	if !got[1].CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", got[1].CreatedAt, at)
	}
}

func TestSQLiteSink_FeedbackIsTenantScoped(t *testing.T) {
	s := newSQLiteSink(t)
	ctx := context.Background()
	if err := s.Record(ctx, Entry{TenantID: "u1", Query: "q"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	entries, _ := s.Recent(ctx, "u1", 1)
	id := entries[0].ID

	if err := s.Feedback(ctx, "u2", id, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign tenant feedback error = %v, want ErrNotFound", err)
	}
	if err := s.Feedback(ctx, "u1", id, true); err != nil {
		t.Fatalf("Feedback failed: %v", err)
	}
	entries, _ = s.Recent(ctx, "u1", 1)
	if entries[0].WasHelpful == nil || !*entries[0].WasHelpful {
		t.Fatalf("feedback not stored: %+v", entries[0])
	}
}

func TestNopAndLogSink(t *testing.T) {
	ctx := context.Background()
	if err := (Nop{}).Record(ctx, Entry{}); err != nil {
		t.Fatalf("Nop.Record failed: %v", err)
	}
	if err := NewLogSink(logr.Discard()).Record(ctx, Entry{TenantID: "u1", Query: "q"}); err != nil {
		t.Fatalf("LogSink.Record failed: %v", err)
	}
}
