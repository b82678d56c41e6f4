// Package sqlite persists index snapshots in a SQLite table, one row per
// record. A save replaces the whole table inside a single transaction, so a
// failed save leaves the previous snapshot intact.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"agentiq/internal/domain"
	"agentiq/internal/vectorstore"
)

const recordsSchema = `
CREATE TABLE IF NOT EXISTS index_records (
    position  INTEGER PRIMARY KEY,
    id        TEXT NOT NULL,
    document  TEXT NOT NULL,
    embedding BLOB NOT NULL,
    metadata  TEXT NOT NULL
);
`

// Persister stores snapshots in db.
type Persister struct {
	db *sql.DB
}

var _ vectorstore.Persister = (*Persister)(nil)

// New ensures the schema exists and returns a persister bound to db.
func New(db *sql.DB) (*Persister, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite: db is nil")
	}
	if _, err := db.Exec(recordsSchema); err != nil {
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Persister{db: db}, nil
}

// Load reads every record in insertion order.
func (p *Persister) Load(ctx context.Context) (vectorstore.Snapshot, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, document, embedding, metadata FROM index_records ORDER BY position`)
	if err != nil {
		return vectorstore.Snapshot{}, fmt.Errorf("sqlite: query records: %w", err)
	}
	defer rows.Close()

	var records []domain.IndexRecord
	for rows.Next() {
		var (
			r    domain.IndexRecord
			blob []byte
			meta string
		)
		if err := rows.Scan(&r.ID, &r.Text, &blob, &meta); err != nil {
			return vectorstore.Snapshot{}, fmt.Errorf("sqlite: scan record: %w", err)
		}
		if r.Embedding, err = DecodeEmbedding(blob); err != nil {
			return vectorstore.Snapshot{}, fmt.Errorf("sqlite: record %q: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return vectorstore.Snapshot{}, fmt.Errorf("sqlite: record %q metadata: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return vectorstore.Snapshot{}, fmt.Errorf("sqlite: read records: %w", err)
	}
	return vectorstore.SnapshotOf(records), nil
}

// Save replaces the stored records with snap.
func (p *Persister) Save(ctx context.Context, snap vectorstore.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_records`); err != nil {
		return fmt.Errorf("sqlite: clear records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO index_records(position, id, document, embedding, metadata) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range snap.IDs {
		meta, err := json.Marshal(snap.Metadatas[i])
		if err != nil {
			return fmt.Errorf("sqlite: encode metadata of %q: %w", snap.IDs[i], err)
		}
		if _, err := stmt.ExecContext(ctx, i, snap.IDs[i], snap.Documents[i],
			EncodeEmbedding(snap.Embeddings[i]), string(meta)); err != nil {
			return fmt.Errorf("sqlite: insert %q: %w", snap.IDs[i], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}
