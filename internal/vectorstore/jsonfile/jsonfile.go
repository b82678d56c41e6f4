// Package jsonfile persists index snapshots as a single JSON document holding
// four parallel arrays. Every save rewrites the whole file through a temporary
// file in the same directory followed by a rename, so readers never see a
// partially written snapshot.
package jsonfile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"agentiq/internal/domain"
	"agentiq/internal/vectorstore"
)

// Persister stores snapshots at Path.
type Persister struct {
	Path string
}

var _ vectorstore.Persister = (*Persister)(nil)

func New(path string) *Persister { return &Persister{Path: path} }

// Load reads the snapshot. A missing file yields an empty snapshot.
func (p *Persister) Load(_ context.Context) (vectorstore.Snapshot, error) {
	var snap vectorstore.Snapshot
	f, err := os.Open(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snap, nil
		}
		return snap, fmt.Errorf("jsonfile: open %s: %w", p.Path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&snap); err != nil {
		return vectorstore.Snapshot{}, fmt.Errorf("jsonfile: decode %s: %w", p.Path, err)
	}
	return snap, nil
}

// Save writes the snapshot atomically.
func (p *Persister) Save(_ context.Context, snap vectorstore.Snapshot) error {
	dir := filepath.Dir(p.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonfile: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonfile: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	w := bufio.NewWriter(tmp)
	if err := json.NewEncoder(w).Encode(nonNil(snap)); err != nil {
		cleanup()
		return fmt.Errorf("jsonfile: encode: %w", err)
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("jsonfile: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("jsonfile: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonfile: close: %w", err)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonfile: rename: %w", err)
	}
	return nil
}

// nonNil keeps empty sequences encoded as [] rather than null.
func nonNil(s vectorstore.Snapshot) vectorstore.Snapshot {
	if s.IDs == nil {
		s.IDs = []string{}
	}
	if s.Documents == nil {
		s.Documents = []string{}
	}
	if s.Embeddings == nil {
		s.Embeddings = [][]float32{}
	}
	if s.Metadatas == nil {
		s.Metadatas = []domain.Metadata{}
	}
	return s
}
