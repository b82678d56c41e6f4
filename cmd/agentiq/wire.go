package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"agentiq/internal/audit"
	"agentiq/internal/chunker"
	"agentiq/internal/config"
	"agentiq/internal/domain"
	"agentiq/internal/embedding/hashing"
	embopenai "agentiq/internal/embedding/openai"
	"agentiq/internal/extract"
	"agentiq/internal/generation/extractive"
	genopenai "agentiq/internal/generation/openai"
	"agentiq/internal/httpapi"
	"agentiq/internal/service"
	"agentiq/internal/sqlitedb"
	"agentiq/internal/vectorstore"
	"agentiq/internal/vectorstore/jsonfile"
	"agentiq/internal/vectorstore/memory"
	vsqlite "agentiq/internal/vectorstore/sqlite"
)

// app is the fully wired process.
type app struct {
	cfg     *config.AppConfig
	logger  logr.Logger
	index   *memory.Index
	svc     *service.RAGService
	admin   *service.Admin
	history httpapi.History
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// build assembles components as selected by cfg.
func build(ctx context.Context, cfg *config.AppConfig, logger logr.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}
	ch, err := newChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}

	persister, err := a.newPersister(cfg.VectorStore)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	idx, err := memory.Open(ctx, persister, logger.WithName("index"))
	if err != nil {
		if cfg.VectorStore.StrictLoad {
			_ = a.Close()
			return nil, err
		}
		logger.Info("continuing with an empty, degraded index", "reason", err.Error())
	}
	a.index = idx

	sink, err := a.newSink(cfg.Audit)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	orch := service.NewOrchestrator(emb, idx, gen, sink, service.QueryOptions{
		TopK:         cfg.Retrieval.TopK,
		MinRelevance: cfg.Retrieval.Threshold(),
	}, logger)
	ing := service.NewIngestor(extract.New(), ch, emb, idx, logger)
	a.svc = service.NewRAGService(orch, ing)
	a.admin = service.NewAdmin(idx, logger)
	return a, nil
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing: %w", domain.ErrNotConfigured)
		}
		return embopenai.NewClient(embopenai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    cfg.OpenAI.Timeout(),
			BatchSize:  cfg.OpenAI.BatchSize,
			MaxRetries: cfg.OpenAI.MaxRetries,
		}), nil
	}
	return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
}

func newGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "extractive", "":
		return extractive.New(cfg.MaxSentences), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai generator config missing: %w", domain.ErrNotConfigured)
		}
		return genopenai.NewClient(genopenai.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Timeout:     cfg.OpenAI.Timeout(),
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
		}), nil
	}
	return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
}

func newChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "window", "":
		return chunker.NewWindowChunker(cfg.ChunkSize, cfg.ChunkOverlap), nil
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	}
	return nil, fmt.Errorf("unknown chunker: %s", cfg.Type)
}

func (a *app) newPersister(cfg config.VectorStoreConfig) (vectorstore.Persister, error) {
	switch cfg.Type {
	case "json", "":
		return jsonfile.New(cfg.Path), nil
	case "sqlite":
		db, err := sqlitedb.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return vsqlite.New(db)
	case "memory":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
}

func (a *app) newSink(cfg config.AuditConfig) (domain.AuditSink, error) {
	switch cfg.Type {
	case "none", "":
		return audit.Nop{}, nil
	case "log":
		return audit.NewLogSink(a.logger), nil
	case "sqlite":
		db, err := sqlitedb.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		sink, err := audit.NewSQLiteSink(db)
		if err != nil {
			return nil, err
		}
		a.history = sink
		return sink, nil
	}
	return nil, fmt.Errorf("unknown audit sink: %s", cfg.Type)
}
