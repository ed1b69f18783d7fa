package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ragd/internal/chunker"
	"ragd/internal/config"
	"ragd/internal/dataset"
	"ragd/internal/domain"
	"ragd/internal/embedding/openai"
	"ragd/internal/embedding/tfidf"
	"ragd/internal/engine"
	"ragd/internal/ingest"
	llmopenai "ragd/internal/llm/openai"
	"ragd/internal/logger"
	"ragd/internal/models"
	"ragd/internal/progress"
	"ragd/internal/query"
	"ragd/internal/service"
	"ragd/internal/summarizer"
	"ragd/internal/vectorstore"
	"ragd/internal/vectorstore/memory"
	"ragd/internal/vectorstore/qdrant"
	"ragd/internal/workerpool"
)

// app is the assembled process: one service plus the pieces transports need.
type app struct {
	cfg     *config.AppConfig
	log     *zap.Logger
	svc     *service.Service
	uploads *ingest.Store
	pools   []*workerpool.Pool
}

func loadConfig(path string) (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if path == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	return logger.New(logger.Options{
		FilePath:   cfg.File,
		Level:      cfg.Level,
		Production: cfg.Production,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	})
}

func newApp(cfg *config.AppConfig, log *zap.Logger) (*app, error) {
	newEmbedding, err := embeddingFactory(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	newStore, err := storeFactory(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	sum, err := newSummarizer(cfg.Summarizer)
	if err != nil {
		return nil, err
	}
	ch, err := newChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}

	indexCfg := workerpool.BackgroundConfig()
	indexPool, err := workerpool.New("index", indexCfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, pools: []*workerpool.Pool{indexPool}}

	var batchPool *workerpool.Pool
	if cfg.Query.BatchWorkers > 1 {
		batchPool, err = workerpool.New("batch", workerpool.Config{Capacity: cfg.Query.BatchWorkers}, log)
		if err != nil {
			a.release()
			return nil, err
		}
		a.pools = append(a.pools, batchPool)
	}

	tracker := progress.NewTracker(log)
	cache := models.NewCache(tracker, newEmbedding, languageFactory(cfg.LLM), log)
	newEngine := engine.Factory(engine.Options{
		NewStore:         newStore,
		Summarizer:       sum,
		SummarySentences: cfg.Summarizer.MaxSentences,
		Log:              log,
	})
	registry := dataset.NewRegistry(cfg.EngineDefaults(), cfg.Storage.UploadDir, cache, newEngine, log)

	a.svc = service.New(service.Deps{
		Tracker:   tracker,
		Models:    cache,
		Registry:  registry,
		NewEngine: newEngine,
		IndexPool: indexPool,
		BatchPool: batchPool,
		Query: query.Options{
			LLMModel:          cfg.LLM.Model,
			GenerationTimeout: cfg.Query.GenerationTimeout(),
		},
		Log: log,
	})
	a.uploads = ingest.NewStore(cfg.Storage.UploadDir, cfg.Storage.MaxFileSize, ch, log)
	return a, nil
}

// close stops a running build and releases the pools.
func (a *app) close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.svc.Close(ctx); err != nil {
		a.log.Warn("index build did not stop in time", zap.Error(err))
	}
	a.release()
}

func (a *app) release() {
	for _, p := range a.pools {
		if err := p.Release(time.Second); err != nil {
			a.log.Warn("worker pool release", zap.Error(err))
		}
	}
}

func embeddingFactory(cfg config.EmbedderConfig) (models.EmbeddingFactory, error) {
	switch cfg.Type {
	case "tfidf", "":
		return func(string) (domain.Embedder, error) { return tfidf.NewEmbedder(), nil }, nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		oc := *cfg.OpenAI
		return func(model string) (domain.Embedder, error) {
			return openai.NewClient(openai.Config{
				BaseURL:       oc.BaseURL,
				APIKeyEnv:     oc.APIKeyEnv,
				Model:         model,
				Timeout:       time.Duration(oc.TimeoutSecs) * time.Second,
				AllowEmptyKey: oc.AllowEmptyKey,
				MaxRetries:    oc.MaxRetries,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

// languageFactory returns nil when answer generation is disabled.
func languageFactory(cfg config.LLMConfig) models.LanguageFactory {
	if !cfg.Enabled() {
		return nil
	}
	return func(name string) (domain.LanguageModel, error) {
		return llmopenai.NewClient(llmopenai.Config{
			BaseURL:       cfg.BaseURL,
			APIKeyEnv:     cfg.APIKeyEnv,
			Model:         name,
			AllowEmptyKey: cfg.AllowEmptyKey,
			MaxRetries:    cfg.MaxRetries,
		})
	}
}

func storeFactory(cfg config.VectorStoreConfig) (func(dataset, generation string) vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return func(string, string) vectorstore.Storage { return memory.NewStorage() }, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		q := *cfg.Qdrant
		return func(name, generation string) vectorstore.Storage {
			return qdrant.NewStorage(qdrant.Config{
				URL:        q.URL,
				APIKey:     q.APIKey,
				Collection: qdrant.CollectionName(q.Collection, name, generation),
				Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func newSummarizer(cfg config.SummarizerConfig) (domain.Summarizer, error) {
	switch cfg.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Type)
	}
}

func newChunker(cfg config.ChunkerConfig) (*chunker.SentenceChunker, error) {
	switch cfg.Type {
	case "sentence", "":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Type)
	}
}

// bootstrap loads config, builds the logger and assembles the app.
func bootstrap(cfgPath string) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := newApp(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}
