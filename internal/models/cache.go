// Package models memoizes the embedding model and the language model client.
// Each is constructed at most once per process; the first successful
// construction wins regardless of the path or name passed later.
package models

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ragd/internal/domain"
	"ragd/internal/logger"
	"ragd/internal/progress"
)

// EmbeddingFactory constructs an embedding model from a model path.
type EmbeddingFactory func(path string) (domain.Embedder, error)

// LanguageFactory constructs a language model client from a model name.
type LanguageFactory func(name string) (domain.LanguageModel, error)

// Cache holds at most one embedding model and one language model.
type Cache struct {
	tracker      *progress.Tracker
	newEmbedding EmbeddingFactory
	newLanguage  LanguageFactory
	log          *zap.Logger

	embeddingMu sync.Mutex
	embedding   domain.Embedder

	languageMu sync.Mutex
	language   domain.LanguageModel
}

// NewCache returns an empty cache. newLanguage may be nil when answer
// generation is disabled.
func NewCache(tracker *progress.Tracker, newEmbedding EmbeddingFactory, newLanguage LanguageFactory, log *zap.Logger) *Cache {
	return &Cache{
		tracker:      tracker,
		newEmbedding: newEmbedding,
		newLanguage:  newLanguage,
		log:          logger.Module(log, "models"),
	}
}

// EmbeddingModel returns the cached embedding model, constructing it from path
// on first use.
func (c *Cache) EmbeddingModel(path string) (domain.Embedder, error) {
	c.embeddingMu.Lock()
	defer c.embeddingMu.Unlock()
	if c.embedding != nil {
		return c.embedding, nil
	}
	if c.newEmbedding == nil {
		return nil, fmt.Errorf("%w: no embedding runtime configured", domain.ErrModelLoad)
	}

	c.tracker.Update(0.10, "loading_embedding", "loading embedding model...")
	m, err := c.newEmbedding(path)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding model %q: %w", domain.ErrModelLoad, path, err)
	}
	c.log.Info("embedding model loaded", zap.String("path", path), zap.String("embedder", m.Name()))
	c.embedding = m
	return m, nil
}

// LanguageModel returns the cached language model, constructing it from name
// on first use.
func (c *Cache) LanguageModel(name string) (domain.LanguageModel, error) {
	c.languageMu.Lock()
	defer c.languageMu.Unlock()
	if c.language != nil {
		return c.language, nil
	}
	if c.newLanguage == nil {
		return nil, fmt.Errorf("%w: answer generation is disabled", domain.ErrModelLoad)
	}

	c.tracker.Update(0.12, "loading_llm", "loading language model...")
	m, err := c.newLanguage(name)
	if err != nil {
		return nil, fmt.Errorf("%w: language model %q: %w", domain.ErrModelLoad, name, err)
	}
	c.log.Info("language model loaded", zap.String("model", name))
	c.language = m
	return m, nil
}

// LanguageEnabled reports whether a language model runtime is configured.
func (c *Cache) LanguageEnabled() bool { return c.newLanguage != nil }

// Loaded reports which models have been constructed.
func (c *Cache) Loaded() (embedding, language bool) {
	c.embeddingMu.Lock()
	embedding = c.embedding != nil
	c.embeddingMu.Unlock()
	c.languageMu.Lock()
	language = c.language != nil
	c.languageMu.Unlock()
	return embedding, language
}
