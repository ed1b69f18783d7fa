// Package engine implements the passage index behind a dataset: embeddings in
// a vector store, a lexical fallback, and on-disk artifacts for reloading.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragd/internal/domain"
	"ragd/internal/logger"
	"ragd/internal/vectorstore"
	"ragd/internal/vectorstore/memory"
)

const defaultTopK = 5

// Options carries the collaborators shared by every engine.
type Options struct {
	// NewStore returns the vector store of one build of a dataset. Each
	// successful Index starts a new generation; the empty generation names
	// indexes written before generations were recorded. Nil means in-memory.
	NewStore         func(dataset, generation string) vectorstore.Storage
	Summarizer       domain.Summarizer
	SummarySentences int
	Log              *zap.Logger
}

// Engine indexes passages of one dataset and retrieves them by similarity.
// A build prepares its own embedder and store and installs them only once
// the artifacts are written, so a failed build leaves the engine unchanged.
type Engine struct {
	cfg  domain.EngineConfig
	base domain.Embedder
	opts Options
	log  *zap.Logger

	mu         sync.RWMutex
	embedder   domain.Embedder
	store      vectorstore.Storage
	generation string
	chunks     []domain.Chunk
	manifest   *Manifest
}

// Factory adapts New to domain.EngineFactory.
func Factory(opts Options) domain.EngineFactory {
	return func(ctx context.Context, cfg domain.EngineConfig, embedder domain.Embedder) (domain.Engine, error) {
		return New(ctx, cfg, embedder, opts)
	}
}

// New returns an engine bound to cfg. Existing artifacts in the dataset
// directory are loaded so the engine can answer queries right away. A
// stateful embedder is used as a template and never prepared in place.
func New(ctx context.Context, cfg domain.EngineConfig, embedder domain.Embedder, opts Options) (*Engine, error) {
	if embedder == nil {
		return nil, errors.New("engine requires an embedder")
	}
	if cfg.DatasetName == "" {
		return nil, fmt.Errorf("%w: empty dataset name", domain.ErrInvalidInput)
	}
	e := &Engine{
		cfg:  cfg,
		base: embedder,
		opts: opts,
		log:  logger.Module(opts.Log, "engine").With(zap.String("dataset", cfg.DatasetName)),
	}
	if hasArtifacts(cfg.Dir()) {
		if err := e.restore(ctx); err != nil {
			return nil, fmt.Errorf("restore %s: %w", cfg.DatasetName, err)
		}
	}
	return e, nil
}

// Index replaces the index with passages and writes the artifacts.
func (e *Engine) Index(ctx context.Context, passages []string) error {
	if len(passages) == 0 {
		return fmt.Errorf("%w: no passages", domain.ErrInvalidInput)
	}
	emb := e.freshEmbedder()
	if err := emb.Prepare(passages); err != nil {
		return fmt.Errorf("prepare embedder: %w", err)
	}
	vectors, err := embedAll(ctx, emb, passages, e.cfg.MaxWorkers)
	if err != nil {
		return err
	}

	gen := newGeneration()
	store := e.newStore(gen)
	chunks := e.chunksFor(passages)
	manifest, err := e.build(ctx, store, emb, passages, chunks, vectors, gen)
	if err != nil {
		if cerr := store.Clear(context.WithoutCancel(ctx)); cerr != nil {
			e.log.Warn("discard failed build", zap.String("generation", gen), zap.Error(cerr))
		}
		return err
	}

	// The previous generation stays in place until the engine serving it
	// is retired.
	e.mu.Lock()
	e.embedder, e.store, e.generation = emb, store, gen
	e.chunks = chunks
	e.manifest = manifest
	e.mu.Unlock()
	e.log.Info("index built", zap.Int("passages", len(passages)), zap.String("generation", gen))
	return nil
}

func (e *Engine) build(ctx context.Context, store vectorstore.Storage, emb domain.Embedder, passages []string, chunks []domain.Chunk, vectors [][]float64, gen string) (*Manifest, error) {
	if err := fill(ctx, store, chunks, vectors, e.cfg.BatchSize); err != nil {
		return nil, err
	}
	summary := ""
	if e.opts.Summarizer != nil {
		var err error
		summary, err = e.opts.Summarizer.Summarize(strings.Join(passages, "\n"), e.opts.SummarySentences)
		if err != nil {
			e.log.Warn("summary failed", zap.Error(err))
		}
	}
	manifest := newManifest(e.cfg, emb, len(passages), summary, gen)
	if err := writeArtifacts(e.cfg.Dir(), passages, vectors, emb, manifest); err != nil {
		return nil, fmt.Errorf("write artifacts: %w", err)
	}
	return manifest, nil
}

// Retire drops the vector store when the dataset on disk no longer refers to
// this engine's generation, after a rebuild or a delete. An engine whose
// generation is still current keeps its store for the next load.
func (e *Engine) Retire(ctx context.Context) error {
	e.mu.RLock()
	store, gen := e.store, e.generation
	e.mu.RUnlock()
	if store == nil {
		return nil
	}
	if m, err := readManifest(e.cfg.Dir()); err == nil && m.Generation == gen {
		return nil
	}
	e.log.Info("retiring generation", zap.String("generation", gen))
	return store.Clear(ctx)
}

// Retrieve ranks passages for every query.
func (e *Engine) Retrieve(ctx context.Context, queries []domain.RetrievalQuery) ([]domain.RetrievalResult, error) {
	e.mu.RLock()
	chunks, emb, store := e.chunks, e.embedder, e.store
	e.mu.RUnlock()
	if len(chunks) == 0 {
		return nil, domain.ErrIndexNotBuilt
	}
	topK := e.cfg.RetrievalTopK
	if topK <= 0 {
		topK = defaultTopK
	}

	out := make([]domain.RetrievalResult, 0, len(queries))
	for _, q := range queries {
		hits, err := search(ctx, emb, store, chunks, q.Question, topK)
		if err != nil {
			return nil, err
		}
		res := domain.RetrievalResult{
			SortedPassages: make([]string, len(hits)),
			SortedScores:   make([]float64, len(hits)),
		}
		for i, h := range hits {
			res.SortedPassages[i] = h.Chunk.Text
			res.SortedScores[i] = h.Score
		}
		out = append(out, res)
	}
	return out, nil
}

// Summary returns the corpus summary recorded at index time.
func (e *Engine) Summary() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.manifest == nil {
		return ""
	}
	return e.manifest.Summary
}

// Len returns the number of indexed passages.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.chunks)
}

func search(ctx context.Context, emb domain.Embedder, store vectorstore.Storage, chunks []domain.Chunk, question string, topK int) ([]domain.SearchResult, error) {
	vec, err := emb.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if isZero(vec) {
		return lexicalSearch(chunks, question, topK), nil
	}
	res, err := store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	for _, r := range res {
		if r.Score > 1e-9 {
			return res, nil
		}
	}
	return lexicalSearch(chunks, question, topK), nil
}

func embedAll(ctx context.Context, emb domain.Embedder, passages []string, workers int) ([][]float64, error) {
	vectors := make([][]float64, len(passages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, p := range passages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := emb.Embed(gctx, p)
			if err != nil {
				return fmt.Errorf("embed passage %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// fill recreates store with chunks, upserting batch points at a time.
func fill(ctx context.Context, store vectorstore.Storage, chunks []domain.Chunk, vectors [][]float64, batch int) error {
	dim := len(vectors[0])
	if dim == 0 {
		return errors.New("embedder produced empty vectors")
	}
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	if err := store.Init(ctx, dim); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if batch <= 0 {
		batch = len(chunks)
	}
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		if err := store.Upsert(ctx, chunks[start:end], vectors[start:end]); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
	}
	return nil
}

func (e *Engine) freshEmbedder() domain.Embedder {
	if s, ok := e.base.(domain.StatefulEmbedder); ok {
		return s.Fresh()
	}
	return e.base
}

func (e *Engine) newStore(gen string) vectorstore.Storage {
	if e.opts.NewStore != nil {
		if st := e.opts.NewStore(e.cfg.DatasetName, gen); st != nil {
			return st
		}
	}
	return memory.NewStorage()
}

func newGeneration() string { return uuid.NewString()[:8] }

func (e *Engine) chunksFor(passages []string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(passages))
	for i, p := range passages {
		chunks[i] = domain.Chunk{
			DocumentID: e.cfg.DatasetName,
			ChunkID:    domain.PassageID(p),
			Text:       p,
			Index:      i,
		}
	}
	return chunks
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
