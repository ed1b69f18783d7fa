// Package indexing builds dataset indexes in the background and reports
// progress through the tracker.
package indexing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragd/internal/domain"
	"ragd/internal/logger"
	"ragd/internal/models"
	"ragd/internal/progress"
	"ragd/internal/workerpool"
)

// TotalSteps is the number of checkpoints of one indexing run.
const TotalSteps = 4

// Orchestrator runs index builds on a worker pool.
type Orchestrator struct {
	tracker   *progress.Tracker
	models    *models.Cache
	newEngine domain.EngineFactory
	pool      *workerpool.Pool
	log       *zap.Logger
}

func NewOrchestrator(tracker *progress.Tracker, cache *models.Cache, newEngine domain.EngineFactory, pool *workerpool.Pool, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		tracker:   tracker,
		models:    cache,
		newEngine: newEngine,
		pool:      pool,
		log:       logger.Module(log, "indexing"),
	}
}

// Task is a handle on one background index build.
type Task struct {
	ID        string
	Dataset   string
	Documents int
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Cancel asks the build to stop. The task still finishes with an error.
func (t *Task) Cancel() { t.cancel() }

// Done is closed when the build has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the build error once Done is closed, nil before.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the build finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hooks let the caller react to the outcome of a build.
type Hooks struct {
	// OnSuccess receives the engine before the tracker reports completion.
	OnSuccess func(domain.Engine)
	// OnFinish runs after the final tracker update and before Done is closed.
	OnFinish func(error)
}

// Run accepts passages for indexing under cfg and returns immediately. The
// build outlives ctx's cancellation but keeps its values.
func (o *Orchestrator) Run(ctx context.Context, passages []string, cfg domain.EngineConfig, hooks Hooks) (*Task, error) {
	if len(passages) == 0 {
		return nil, fmt.Errorf("%w: no passages provided", domain.ErrInvalidInput)
	}
	if cfg.DatasetName == "" {
		return nil, fmt.Errorf("%w: dataset name is required", domain.ErrInvalidInput)
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task := &Task{
		ID:        uuid.NewString(),
		Dataset:   cfg.DatasetName,
		Documents: len(passages),
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	o.tracker.Begin(TotalSteps)
	o.log.Info("indexing accepted",
		zap.String("task", task.ID),
		zap.String("dataset", task.Dataset),
		zap.Int("documents", task.Documents))

	o.pool.Go(func() {
		defer close(task.done)
		defer cancel()
		eng, err := o.execute(taskCtx, passages, cfg)
		task.err = err
		if err != nil {
			o.tracker.Fail("error", err)
			o.log.Error("indexing failed", zap.String("task", task.ID), zap.Error(err))
		} else {
			if hooks.OnSuccess != nil {
				hooks.OnSuccess(eng)
			}
			o.tracker.Complete(domain.StatusCompleted, "completed",
				fmt.Sprintf("indexing complete: %d documents", len(passages)))
			o.log.Info("indexing finished",
				zap.String("task", task.ID),
				zap.Duration("took", time.Since(task.StartedAt)))
		}
		if hooks.OnFinish != nil {
			hooks.OnFinish(err)
		}
	})
	return task, nil
}

func (o *Orchestrator) execute(ctx context.Context, passages []string, cfg domain.EngineConfig) (eng domain.Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrIndexingFailure, r)
		}
	}()

	o.tracker.Advance(0.05, "initializing", "initializing models...")
	embedder, err := o.models.EmbeddingModel(cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexingFailure, err)
	}
	if o.models.LanguageEnabled() {
		// Generation degrades at query time, so a missing language model does
		// not fail the build.
		if _, err := o.models.LanguageModel(cfg.LLMModel); err != nil {
			o.log.Warn("language model unavailable", zap.Error(err))
		}
	}

	o.tracker.Advance(0.15, "creating_engine", "creating retrieval engine...")
	eng, err = o.newEngine(ctx, cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("%w: create engine: %w", domain.ErrIndexingFailure, err)
	}

	o.tracker.Advance(0.25, "indexing", fmt.Sprintf("indexing %d documents...", len(passages)))
	if err := eng.Index(ctx, passages); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexingFailure, err)
	}
	return eng, nil
}
