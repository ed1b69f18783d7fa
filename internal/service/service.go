// Package service is the coordination point of the process: it owns the
// active engine and serializes operations that change it.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ragd/internal/dataset"
	"ragd/internal/domain"
	"ragd/internal/indexing"
	"ragd/internal/logger"
	"ragd/internal/models"
	"ragd/internal/progress"
	"ragd/internal/query"
	"ragd/internal/workerpool"
)

const retireTimeout = 10 * time.Second

// Deps are the collaborators of a Service.
type Deps struct {
	Tracker   *progress.Tracker
	Models    *models.Cache
	Registry  *dataset.Registry
	NewEngine domain.EngineFactory
	// IndexPool runs index builds. BatchPool bounds batch queries; nil runs
	// them sequentially.
	IndexPool *workerpool.Pool
	BatchPool *workerpool.Pool
	Query     query.Options
	Log       *zap.Logger
}

// Service is constructed once per process and handed to every transport.
type Service struct {
	tracker      *progress.Tracker
	models       *models.Cache
	registry     *dataset.Registry
	orchestrator *indexing.Orchestrator
	pipeline     *query.Pipeline
	log          *zap.Logger

	// busy is held by index, load, delete and clear.
	busy atomic.Bool

	mu      sync.RWMutex
	engine  domain.Engine
	config  *domain.EngineConfig
	dataset string
	task    *indexing.Task
}

func New(d Deps) *Service {
	s := &Service{
		tracker:  d.Tracker,
		models:   d.Models,
		registry: d.Registry,
		log:      logger.Module(d.Log, "service"),
	}
	s.orchestrator = indexing.NewOrchestrator(d.Tracker, d.Models, d.NewEngine, d.IndexPool, d.Log)
	var lm query.LanguageSource
	if d.Models != nil && d.Models.LanguageEnabled() {
		lm = d.Models
	}
	s.pipeline = query.NewPipeline(s, lm, d.Tracker, d.BatchPool, d.Query, d.Log)
	return s
}

// Active returns the active engine and its configuration. The engine is nil
// when nothing is indexed or loaded.
func (s *Service) Active() (domain.Engine, domain.EngineConfig) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return s.engine, domain.EngineConfig{}
	}
	return s.engine, *s.config
}

// CurrentDataset returns the name of the active dataset, if any.
func (s *Service) CurrentDataset() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

// EngineConfig returns the default configuration for a dataset.
func (s *Service) EngineConfig(name string) domain.EngineConfig {
	return s.registry.Config(name)
}

// StartIndexing accepts passages for indexing under cfg and returns the
// running task. The new index becomes active when the task succeeds.
func (s *Service) StartIndexing(ctx context.Context, passages []string, cfg domain.EngineConfig) (*indexing.Task, error) {
	if err := dataset.ValidateName(cfg.DatasetName); err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		return nil, fmt.Errorf("%w: no passages provided", domain.ErrInvalidInput)
	}
	if !s.acquire() {
		return nil, domain.ErrOperationInProgress
	}

	recorded := make(chan struct{})
	task, err := s.orchestrator.Run(ctx, passages, cfg, indexing.Hooks{
		OnSuccess: func(eng domain.Engine) { s.install(eng, cfg) },
		OnFinish: func(error) {
			<-recorded
			s.finish()
		},
	})
	if err != nil {
		s.release()
		return nil, err
	}
	s.mu.Lock()
	s.task = task
	s.mu.Unlock()
	close(recorded)
	return task, nil
}

func (s *Service) finish() {
	s.mu.Lock()
	s.task = nil
	s.mu.Unlock()
	s.release()
}

// Task returns the running index build, or nil.
func (s *Service) Task() *indexing.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.task
}

// Query answers one question against the active engine.
func (s *Service) Query(ctx context.Context, question string, topK int, useLLM bool) domain.QueryResult {
	return s.pipeline.Query(ctx, question, topK, useLLM)
}

// BatchQuery answers every question, keeping input order.
func (s *Service) BatchQuery(ctx context.Context, questions []string, topK int, useLLM bool) (domain.BatchResult, error) {
	return s.pipeline.Batch(ctx, questions, topK, useLLM)
}

// Datasets lists the stored datasets.
func (s *Service) Datasets() ([]string, error) {
	return s.registry.List()
}

// LoadDataset makes a stored dataset the active one.
func (s *Service) LoadDataset(ctx context.Context, name string) error {
	if err := dataset.ValidateName(name); err != nil {
		return err
	}
	if !s.registry.Exists(name) {
		return fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, name)
	}
	if !s.acquire() {
		return domain.ErrOperationInProgress
	}
	defer s.release()

	s.tracker.Begin(2)
	s.tracker.Advance(0.05, "loading_dataset", fmt.Sprintf("loading dataset %s...", name))
	eng, cfg, err := s.registry.Load(ctx, name)
	if err != nil {
		s.tracker.Fail("error", err)
		s.log.Error("dataset load failed", zap.String("dataset", name), zap.Error(err))
		return err
	}
	s.install(eng, cfg)
	s.tracker.Complete(domain.StatusReady, "ready", fmt.Sprintf("dataset %s loaded", name))
	return nil
}

// DeleteDataset removes a dataset. Deleting the active dataset clears the
// service state.
func (s *Service) DeleteDataset(name string) (dataset.Removed, error) {
	if !s.acquire() {
		return dataset.Removed{}, domain.ErrOperationInProgress
	}
	defer s.release()

	removed, err := s.registry.Delete(name)
	if err != nil {
		return removed, err
	}
	if s.CurrentDataset() == name {
		s.reset()
		s.log.Info("active dataset deleted, state cleared", zap.String("dataset", name))
	}
	return removed, nil
}

// Clear drops the active engine and starts a fresh progress state. Loaded
// models stay cached.
func (s *Service) Clear() error {
	if !s.acquire() {
		return domain.ErrOperationInProgress
	}
	defer s.release()
	s.reset()
	return nil
}

// Progress returns a snapshot of the current operation.
func (s *Service) Progress() domain.ProgressState {
	return s.tracker.Snapshot()
}

// RegisterProgressObserver adds an observer for progress updates.
func (s *Service) RegisterProgressObserver(o progress.Observer) {
	s.tracker.Register(o)
}

// Status summarizes the service for health and status endpoints.
func (s *Service) Status() domain.ServiceStatus {
	snap := s.tracker.Snapshot()
	emb, llm := s.models.Loaded()
	eng, _ := s.Active()
	st := domain.ServiceStatus{
		Status:         snap.Status,
		Message:        snap.Message,
		CurrentDataset: s.CurrentDataset(),
		ModelsLoaded:   domain.ModelsLoaded{Embedding: emb, LLM: llm, Engine: eng != nil},
	}
	if names, err := s.registry.List(); err == nil {
		st.DatasetsCount = len(names)
	} else {
		s.log.Warn("listing datasets failed", zap.Error(err))
	}
	return st
}

// Summary returns the corpus summary of the active engine, when it keeps one.
func (s *Service) Summary() string {
	eng, _ := s.Active()
	if sum, ok := eng.(interface{ Summary() string }); ok {
		return sum.Summary()
	}
	return ""
}

// Close cancels a running index build and waits for it to stop.
func (s *Service) Close(ctx context.Context) error {
	task := s.Task()
	if task == nil {
		return nil
	}
	task.Cancel()
	err := task.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	return nil
}

func (s *Service) install(eng domain.Engine, cfg domain.EngineConfig) {
	s.mu.Lock()
	prev := s.engine
	s.engine = eng
	s.config = &cfg
	s.dataset = cfg.DatasetName
	s.mu.Unlock()
	s.log.Info("engine activated", zap.String("dataset", cfg.DatasetName))
	if prev != eng {
		s.retire(prev)
	}
}

func (s *Service) reset() {
	s.mu.Lock()
	prev := s.engine
	s.engine = nil
	s.config = nil
	s.dataset = ""
	s.mu.Unlock()
	s.tracker.Reset()
	s.retire(prev)
}

// retire releases what a replaced engine holds outside the process, such as
// a superseded vector collection.
func (s *Service) retire(eng domain.Engine) {
	r, ok := eng.(interface{ Retire(context.Context) error })
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), retireTimeout)
	defer cancel()
	if err := r.Retire(ctx); err != nil {
		s.log.Warn("retiring engine failed", zap.Error(err))
	}
}

func (s *Service) acquire() bool { return s.busy.CompareAndSwap(false, true) }

func (s *Service) release() { s.busy.Store(false) }
