// Package workerpool wraps an ants pool with zap panic logging.
package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"ragd/internal/logger"
)

var (
	ErrPoolClosed   = errors.New("worker pool closed")
	ErrPoolOverload = errors.New("worker pool overloaded")
)

// Config sizes the pool.
type Config struct {
	// Capacity is the number of concurrent workers.
	Capacity       int
	ExpiryDuration time.Duration
	// Nonblocking makes Submit fail with ErrPoolOverload when all workers are busy.
	Nonblocking      bool
	MaxBlockingTasks int
}

// BackgroundConfig suits long-lived tasks such as index builds.
func BackgroundConfig() Config {
	return Config{Capacity: 4, ExpiryDuration: 60 * time.Second, Nonblocking: true}
}

// Pool runs tasks on a bounded set of goroutines.
type Pool struct {
	name   string
	pool   *ants.Pool
	log    *zap.Logger
	panics atomic.Int64

	closed   atomic.Bool
	closedMu sync.Mutex
}

func New(name string, cfg Config, log *zap.Logger) (*Pool, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if cfg.ExpiryDuration <= 0 {
		cfg.ExpiryDuration = 10 * time.Second
	}
	p := &Pool{name: name, log: logger.Module(log, "workerpool").With(zap.String("pool", name))}
	pool, err := ants.NewPool(cfg.Capacity,
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithNonblocking(cfg.Nonblocking),
		ants.WithMaxBlockingTasks(cfg.MaxBlockingTasks),
		ants.WithPanicHandler(func(r any) {
			p.panics.Add(1)
			p.log.Error("worker panic recovered", zap.Any("panic", r))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create pool %s: %w", name, err)
	}
	p.pool = pool
	p.log.Debug("worker pool created", zap.Int("capacity", cfg.Capacity))
	return p, nil
}

// Submit queues task. With a nonblocking pool it fails fast when saturated.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if err := p.pool.Submit(task); err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			return ErrPoolOverload
		}
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	return nil
}

// Go runs task on the pool, or on a plain goroutine when the pool is
// unavailable. The task always runs. A nil pool is allowed.
func (p *Pool) Go(task func()) {
	if p != nil {
		err := p.Submit(task)
		if err == nil {
			return
		}
		p.log.Warn("pool submit failed, using goroutine", zap.Error(err))
	}
	go task()
}

// Cap returns the pool capacity.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }

// Panics returns how many tasks panicked.
func (p *Pool) Panics() int64 { return p.panics.Load() }

// Release waits up to timeout for running tasks, then stops the pool.
func (p *Pool) Release(timeout time.Duration) error {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()
	if p.closed.Load() {
		return nil
	}
	p.closed.Store(true)
	if timeout <= 0 {
		p.pool.Release()
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}
