// Package progress holds the state of the current long-running operation and
// notifies observers whenever it changes.
package progress

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ragd/internal/domain"
	"ragd/internal/logger"
)

// Observer receives a snapshot after every update. Snapshots arrive one at a
// time in update order; when updates race, an observer may skip one but never
// sees an older state after a newer one. Observers must not update the tracker.
type Observer func(state domain.ProgressState) error

// Tracker owns the single process-wide ProgressState.
type Tracker struct {
	mu        sync.RWMutex
	state     domain.ProgressState
	seq       uint64
	observers []Observer
	log       *zap.Logger
	now       func() time.Time

	notifyMu  sync.Mutex
	delivered uint64
}

// NewTracker returns an idle tracker.
func NewTracker(log *zap.Logger) *Tracker {
	return &Tracker{
		state: domain.ProgressState{Status: domain.StatusIdle},
		log:   logger.Module(log, "progress"),
		now:   time.Now,
	}
}

// Register appends an observer. Observers cannot be removed.
func (t *Tracker) Register(o Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, o)
	t.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() domain.ProgressState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Begin starts a new operation, resetting progress to zero.
func (t *Tracker) Begin(totalSteps int) {
	t.mutate(func(s *domain.ProgressState) {
		*s = domain.ProgressState{
			Status:     domain.StatusRunning,
			TotalSteps: totalSteps,
			StartTime:  t.now(),
		}
	})
}

// Update overwrites progress, step and message. Progress never moves backwards
// within an operation.
func (t *Tracker) Update(progress float64, step, message string) {
	t.mutate(func(s *domain.ProgressState) {
		apply(s, progress, step, message)
	})
}

// Advance is Update plus one completed step.
func (t *Tracker) Advance(progress float64, step, message string) {
	t.mutate(func(s *domain.ProgressState) {
		if s.TotalSteps == 0 || s.CompletedSteps < s.TotalSteps {
			s.CompletedSteps++
		}
		apply(s, progress, step, message)
	})
}

func apply(s *domain.ProgressState, progress float64, step, message string) {
	progress = min(max(progress, 0), 1)
	if progress > s.Progress {
		s.Progress = progress
	}
	s.CurrentStep = step
	s.Message = message
}

// SetStatus changes the lifecycle phase. Any status other than error clears
// the error text.
func (t *Tracker) SetStatus(status domain.Status) {
	t.mutate(func(s *domain.ProgressState) {
		s.Status = status
		if status != domain.StatusError {
			s.Error = ""
		}
	})
}

// SetQueryStatus is SetStatus for queries: a running operation keeps its status.
func (t *Tracker) SetQueryStatus(status domain.Status) {
	t.mutate(func(s *domain.ProgressState) {
		if s.Status == domain.StatusRunning {
			return
		}
		s.Status = status
		if status != domain.StatusError {
			s.Error = ""
		}
	})
}

// FailQuery records a failed query unless an operation is running.
func (t *Tracker) FailQuery(err error) {
	t.mutate(func(s *domain.ProgressState) {
		if s.Status == domain.StatusRunning {
			return
		}
		s.Status = domain.StatusError
		s.Error = err.Error()
	})
}

// Fail records err as the outcome of the current operation.
func (t *Tracker) Fail(step string, err error) {
	t.mutate(func(s *domain.ProgressState) {
		s.Status = domain.StatusError
		s.Error = err.Error()
		s.CurrentStep = step
		s.Message = fmt.Sprintf("processing failed: %s", err.Error())
	})
}

// Complete finishes the operation at full progress.
func (t *Tracker) Complete(status domain.Status, step, message string) {
	t.mutate(func(s *domain.ProgressState) {
		s.Status = status
		s.Error = ""
		s.Progress = 1
		s.CompletedSteps = s.TotalSteps
		s.CurrentStep = step
		s.Message = message
	})
}

// Reset replaces the state with a fresh idle one. Observers stay registered.
func (t *Tracker) Reset() {
	t.mutate(func(s *domain.ProgressState) {
		*s = domain.ProgressState{Status: domain.StatusIdle}
	})
}

func (t *Tracker) mutate(fn func(s *domain.ProgressState)) {
	t.mu.Lock()
	fn(&t.state)
	t.seq++
	seq, snapshot := t.seq, t.state
	observers := make([]Observer, len(t.observers))
	copy(observers, t.observers)
	t.mu.Unlock()

	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	if seq < t.delivered {
		return
	}
	t.delivered = seq
	for _, o := range observers {
		t.notify(o, snapshot)
	}
}

func (t *Tracker) notify(o Observer, state domain.ProgressState) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("progress observer panicked", zap.Any("panic", r))
		}
	}()
	if err := o(state); err != nil {
		t.log.Error("progress observer failed", zap.Error(err))
	}
}
