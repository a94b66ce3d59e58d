package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"EcoCart/internal/config"
	"EcoCart/internal/domain"
	"EcoCart/internal/logging"
	"EcoCart/internal/ports"
	"EcoCart/internal/progress"
)

// Analyzer is the single-run entry point the session guard drives.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) domain.PipelineResult
}

// Sessions allows at most one active run per session key.
type Sessions struct {
	pipeline   Analyzer
	lock       ports.RunLock
	policy     config.ConcurrencyPolicy
	runTimeout time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	id     string
	cancel context.CancelFunc
}

// NewSessions wraps pipeline with the configured concurrency policy. A nil
// lock keeps the guard process-local.
func NewSessions(pipeline Analyzer, lock ports.RunLock, policy config.ConcurrencyPolicy, runTimeout time.Duration, logger *slog.Logger) *Sessions {
	if policy == "" {
		policy = config.ConcurrencyReject
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sessions{
		pipeline:   pipeline,
		lock:       lock,
		policy:     policy,
		runTimeout: runTimeout,
		logger:     logger,
		active:     make(map[string]*activeRun),
	}
}

// Run executes one pipeline run for session. Under the reject policy a second
// run for a busy session fails with domain.ErrRunInProgress; under supersede
// the previous run is cancelled and this one takes over.
func (s *Sessions) Run(ctx context.Context, session string, ref domain.ProductReference, reporter *progress.Reporter) (domain.PipelineResult, error) {
	if err := ref.Validate(); err != nil {
		return domain.PipelineResult{}, err
	}

	runID := uuid.NewString()
	supersede := s.policy == config.ConcurrencySupersede

	runCtx, cancel := context.WithCancel(ctx)
	if s.runTimeout > 0 {
		runCtx, cancel = withTimeout(runCtx, cancel, s.runTimeout)
	}
	defer cancel()

	s.mu.Lock()
	prev, busy := s.active[session]
	if busy && !supersede {
		s.mu.Unlock()
		return domain.PipelineResult{}, fmt.Errorf("%w: session %s", domain.ErrRunInProgress, session)
	}
	s.active[session] = &activeRun{id: runID, cancel: cancel}
	s.mu.Unlock()

	if busy {
		s.logger.Info("superseding active run", "session", session, "previous_run", prev.id, "run_id", runID)
		prev.cancel()
	}

	if s.lock != nil {
		ttl := s.runTimeout
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		ok, err := s.lock.Acquire(ctx, session, runID, ttl, supersede)
		if err != nil || !ok {
			s.forget(session, runID)
			if err != nil {
				return domain.PipelineResult{}, fmt.Errorf("acquire run lock: %w", err)
			}
			return domain.PipelineResult{}, fmt.Errorf("%w: session %s", domain.ErrRunInProgress, session)
		}
		defer func() {
			// The run context may already be gone; release with the caller's lifetime detached.
			if err := s.lock.Release(context.WithoutCancel(ctx), session, runID); err != nil {
				s.logger.Warn("release run lock", "session", session, "run_id", runID, "error", err)
			}
		}()
	}
	defer s.forget(session, runID)

	s.logger.Debug("run started", "session", session, "run_id", runID)
	result := s.pipeline.Analyze(runCtx, Request{RunID: runID, Reference: ref, Reporter: reporter})
	return result, nil
}

// Active reports whether session currently has a run in flight.
func (s *Sessions) Active(session string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[session]
	return ok
}

func (s *Sessions) forget(session, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.active[session]; ok && cur.id == runID {
		delete(s.active, session)
	}
}

func withTimeout(ctx context.Context, parentCancel context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	tctx, tcancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		tcancel()
		parentCancel()
	}
}
