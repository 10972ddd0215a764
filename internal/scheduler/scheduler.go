package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/logger"
)

// Reconciler is the slice of the gift service the sweeper drives.
type Reconciler interface {
	SessionIDs(ctx context.Context) ([]string, error)
	Reconcile(ctx context.Context, sessionID string) (bool, error)
}

// ReconcileScheduler periodically re-derives completion and refunds for
// every stored session, repairing rows written by older builds.
type ReconcileScheduler struct {
	service  Reconciler
	interval time.Duration

	mu        sync.Mutex
	running   bool
	started   bool
	stopped   bool
	stopChan  chan struct{}
	done      chan struct{}
	sweeps    int
	repaired  int
	lastSweep time.Time
}

func NewReconcileScheduler(service Reconciler, interval time.Duration) *ReconcileScheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ReconcileScheduler{
		service:  service,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called. A scheduler runs
// at most once, and never after Stop.
func (s *ReconcileScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.running = true
	s.mu.Unlock()
	defer close(s.done)

	logger.Infof("[Scheduler] Starting reconcile sweeps every %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Scheduler] Context cancelled, stopping")
			s.markStopped()
			return
		case <-s.stopChan:
			logger.Info("[Scheduler] Stop signal received")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *ReconcileScheduler) markStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Stop ends the Start loop, waiting for it if it is running. Called before
// Start, it keeps Start from ever running.
func (s *ReconcileScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopChan)
	started := s.started
	s.running = false
	s.mu.Unlock()

	if started {
		<-s.done
	}
	logger.Info("[Scheduler] Stopped")
}

// Sweep recomputes every session once and returns how many changed state.
func (s *ReconcileScheduler) Sweep(ctx context.Context) int {
	ids, err := s.service.SessionIDs(ctx)
	if err != nil {
		logger.Errorf("[Scheduler] Failed to list sessions: %v", err)
		return 0
	}

	repaired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		changed, err := s.service.Reconcile(ctx, id)
		if err != nil {
			logger.Warningf("[Scheduler] Failed to reconcile session %s: %v", id, err)
			continue
		}
		if changed {
			repaired++
		}
	}

	s.mu.Lock()
	s.sweeps++
	s.repaired += repaired
	s.lastSweep = time.Now()
	s.mu.Unlock()

	if repaired > 0 {
		logger.Infof("[Scheduler] Reconciled %d of %d sessions", repaired, len(ids))
	}
	return repaired
}

// GetStatus returns current scheduler status
func (s *ReconcileScheduler) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running":  s.running,
		"interval": s.interval.String(),
		"sweeps":   s.sweeps,
		"repaired": s.repaired,
	}
	if !s.lastSweep.IsZero() {
		status["lastSweep"] = s.lastSweep.UTC().Format(time.RFC3339)
	}
	return status
}
