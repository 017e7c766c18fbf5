// Package rotation owns the per-code rotation timers.  Each rotating code
// gets one goroutine that advances its counter every interval until the code
// is stopped or expires.
package rotation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-checkin/internal/metrics"
	"github.com/iliyamo/qr-checkin/internal/model"
)

// IntervalFor maps a security level to its rotation cadence.  Zero means the
// code never rotates.
func IntervalFor(level model.SecurityLevel) time.Duration {
	switch level {
	case model.SecurityStandard:
		return 300 * time.Second
	case model.SecurityHigh:
		return 60 * time.Second
	case model.SecurityMaximum:
		return 30 * time.Second
	default:
		return 0
	}
}

type entry struct {
	counter  atomic.Int64
	interval time.Duration
	cancel   context.CancelFunc
}

// Scheduler is the single owner of rotation timers and counters.  Counters
// are written only by their code's goroutine and read through Status.
type Scheduler struct {
	mu      sync.RWMutex
	entries map[string]*entry
	wg      sync.WaitGroup
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// New creates an empty scheduler.  logger and recorder may be nil.
func New(logger *zap.Logger, recorder *metrics.Recorder) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger,
		metrics: recorder,
	}
}

// Start begins rotating codeID every interval, starting the counter at
// initial.  The timer removes itself once expiresAt passes; a zero
// expiresAt never expires.  Start returns false when interval is not
// positive or the code is already rotating.
func (s *Scheduler) Start(codeID string, interval time.Duration, expiresAt time.Time, initial int64) bool {
	if interval <= 0 {
		return false
	}
	if !expiresAt.IsZero() && !time.Now().Before(expiresAt) {
		return false
	}

	s.mu.Lock()
	if _, ok := s.entries[codeID]; ok {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{interval: interval, cancel: cancel}
	e.counter.Store(initial)
	s.entries[codeID] = e
	active := len(s.entries)
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.SetActiveRotations(active)
	s.logger.Debug("rotation started",
		zap.String("code_id", codeID),
		zap.Duration("interval", interval),
		zap.Int64("initial", initial))

	go s.run(ctx, codeID, e, expiresAt)
	return true
}

func (s *Scheduler) run(ctx context.Context, codeID string, e *entry, expiresAt time.Time) {
	defer s.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var expired <-chan time.Time
	if !expiresAt.IsZero() {
		timer := time.NewTimer(time.Until(expiresAt))
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := e.counter.Add(1)
			s.metrics.ObserveRotationTick()
			s.logger.Debug("rotation tick", zap.String("code_id", codeID), zap.Int64("rotation", n))
		case <-expired:
			s.remove(codeID, e)
			s.logger.Info("rotation stopped at expiry", zap.String("code_id", codeID))
			return
		}
	}
}

// Stop cancels codeID's timer and drops its counter.  Stopping an unknown or
// already stopped code is a no-op.
func (s *Scheduler) Stop(codeID string) {
	s.mu.Lock()
	e, ok := s.entries[codeID]
	if ok {
		delete(s.entries, codeID)
	}
	active := len(s.entries)
	s.mu.Unlock()

	if !ok {
		return
	}
	e.cancel()
	s.metrics.SetActiveRotations(active)
	s.logger.Debug("rotation stopped", zap.String("code_id", codeID))
}

// remove drops e only if it is still the registered entry for codeID.
func (s *Scheduler) remove(codeID string, e *entry) {
	s.mu.Lock()
	if cur, ok := s.entries[codeID]; ok && cur == e {
		delete(s.entries, codeID)
	}
	active := len(s.entries)
	s.mu.Unlock()
	e.cancel()
	s.metrics.SetActiveRotations(active)
}

// Status reports the current rotation index.  Unknown codes report zero and
// not rotating.
func (s *Scheduler) Status(codeID string) model.RotationStatus {
	s.mu.RLock()
	e, ok := s.entries[codeID]
	s.mu.RUnlock()
	if !ok {
		return model.RotationStatus{CodeID: codeID}
	}
	return model.RotationStatus{CodeID: codeID, CurrentRotation: e.counter.Load(), IsRotating: true}
}

// Active returns the number of running timers.
func (s *Scheduler) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StopAll cancels every timer and waits for the goroutines to exit.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for id, e := range s.entries {
		e.cancel()
		delete(s.entries, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.metrics.SetActiveRotations(0)
}

// ElapsedRotations returns how many full intervals fit between createdAt and
// now.  It is used to resume a counter after a restart.
func ElapsedRotations(createdAt, now time.Time, interval time.Duration) int64 {
	if interval <= 0 || !now.After(createdAt) {
		return 0
	}
	return int64(now.Sub(createdAt) / interval)
}
