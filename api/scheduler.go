/*
scheduler.go - Periodic ledger audit

PURPOSE:
  Recomputes every cached counter (alumni totals, fund allocated/remaining)
  from the ledger rows on a ticker and logs any drift. Nothing is repaired
  automatically; drift is an alert for staff.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Runs once immediately on Start
  - Keeps the last result for the admin UI

USAGE:
  scheduler := NewAuditScheduler(engine, logger, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Audit endpoint (on-demand)
  - ledger/audit.go: Engine.Audit
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/scholarship-ledger/ledger"
)

// AuditResult is the outcome of one audit pass.
type AuditResult struct {
	RanAt  time.Time
	Drifts []ledger.Drift
	Err    error
}

// AuditScheduler runs Engine.Audit on a fixed interval.
type AuditScheduler struct {
	Engine   *ledger.Engine
	Logger   zerolog.Logger
	Interval time.Duration

	mu     sync.Mutex
	last   *AuditResult
	stop   chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewAuditScheduler creates a scheduler. A non-positive interval disables it.
func NewAuditScheduler(engine *ledger.Engine, log zerolog.Logger, interval time.Duration) *AuditScheduler {
	return &AuditScheduler{
		Engine:   engine,
		Logger:   log.With().Str("component", "audit").Logger(),
		Interval: interval,
	}
}

// Start begins the scheduler.
func (s *AuditScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.Logger.Info().Msg("audit scheduler disabled")
		return
	}
	if s.stop != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(ctx, s.stop)

	s.Logger.Info().Dur("interval", s.Interval).Msg("audit scheduler started")
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	stop, cancel := s.stop, s.cancel
	s.stop, s.cancel = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	cancel()
	s.wg.Wait()
	s.Logger.Info().Msg("audit scheduler stopped")
}

func (s *AuditScheduler) run(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one audit pass synchronously and records the result.
func (s *AuditScheduler) RunNow(ctx context.Context) AuditResult {
	res := AuditResult{RanAt: time.Now().UTC()}
	res.Drifts, res.Err = s.Engine.Audit(ctx)

	switch {
	case res.Err != nil:
		s.Logger.Error().Err(res.Err).Msg("audit failed")
	case len(res.Drifts) > 0:
		for _, d := range res.Drifts {
			s.Logger.Warn().
				Str("kind", d.Kind).
				Str("id", d.ID).
				Str("field", d.Field).
				Str("cached", d.Cached.String()).
				Str("computed", d.Computed.String()).
				Msg("ledger drift")
		}
	default:
		s.Logger.Debug().Msg("ledger balanced")
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	return res
}

// Last returns the most recent result, or nil if no pass has run.
func (s *AuditScheduler) Last() *AuditResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
