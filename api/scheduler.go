/*
scheduler.go - Automated accrual refresh scheduler

PURPOSE:
  Cycle additions and resets are only written up to the engine clock. As
  time passes, anniversaries fall due without any lifecycle event to
  trigger a replay. The scheduler periodically refreshes every employee so
  balances include what became due since the last run.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Lists employees and calls Engine.RefreshAccruals for each
  - An employee whose ledger is current costs one read per category
  - Failures are logged per employee and do not stop the run

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAccrualScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - timeoff/engine.go: RefreshAccruals
*/
package api

import (
	"context"
	"sync"
	"time"
)

// AccrualScheduler refreshes accruals in the background.
type AccrualScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAccrualScheduler creates a new scheduler.
func NewAccrualScheduler(handler *Handler) *AccrualScheduler {
	return &AccrualScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (s *AccrualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Handler.Logger.Info("accrual scheduler disabled")
		return
	}

	if s.ticker != nil {
		return
	}

	// A fresh channel per start: Stop closes the previous one.
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Handler.Logger.Info("accrual scheduler started", "interval", s.CheckInterval)
}

// Stop stops the scheduler and waits for a run in progress.
func (s *AccrualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Handler.Logger.Info("accrual scheduler stopped")
	}
}

func (s *AccrualScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// RunOnce refreshes every employee and returns the number of entries
// written.
func (s *AccrualScheduler) RunOnce(ctx context.Context) int {
	logger := s.Handler.Logger

	employees, err := s.Handler.Store.ListEmployees(ctx)
	if err != nil {
		logger.Error("accrual refresh: list employees", "error", err)
		return 0
	}

	engine := s.Handler.Engine()
	written := 0
	for _, emp := range employees {
		n, err := engine.RefreshAccruals(ctx, emp.ID)
		if err != nil {
			logger.Warn("accrual refresh failed", "employee", emp.ID, "error", err)
			continue
		}
		written += n
	}

	logger.Info("accrual refresh complete", "employees", len(employees), "entries", written)
	return written
}
