package updater

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/appshell/internal/logging"
)

// Default polling schedule.
const (
	DefaultCheckDelay    = 2 * time.Second
	DefaultCheckInterval = time.Hour
)

// Checker starts an update check.
type Checker interface {
	CheckForUpdates(ctx context.Context) error
}

// Scheduler runs a first check after a delay and then polls at a fixed
// interval until stopped.
type Scheduler struct {
	checker  Checker
	delay    time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. Non-positive durations use the defaults.
func NewScheduler(checker Checker, delay, interval time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultCheckDelay
	}
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Scheduler{
		checker:  checker,
		delay:    delay,
		interval: interval,
		logger:   logging.GetLogger("updater"),
	}
}

// Start begins polling. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Update checks scheduled", "delay", s.delay, "interval", s.interval)
}

// Stop stops polling and waits for an in-flight check call to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		s.check(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	if err := s.checker.CheckForUpdates(ctx); err != nil {
		if HasCode(err, ErrCodeInvalidState) {
			s.logger.Debug("Skipping scheduled update check", "reason", err)
			return
		}
		s.logger.Warn("Scheduled update check failed", "error", err)
	}
}
