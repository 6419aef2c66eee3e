package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/appshell/internal/events"
	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/metrics"
)

const defaultQueueSize = 64

// Reporter delivers a batch of stats to a remote endpoint.
type Reporter interface {
	Report(ctx context.Context, stats map[string]string) error
}

// EventPublisher publishes events to subscribers.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Options configures a Service.
type Options struct {
	Reporter  Reporter       // nil disables remote reporting
	EventBus  EventPublisher // nil disables event publishing
	QueueSize int
}

// Service bumps stats without ever blocking the caller.
type Service struct {
	reporter Reporter
	eventBus EventPublisher
	queue    chan map[string]string
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a telemetry service. Call Start to begin remote reporting.
func New(opts Options) *Service {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Service{
		reporter: opts.Reporter,
		eventBus: opts.EventBus,
		queue:    make(chan map[string]string, size),
		logger:   logging.GetLogger("telemetry"),
	}
}

// BumpStat records a single stat.
func (s *Service) BumpStat(group, name string) {
	s.BumpStats(map[string]string{group: name})
}

// BumpStats records a batch of stats keyed by group.
func (s *Service) BumpStats(stats map[string]string) {
	if len(stats) == 0 {
		return
	}

	now := time.Now().Format(time.RFC3339)
	for group, name := range stats {
		s.logger.Debug("Bumping stat", "group", group, "name", name)
		metrics.RecordStat(group, name)
		if s.eventBus != nil {
			s.eventBus.Publish(events.StatsBumpedEvent{
				Group:     group,
				Name:      name,
				Timestamp: now,
			})
		}
	}

	if s.reporter == nil {
		return
	}

	batch := make(map[string]string, len(stats))
	for k, v := range stats {
		batch[k] = v
	}

	select {
	case s.queue <- batch:
	default:
		metrics.RecordStatDropped()
		s.logger.Warn("Telemetry queue full, dropping stats", "count", len(batch))
	}
}

// Start launches the background reporter.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.reporter == nil {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the background reporter and waits for it to exit. Queued stats
// that were not yet sent are discarded.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-s.queue:
			if err := s.reporter.Report(ctx, batch); err != nil {
				s.logger.Warn("Failed to report stats", "error", err)
			}
		}
	}
}
