// Package server exposes the platform over HTTP and carries the gRPC
// health endpoint used by orchestrator probes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextmonth/smartsite/internal/agent"
	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/blueprint"
	"github.com/nextmonth/smartsite/internal/embed"
	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/health"
	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/sotsync"
	"github.com/nextmonth/smartsite/internal/store"
)

// Options configures a Server. Zero values select defaults.
type Options struct {
	// Publisher receives every domain event, e.g. a NATSPublisher.
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// PublicURL is the base URL written into embed scripts.
	PublicURL string

	Sessions auth.Options
	Sync     sotsync.Options
	// SyncEnabled starts the cron schedule in Start.
	SyncEnabled bool
	// LocalTriggers runs SOT syncs for trigger events in process. Use it
	// when no event bus subscriber is wired.
	LocalTriggers bool

	Health health.Options
	Batch  health.BatchOptions

	// LLM backs the agent. Nil makes POST /api/agent/respond return 503.
	LLM   agent.Completer
	Agent agent.Options

	// Checks feed GET /api/health/status and the gRPC serving status.
	Checks map[string]health.Check
}

// Server holds the domain services behind the HTTP handlers.
type Server struct {
	store     store.Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	publicURL string

	sessions  *auth.Sessions
	sync      *sotsync.Service
	blueprint *blueprint.Service
	monitor   *health.Monitor
	batcher   *health.Batcher
	agent     *agent.Service
	embed     *embed.Service
	checks    map[string]health.Check

	sseHub        *sseHub
	syncEnabled   bool
	localTriggers bool

	mu      sync.Mutex
	started bool
}

// New wires the domain services over s. Every service publishes through
// the server so events reach the SSE stream as well as opts.Publisher.
func New(s store.Store, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	upstream := opts.Publisher
	if upstream == nil {
		upstream = &events.NoopPublisher{}
	}
	srv := &Server{
		store:         s,
		metrics:       opts.Metrics,
		logger:        logger,
		publicURL:     opts.PublicURL,
		checks:        opts.Checks,
		sseHub:        newSSEHub(),
		syncEnabled:   opts.SyncEnabled,
		localTriggers: opts.LocalTriggers,
	}
	srv.publisher = events.Fanout{upstream, events.PublisherFunc(srv.fanOutLocal)}

	srv.sessions = auth.NewSessions(s, opts.Sessions)

	syncOpts := opts.Sync
	syncOpts.Publisher = srv.publisher
	syncOpts.Metrics = opts.Metrics
	syncOpts.Logger = logger.With("component", "sotsync")
	var err error
	if srv.sync, err = sotsync.New(s, syncOpts); err != nil {
		return nil, fmt.Errorf("sot sync: %w", err)
	}

	srv.blueprint = blueprint.New(s, srv.publisher, opts.Metrics, logger.With("component", "blueprint"))

	tracker := health.NewTracker()
	hopts := opts.Health
	hopts.Publisher = srv.publisher
	hopts.Metrics = opts.Metrics
	hopts.Logger = logger.With("component", "health")
	srv.monitor = health.NewMonitor(s, tracker, hopts)

	bopts := opts.Batch
	bopts.Metrics = opts.Metrics
	bopts.Logger = hopts.Logger
	srv.batcher = health.NewBatcher(s, tracker, bopts)

	aopts := opts.Agent
	aopts.Metrics = opts.Metrics
	aopts.Logger = logger.With("component", "agent")
	if srv.agent, err = agent.New(s, opts.LLM, aopts); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	srv.embed = embed.New(s, opts.Metrics)
	return srv, nil
}

// Sync returns the SOT sync service, e.g. to attach a bus subscriber.
func (s *Server) Sync() *sotsync.Service { return s.sync }

// Tracker returns the health tracker the middleware and batcher feed.
func (s *Server) Tracker() *health.Tracker { return s.monitor.Tracker() }

// Start launches the background workers.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.syncEnabled {
		if err := s.sync.Start(); err != nil {
			return err
		}
	}
	s.sessions.StartSweeper()
	s.monitor.Start()
	s.batcher.Start()
	s.started = true
	return nil
}

// Stop halts the workers; the batcher flushes what it still holds.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.sync.Stop()
		return
	}
	s.batcher.Stop()
	s.monitor.Stop()
	s.sessions.Stop()
	s.sync.Stop()
	s.started = false
}

// emit publishes a domain event. Failures are logged and never reach the
// caller.
func (s *Server) emit(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "err", err)
	}
}

// fanOutLocal delivers an event to SSE clients and, with LocalTriggers,
// to the sync trigger.
func (s *Server) fanOutLocal(_ context.Context, topic string, event any) error {
	if s.localTriggers && sotsync.IsTrigger(topic) {
		s.sync.Trigger(topic)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	s.sseHub.broadcast(topic, events.TenantOf(event), payload)
	return nil
}

// probeTimeout bounds one round of dependency checks.
const probeTimeout = 5 * time.Second

func (s *Server) systemStatus(ctx context.Context) *health.SystemStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return health.CheckStatus(ctx, s.checks)
}
