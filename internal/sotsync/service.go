// Package sotsync reports this instance's client profile to the Source of
// Truth system on a cron schedule and on demand.
package sotsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"

	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

const (
	DefaultSchedule   = "0 3 * * *"
	DefaultRetryDelay = 60 * time.Second
	DefaultMaxRetries = 3

	// logWriteTimeout bounds the sync log insert, which runs even when the
	// run's context has been cancelled.
	logWriteTimeout = 5 * time.Second
)

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Schedule   string
	RetryDelay time.Duration // unit of the linear retry delay
	MaxRetries int
	APIKey     string // sent as X-API-Key on callback pushes
	HTTPClient *http.Client
	Archive    Archive // optional
	Publisher  events.Publisher
	Metrics    *metrics.Metrics
	Defaults   *Defaults
	Logger     *slog.Logger
}

// Result is the outcome of one sync run.
type Result struct {
	Success   bool                 `json:"success"`
	Profile   *model.ClientProfile `json:"profile,omitempty"`
	Pushed    bool                 `json:"pushed"`
	Timestamp time.Time            `json:"timestamp"`
	Error     string               `json:"error,omitempty"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	IsRunning  bool       `json:"isRunning"`
	Schedule   string     `json:"schedule"`
	LastSync   *time.Time `json:"lastSync"`
	RetryCount int        `json:"retryCount"`
	MaxRetries int        `json:"maxRetries"`
}

// Service runs profile syncs.
type Service struct {
	store    store.Store
	client   *http.Client
	apiKey   string
	archive  Archive
	pub      events.Publisher
	metrics  *metrics.Metrics
	defaults Defaults
	logger   *slog.Logger

	retryDelay time.Duration
	maxRetries int

	mu         sync.Mutex
	cron       *cron.Cron
	entry      cron.EntryID
	schedule   string
	running    bool
	stopped    bool // set by Stop; no background work starts after it
	lastSync   *time.Time
	retryCount int

	// runMu serializes sync runs.
	runMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	triggerPending atomic.Bool
	now            func() time.Time
}

// New validates opts and returns a stopped Service.
func New(s store.Store, opts Options) (*Service, error) {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", opts.Schedule, err)
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.Defaults == nil {
		d := DefaultProfile
		opts.Defaults = &d
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:      s,
		client:     opts.HTTPClient,
		apiKey:     opts.APIKey,
		archive:    opts.Archive,
		pub:        opts.Publisher,
		metrics:    opts.Metrics,
		defaults:   *opts.Defaults,
		logger:     opts.Logger,
		retryDelay: opts.RetryDelay,
		maxRetries: opts.MaxRetries,
		schedule:   opts.Schedule,
		ctx:        ctx,
		cancel:     cancel,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start registers the scheduled job. Calling Start twice is a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	c := cron.New()
	id, err := c.AddFunc(s.schedule, s.scheduledRun)
	if err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	c.Start()
	s.cron, s.entry, s.running = c, id, true
	s.logger.Info("sot sync scheduled", "schedule", s.schedule)
	return nil
}

// Stop cancels pending retries and waits for in-flight runs and triggers.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.running = false
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
}

// UpdateSchedule validates expr and, when the scheduler is running,
// replaces the registered job.
func (s *Service) UpdateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		id, err := s.cron.AddFunc(expr, s.scheduledRun)
		if err != nil {
			return fmt.Errorf("schedule sync: %w", err)
		}
		s.cron.Remove(s.entry)
		s.entry = id
	}
	s.schedule = expr
	s.logger.Info("sot sync schedule updated", "schedule", expr)
	return nil
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		IsRunning:  s.running,
		Schedule:   s.schedule,
		RetryCount: s.retryCount,
		MaxRetries: s.maxRetries,
	}
	if s.lastSync != nil {
		t := *s.lastSync
		st.LastSync = &t
	}
	return st
}

// track registers background work with Stop. It returns false once Stop
// has begun.
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Service) scheduledRun() {
	if !s.track() {
		return
	}
	defer s.wg.Done()
	_ = s.RunWithRetry(s.ctx, model.SyncEventScheduled)
}

// RunWithRetry runs a sync and retries failures up to MaxRetries times,
// waiting n*RetryDelay before the n-th retry. It returns the error of the
// last attempt, or ctx.Err() when cancelled while waiting.
func (s *Service) RunWithRetry(ctx context.Context, eventType string) error {
	attempt := 0
	op := func() error {
		attempt++
		res := s.run(ctx, eventType, attempt)
		if res.Success {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return errors.New(res.Error)
	}
	notify := func(err error, wait time.Duration) {
		s.mu.Lock()
		s.retryCount++
		n := s.retryCount
		s.mu.Unlock()
		s.metrics.ObserveSyncRetry()
		s.logger.Warn("sot sync failed, retrying",
			"err", err, "retry", n, "max_retries", s.maxRetries, "wait", wait)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{unit: s.retryDelay}, uint64(s.maxRetries)), ctx)
	err := backoff.RetryNotify(op, b, notify)

	s.mu.Lock()
	s.retryCount = 0
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("sot sync gave up", "err", err, "attempts", attempt)
	}
	return err
}

// linearBackOff waits unit, 2*unit, 3*unit, ...
type linearBackOff struct {
	unit time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.unit
}

func (b *linearBackOff) Reset() { b.n = 0 }

// RunSync performs a single sync run without retries.
func (s *Service) RunSync(ctx context.Context, eventType string) *Result {
	return s.run(ctx, eventType, 1)
}

func (s *Service) run(ctx context.Context, eventType string, attempt int) *Result {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.now()
	res := &Result{Timestamp: now}
	profile, pushed, err := s.sync(ctx, now)
	res.Profile = profile
	res.Pushed = pushed

	details := map[string]any{"attempt": attempt, "pushed": pushed}
	status := model.SyncStatusSuccess
	if err != nil {
		status = model.SyncStatusError
		res.Error = err.Error()
		details["error"] = res.Error
		s.logger.Error("sot sync failed", "err", err, "event_type", eventType, "attempt", attempt)
	} else {
		res.Success = true
		details["businessId"] = profile.BusinessID
		s.mu.Lock()
		t := now
		s.lastSync = &t
		s.mu.Unlock()
		s.logger.Info("sot sync completed", "event_type", eventType, "business_id", profile.BusinessID, "pushed", pushed)
	}

	s.writeLog(ctx, eventType, status, details)
	s.metrics.ObserveSync(eventType, status, now)

	if res.Success {
		s.publish(ctx, events.TopicSOTSynced, events.SOTSynced{
			EventType: eventType, BusinessID: profile.BusinessID, Attempts: attempt,
		})
	} else {
		s.publish(ctx, events.TopicSOTSyncFailed, events.SOTSyncFailed{
			EventType: eventType, Error: res.Error, Attempts: attempt,
		})
	}
	return res
}

// sync builds and stores the profile, then pushes it to the declared
// callback. The local copy is kept even when the push fails.
func (s *Service) sync(ctx context.Context, now time.Time) (*model.ClientProfile, bool, error) {
	snap, err := loadSnapshot(ctx, s.store)
	if err != nil {
		return nil, false, err
	}
	profile := buildProfile(snap, s.defaults, now)

	local, err := toLocalProfile(profile, now)
	if err != nil {
		return profile, false, err
	}
	if err := s.store.UpsertSOTClientProfile(ctx, local); err != nil {
		return profile, false, fmt.Errorf("store client profile: %w", err)
	}

	decl := snap.declaration
	if decl == nil || decl.CallbackURL == "" {
		s.logger.Info("no sot callback declared, skipping push")
		return profile, false, nil
	}

	payload := &Payload{
		InstanceID:       decl.InstanceID,
		InstanceType:     decl.InstanceType,
		BlueprintVersion: decl.BlueprintVersion,
		Profile:          profile,
		Timestamp:        now,
	}
	if err := push(ctx, s.client, decl.CallbackURL, s.apiKey, payload); err != nil {
		local.SyncStatus = "error"
		local.SyncMessage = err.Error()
		if uerr := s.store.UpsertSOTClientProfile(ctx, local); uerr != nil {
			s.logger.Warn("failed to record push failure", "err", uerr)
		}
		return profile, false, err
	}

	if decl.Status == model.DeclarationPending {
		decl.Status = model.DeclarationActive
	}
	decl.LastSyncAt = &now
	if err := s.store.UpdateSOTDeclaration(ctx, decl); err != nil {
		return profile, true, fmt.Errorf("update declaration: %w", err)
	}

	s.archiveSnapshot(ctx, payload)
	return profile, true, nil
}

func toLocalProfile(p *model.ClientProfile, now time.Time) (*model.SOTClientProfile, error) {
	loc, err := json.Marshal(p.Location)
	if err != nil {
		return nil, fmt.Errorf("marshal location: %w", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	return &model.SOTClientProfile{
		BusinessID:   p.BusinessID,
		BusinessName: p.BusinessName,
		BusinessType: p.BusinessType,
		Industry:     p.Industry,
		Description:  p.Description,
		LocationData: loc,
		ProfileData:  data,
		SyncStatus:   "synced",
		SyncMessage:  "Sync completed successfully",
		LastSyncAt:   &now,
	}, nil
}

// archiveSnapshot is best effort; failures are only logged.
func (s *Service) archiveSnapshot(ctx context.Context, payload *Payload) {
	if s.archive == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode profile snapshot", "err", err)
		return
	}
	name := snapshotName(payload.Profile.BusinessID, payload.Timestamp)
	if err := s.archive.Write(ctx, name, data); err != nil {
		s.logger.Warn("failed to archive profile snapshot", "err", err, "name", name)
	}
}

func (s *Service) writeLog(ctx context.Context, eventType, status string, details map[string]any) {
	raw, err := json.Marshal(details)
	if err != nil {
		s.logger.Warn("failed to encode sync log details", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	if err := s.store.CreateSOTSyncLog(ctx, &model.SOTSyncLog{
		EventType: eventType, Status: status, Details: raw,
	}); err != nil {
		s.logger.Error("failed to write sync log", "err", err)
	}
}

func (s *Service) publish(ctx context.Context, topic string, event any) {
	if err := s.pub.Publish(context.WithoutCancel(ctx), topic, event); err != nil {
		s.logger.Warn("failed to publish sync event", "err", err, "topic", topic)
	}
}

// BusinessID returns the id the stored client profile is keyed by: the
// latest declaration's instance id, or the default business id.
func (s *Service) BusinessID(ctx context.Context) (string, error) {
	decl, err := s.store.GetLatestSOTDeclaration(ctx)
	if err := ignoreNotFound(err); err != nil {
		return "", fmt.Errorf("latest declaration: %w", err)
	}
	if decl != nil && decl.InstanceID != "" {
		return decl.InstanceID, nil
	}
	return s.defaults.BusinessID, nil
}
