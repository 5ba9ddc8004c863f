package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 5 * time.Second
	flushTimeout         = 10 * time.Second
)

// Sample is one client-reported measurement.
type Sample struct {
	Metric     string  `json:"metric"`
	Value      float64 `json:"value,omitempty"`
	Route      string  `json:"route,omitempty"`
	StatusCode int     `json:"statusCode,omitempty"`
	Page       string  `json:"page,omitempty"`
	Success    *bool   `json:"success,omitempty"`
	SessionID  string  `json:"sessionId,omitempty"`
}

// Validate checks that the fields the metric needs are present.
func (s *Sample) Validate() error {
	var errs []model.FieldError
	switch s.Metric {
	case model.MetricAPIErrorRate:
		if s.Route == "" {
			errs = append(errs, model.FieldError{Field: "route", Message: "is required"})
		}
		if s.StatusCode == 0 {
			errs = append(errs, model.FieldError{Field: "statusCode", Message: "is required"})
		}
	case model.MetricDashboardLoadTime:
		if s.Page == "" {
			errs = append(errs, model.FieldError{Field: "page", Message: "is required"})
		}
		if s.Value <= 0 {
			errs = append(errs, model.FieldError{Field: "value", Message: "must be a positive load time"})
		}
	case model.MetricLoginFailureRate:
	case model.MetricMediaUploadFailure:
		if s.Success == nil {
			errs = append(errs, model.FieldError{Field: "success", Message: "is required"})
		}
	default:
		errs = append(errs, model.FieldError{Field: "metric", Message: fmt.Sprintf("unknown metric %q", s.Metric)})
	}
	if len(errs) > 0 {
		return &model.ValidationError{Errors: errs}
	}
	return nil
}

// BatchOptions configures a Batcher.
type BatchOptions struct {
	Size          int
	FlushInterval time.Duration
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Batcher buffers samples and applies them to the tracker and the metric
// logs when the buffer fills or the flush interval elapses.
type Batcher struct {
	store   store.Store
	tracker *Tracker
	opts    BatchOptions
	logger  *slog.Logger

	mu      sync.Mutex
	pending []Sample
	kick    chan struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBatcher(s store.Store, tracker *Tracker, opts BatchOptions) *Batcher {
	if opts.Size <= 0 {
		opts.Size = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		store:   s,
		tracker: tracker,
		opts:    opts,
		logger:  logger,
		kick:    make(chan struct{}, 1),
	}
}

// Add validates and buffers samples. Either all samples are buffered or
// none are.
func (b *Batcher) Add(samples ...Sample) error {
	for i := range samples {
		if err := samples[i].Validate(); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.pending = append(b.pending, samples...)
	full := len(b.pending) >= b.opts.Size
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending reports how many samples wait for the next flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batcher) Start() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.opts.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-b.kick:
			}
			b.flushLogged(ctx)
		}
	}()
}

// Stop ends the flush loop and flushes whatever is still buffered.
func (b *Batcher) Stop() {
	b.runMu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.runMu.Unlock()
	if cancel != nil {
		cancel()
		b.wg.Wait()
	}
	ctx, done := context.WithTimeout(context.Background(), flushTimeout)
	defer done()
	b.flushLogged(ctx)
}

func (b *Batcher) flushLogged(ctx context.Context) {
	if n, err := b.Flush(ctx); err != nil {
		b.logger.Error("failed to flush health samples", "err", err, "samples", n)
	}
}

// Flush applies buffered samples now and returns how many were taken.
// Tracker updates always happen; a failed log write is reported after the
// remaining samples have been written.
func (b *Batcher) Flush(ctx context.Context) (int, error) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return 0, nil
	}

	for _, s := range batch {
		b.apply(s)
		b.opts.Metrics.ObserveHealthSample(s.Metric)
	}

	all, err := b.store.ListHealthMetrics(ctx)
	if err != nil {
		return len(batch), fmt.Errorf("list metrics: %w", err)
	}
	ids := make(map[string]int64, len(all))
	for _, m := range all {
		ids[m.Name] = m.ID
	}

	var firstErr error
	now := time.Now().UTC()
	for _, s := range batch {
		id, ok := ids[s.Metric]
		if !ok {
			continue
		}
		value, err := json.Marshal(s)
		if err != nil {
			return len(batch), fmt.Errorf("marshal sample: %w", err)
		}
		if err := b.store.CreateHealthMetricLog(ctx, &model.HealthMetricLog{MetricID: id, Value: value, RecordedAt: now}); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("log %s sample: %w", s.Metric, err)
		}
	}
	return len(batch), firstErr
}

func (b *Batcher) apply(s Sample) {
	switch s.Metric {
	case model.MetricAPIErrorRate:
		b.tracker.TrackAPIError(s.Route, s.StatusCode, s.SessionID)
	case model.MetricDashboardLoadTime:
		b.tracker.TrackPageLoad(s.Page, s.Value, s.SessionID)
	case model.MetricLoginFailureRate:
		b.tracker.TrackLoginFailure(s.SessionID)
	case model.MetricMediaUploadFailure:
		b.tracker.TrackMediaUpload(*s.Success, s.SessionID)
	}
}
