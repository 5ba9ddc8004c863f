package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

const (
	DefaultInterval = 60 * time.Second
	// DefaultLogRetention bounds health_metric_logs.
	DefaultLogRetention = 7 * 24 * time.Hour
)

// UserMessage is shown to end users during a critical incident.
const UserMessage = "We're refreshing part of the system to ensure optimal performance.\n" +
	"Please retry shortly, everything's under active care."

// Options configures a Monitor.
type Options struct {
	// Interval between evaluations. Default: DefaultInterval.
	Interval time.Duration
	// LogRetention is how long metric logs are kept. Default: DefaultLogRetention.
	LogRetention time.Duration
	Publisher    events.Publisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Monitor evaluates enabled metrics on an interval and opens incidents.
type Monitor struct {
	store   store.Store
	tracker *Tracker
	opts    Options
	pub     events.Publisher
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor reading from tracker.
func NewMonitor(s store.Store, tracker *Tracker, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.LogRetention <= 0 {
		opts.LogRetention = DefaultLogRetention
	}
	pub := opts.Publisher
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:   s,
		tracker: tracker,
		opts:    opts,
		pub:     pub,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Tracker returns the tracker the monitor reads.
func (m *Monitor) Tracker() *Tracker { return m.tracker }

// Start runs an evaluation immediately and then on every interval until
// Stop. Calling Start twice is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.opts.Interval)
		defer ticker.Stop()
		for {
			if err := m.Evaluate(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("health evaluation failed", "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	m.logger.Info("health monitor started", "interval", m.opts.Interval)
}

// Stop cancels the loop and waits for an in-flight evaluation.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

// Evaluate checks every enabled metric once, then prunes old samples and
// logs. A failing metric is logged and does not stop the others.
func (m *Monitor) Evaluate(ctx context.Context) error {
	all, err := m.store.ListHealthMetrics(ctx)
	if err != nil {
		return fmt.Errorf("list metrics: %w", err)
	}
	for _, metric := range all {
		if !metric.Enabled {
			continue
		}
		if err := m.evaluateMetric(ctx, metric); err != nil {
			m.logger.Error("failed to evaluate metric", "err", err, "metric", metric.Name)
		}
	}

	m.tracker.Prune(m.tracker.now().Add(-Retention))
	if _, err := m.store.DeleteHealthMetricLogsBefore(ctx, m.now().Add(-m.opts.LogRetention)); err != nil {
		m.logger.Warn("failed to prune metric logs", "err", err)
	}
	return nil
}

func (m *Monitor) evaluateMetric(ctx context.Context, metric *model.HealthMetric) error {
	th, err := metric.ParseThreshold()
	if err != nil {
		return fmt.Errorf("parse threshold: %w", err)
	}
	r := m.tracker.Read(metric.Name, th)

	value, err := json.Marshal(map[string]any{"value": r.Value, "details": r.Details})
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	if err := m.store.CreateHealthMetricLog(ctx, &model.HealthMetricLog{MetricID: metric.ID, Value: value, RecordedAt: m.now()}); err != nil {
		return fmt.Errorf("log value: %w", err)
	}
	if !r.Exceeded {
		return nil
	}
	_, err = m.openIncident(ctx, metric, r)
	return err
}

// openIncident records an incident for metric unless one is already
// active. It returns nil, nil when an active incident exists.
func (m *Monitor) openIncident(ctx context.Context, metric *model.HealthMetric, r Reading) (*model.HealthIncident, error) {
	details := make(map[string]any, len(r.Details)+3)
	for k, v := range r.Details {
		details[k] = v
	}
	details["metricName"] = metric.Name
	details["metricCategory"] = metric.Category
	details["value"] = r.Value
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}

	var created *model.HealthIncident
	err = m.store.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetActiveIncident(ctx, metric.ID); err == nil {
			return nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check active incident: %w", err)
		}

		inc := &model.HealthIncident{
			MetricID:      metric.ID,
			Status:        model.IncidentActive,
			Severity:      Severity(r.Value, r.Limit),
			AffectedArea:  AffectedArea(metric.Name),
			AffectedUsers: r.Sessions,
			Details:       raw,
			DetectedAt:    m.now(),
		}
		if err := tx.CreateHealthIncident(ctx, inc); err != nil {
			return fmt.Errorf("create incident: %w", err)
		}
		notes := []*model.HealthNotification{{IncidentID: inc.ID, Type: model.NotifyAdmin, Status: model.NotificationPending, Message: AdminMessage(inc)}}
		if inc.Severity == model.SeverityCritical {
			notes = append(notes, &model.HealthNotification{IncidentID: inc.ID, Type: model.NotifyUser, Status: model.NotificationPending, Message: UserMessage})
		}
		for _, n := range notes {
			if err := tx.CreateHealthNotification(ctx, n); err != nil {
				return fmt.Errorf("create %s notification: %w", n.Type, err)
			}
		}
		inc.MetricName = metric.Name
		created = inc
		return nil
	})
	if err != nil || created == nil {
		return nil, err
	}

	m.opts.Metrics.ObserveIncident(metric.Name, created.Severity)
	if err := m.pub.Publish(ctx, events.TopicIncidentOpened, events.IncidentOpened{Incident: created}); err != nil {
		m.logger.Warn("failed to publish incident", "err", err, "incident_id", created.ID)
	}
	m.logger.Warn("health incident opened",
		"incident_id", created.ID,
		"metric", metric.Name,
		"severity", created.Severity,
		"value", r.Value)
	return created, nil
}

// Severity is critical when value is more than twice the limit.
func Severity(value, limit float64) string {
	if value > 2*limit {
		return model.SeverityCritical
	}
	return model.SeverityWarning
}

// AffectedArea names the part of the product a metric covers.
func AffectedArea(metric string) string {
	switch metric {
	case model.MetricAPIErrorRate:
		return "API Services"
	case model.MetricDashboardLoadTime:
		return "Dashboard Performance"
	case model.MetricLoginFailureRate:
		return "User Authentication"
	case model.MetricMediaUploadFailure:
		return "Media Upload System"
	default:
		return "General System"
	}
}

// AdminMessage is the admin notification text for inc.
func AdminMessage(inc *model.HealthIncident) string {
	icon := "⚡"
	if inc.Severity == model.SeverityCritical {
		icon = "⚠️"
	}
	return fmt.Sprintf("%s Health Alert:\n%s has exceeded safe thresholds.\nImpact detected for %d users.\nMonitoring active.",
		icon, inc.AffectedArea, inc.AffectedUsers)
}

// Incidents returns the latest incidents.
func (m *Monitor) Incidents(ctx context.Context, limit int) ([]*model.HealthIncident, error) {
	if limit <= 0 {
		limit = 10
	}
	return m.store.ListHealthIncidents(ctx, limit)
}

// Resolve marks an incident resolved and publishes the change.
func (m *Monitor) Resolve(ctx context.Context, id int64) (*model.HealthIncident, error) {
	inc, err := m.setStatus(ctx, id, model.IncidentResolved)
	if err != nil {
		return nil, err
	}
	if err := m.pub.Publish(ctx, events.TopicIncidentResolved, events.IncidentResolved{Incident: inc}); err != nil {
		m.logger.Warn("failed to publish incident resolution", "err", err, "incident_id", id)
	}
	return inc, nil
}

func (m *Monitor) Acknowledge(ctx context.Context, id int64) (*model.HealthIncident, error) {
	return m.setStatus(ctx, id, model.IncidentAcknowledged)
}

func (m *Monitor) setStatus(ctx context.Context, id int64, status string) (*model.HealthIncident, error) {
	if err := m.store.SetIncidentStatus(ctx, id, status, m.now()); err != nil {
		return nil, err
	}
	return m.store.GetHealthIncident(ctx, id)
}

// PendingAdminNotifications lists undelivered admin notifications.
func (m *Monitor) PendingAdminNotifications(ctx context.Context) ([]*model.HealthNotification, error) {
	return m.store.ListPendingNotifications(ctx, model.NotifyAdmin)
}

func (m *Monitor) MarkDelivered(ctx context.Context, id int64) error {
	return m.store.MarkNotificationDelivered(ctx, id, m.now())
}
