package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store/memory"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingPublisher struct {
	mu  sync.Mutex
	got map[string][]any
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.got == nil {
		p.got = map[string][]any{}
	}
	p.got[topic] = append(p.got[topic], event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got[topic])
}

// clock is a settable time source for trackers.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTracker() (*Tracker, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	t := NewTracker()
	t.now = c.now
	return t, c
}

func TestTracker_APIErrors(t *testing.T) {
	tr, _ := newTracker()
	tr.TrackAPIError("/api/bookings", 500, "s1")
	tr.TrackAPIError("/api/bookings", 503, "s2")
	tr.TrackAPIError("/api/portal", 502, "s1")
	tr.TrackAPIError("/api/portal", 404, "s3") // ignored

	r := tr.Read(model.MetricAPIErrorRate, model.Threshold{ErrorCount: 3})
	if r.Value != 3 || !r.Exceeded || r.Sessions != 2 {
		t.Errorf("reading = %+v, want 3 errors, exceeded, 2 sessions", r)
	}

	r = tr.Read(model.MetricAPIErrorRate, model.Threshold{ErrorCount: 3, Routes: []string{"/api/portal"}})
	if r.Value != 1 || r.Exceeded {
		t.Errorf("portal-only reading = %+v", r)
	}
	if got := r.Details["routeDetails"].(map[string]int)["/api/portal"]; got != 1 {
		t.Errorf("routeDetails[/api/portal] = %d", got)
	}
}

func TestTracker_APIErrorsWindow(t *testing.T) {
	tr, c := newTracker()
	tr.TrackAPIError("/api/x", 500, "")
	c.advance(6 * time.Minute)
	tr.TrackAPIError("/api/x", 500, "")

	r := tr.Read(model.MetricAPIErrorRate, model.Threshold{})
	if r.Value != 1 {
		t.Errorf("value = %v, want 1 inside the default 300s window", r.Value)
	}
	r = tr.Read(model.MetricAPIErrorRate, model.Threshold{TimeWindow: 600})
	if r.Value != 2 {
		t.Errorf("value = %v, want 2 inside a 600s window", r.Value)
	}
	if r.Limit != DefaultErrorCount {
		t.Errorf("limit = %v, want default", r.Limit)
	}
}

func TestTracker_LoadTimes(t *testing.T) {
	tr, _ := newTracker()
	tr.TrackPageLoad("/pricing", 99999, "s0") // not a dashboard
	if r := tr.Read(model.MetricDashboardLoadTime, model.Threshold{}); r.Value != 0 || r.Exceeded {
		t.Errorf("empty reading = %+v", r)
	}

	for i, ms := range []float64{10000, 1000, 2000, 6000} {
		tr.TrackPageLoad("/admin/dashboard", ms, string(rune('a'+i)))
	}
	// Only the last three samples count.
	r := tr.Read(model.MetricDashboardLoadTime, model.Threshold{SampleSize: 3})
	if r.Value != 3000 || r.Exceeded {
		t.Errorf("reading = %+v, want avg 3000 not exceeded", r)
	}
	if r.Sessions != 3 {
		t.Errorf("sessions = %d, want 3", r.Sessions)
	}
	r = tr.Read(model.MetricDashboardLoadTime, model.Threshold{SampleSize: 3, MaxLoadTime: 2500})
	if !r.Exceeded {
		t.Errorf("reading = %+v, want exceeded", r)
	}
}

func TestTracker_LoginFailures(t *testing.T) {
	tr, _ := newTracker()
	tr.TrackLoginFailure("s1")
	if r := tr.Read(model.MetricLoginFailureRate, model.Threshold{}); r.Exceeded {
		t.Errorf("one failure exceeded: %+v", r)
	}
	tr.TrackLoginFailure("s2")
	r := tr.Read(model.MetricLoginFailureRate, model.Threshold{})
	if r.Value != 0.2 || !r.Exceeded || r.Sessions != 2 {
		t.Errorf("reading = %+v, want rate 0.2 exceeded", r)
	}
}

func TestTracker_LoginFailuresSeededThreshold(t *testing.T) {
	metrics, err := memory.New().ListHealthMetrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var th model.Threshold
	for _, m := range metrics {
		if m.Name == model.MetricLoginFailureRate {
			if th, err = m.ParseThreshold(); err != nil {
				t.Fatal(err)
			}
		}
	}

	tr, c := newTracker()
	tr.TrackLoginFailure("s1")
	tr.TrackLoginFailure("s2")
	c.advance(400 * time.Second)
	r := tr.Read(model.MetricLoginFailureRate, th)
	if r.Value != 0.2 || !r.Exceeded {
		t.Errorf("reading after 400s = %+v, want rate 0.2 exceeded", r)
	}
	c.advance(201 * time.Second)
	if r := tr.Read(model.MetricLoginFailureRate, th); r.Value != 0 || r.Exceeded {
		t.Errorf("reading after 601s = %+v, want empty window", r)
	}
}

func TestTracker_Uploads(t *testing.T) {
	tr, _ := newTracker()
	if r := tr.Read(model.MetricMediaUploadFailure, model.Threshold{}); r.Value != 0 || r.Exceeded {
		t.Errorf("empty reading = %+v", r)
	}
	tr.TrackMediaUpload(true, "a")
	tr.TrackMediaUpload(true, "b")
	tr.TrackMediaUpload(true, "c")
	tr.TrackMediaUpload(false, "d")
	r := tr.Read(model.MetricMediaUploadFailure, model.Threshold{FailureRate: 0.2})
	if r.Value != 0.25 || !r.Exceeded || r.Sessions != 1 {
		t.Errorf("reading = %+v, want 0.25 exceeded 1 session", r)
	}
}

func TestTracker_Prune(t *testing.T) {
	tr, c := newTracker()
	tr.TrackAPIError("/api/a", 500, "")
	tr.TrackLoginFailure("")
	tr.TrackMediaUpload(false, "")
	c.advance(2 * time.Hour)
	tr.TrackPageLoad("dashboard", 100, "")

	if n := tr.Prune(c.now().Add(-Retention)); n != 3 {
		t.Errorf("pruned %d, want 3", n)
	}
	if len(tr.apiErrors) != 0 || len(tr.loadTimes) != 1 {
		t.Errorf("after prune: apiErrors=%d loadTimes=%d", len(tr.apiErrors), len(tr.loadTimes))
	}
}

func TestTracker_UnknownMetric(t *testing.T) {
	tr, _ := newTracker()
	if r := tr.Read("disk_usage", model.Threshold{}); r.Exceeded || r.Details == nil {
		t.Errorf("reading = %+v", r)
	}
}

func newMonitor(t *testing.T) (*Monitor, *memory.Store, *recordingPublisher, *metrics.Metrics) {
	t.Helper()
	st := memory.New()
	pub := &recordingPublisher{}
	m := metrics.New()
	tr, _ := newTracker()
	mon := NewMonitor(st, tr, Options{Publisher: pub, Metrics: m, Logger: quiet})
	return mon, st, pub, m
}

func TestMonitor_OpensCriticalIncident(t *testing.T) {
	mon, st, pub, m := newMonitor(t)
	ctx := context.Background()
	for i := 0; i < 11; i++ {
		mon.Tracker().TrackAPIError("/api/bookings", 500, []string{"s1", "s2", "s3"}[i%3])
	}

	if err := mon.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	incs, err := mon.Incidents(ctx, 10)
	if err != nil {
		t.Fatalf("Incidents: %v", err)
	}
	if len(incs) != 1 {
		t.Fatalf("incidents = %d, want 1", len(incs))
	}
	inc := incs[0]
	if inc.Severity != model.SeverityCritical || inc.AffectedArea != "API Services" || inc.AffectedUsers != 3 {
		t.Errorf("incident = %+v", inc)
	}
	var details map[string]any
	if err := json.Unmarshal(inc.Details, &details); err != nil {
		t.Fatalf("details: %v", err)
	}
	if details["metricName"] != model.MetricAPIErrorRate || details["value"] != 11.0 {
		t.Errorf("details = %v", details)
	}

	admin, _ := st.ListPendingNotifications(ctx, model.NotifyAdmin)
	user, _ := st.ListPendingNotifications(ctx, model.NotifyUser)
	if len(admin) != 1 || len(user) != 1 {
		t.Fatalf("notifications admin=%d user=%d, want 1 each", len(admin), len(user))
	}
	if !strings.Contains(admin[0].Message, "API Services has exceeded safe thresholds") {
		t.Errorf("admin message = %q", admin[0].Message)
	}
	if user[0].Message != UserMessage {
		t.Errorf("user message = %q", user[0].Message)
	}
	if pub.count(events.TopicIncidentOpened) != 1 {
		t.Errorf("incident events = %d, want 1", pub.count(events.TopicIncidentOpened))
	}
	if got := testutil.ToFloat64(m.HealthIncidents.WithLabelValues(model.MetricAPIErrorRate, model.SeverityCritical)); got != 1 {
		t.Errorf("incident metric = %v, want 1", got)
	}

	// Every enabled metric was logged.
	for id := int64(1); id <= 4; id++ {
		if n := len(st.MetricLogs(id)); n != 1 {
			t.Errorf("metric %d logs = %d, want 1", id, n)
		}
	}

	// A second evaluation keeps the single active incident.
	if err := mon.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	incs, _ = mon.Incidents(ctx, 10)
	if len(incs) != 1 || pub.count(events.TopicIncidentOpened) != 1 {
		t.Errorf("incidents = %d events = %d after re-evaluation", len(incs), pub.count(events.TopicIncidentOpened))
	}
}

func TestMonitor_WarningIncident(t *testing.T) {
	mon, st, _, _ := newMonitor(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		mon.Tracker().TrackAPIError("/api/portal", 500, "")
	}
	if err := mon.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	incs, _ := mon.Incidents(ctx, 10)
	if len(incs) != 1 || incs[0].Severity != model.SeverityWarning || incs[0].AffectedUsers != 0 {
		t.Fatalf("incidents = %+v", incs)
	}
	user, _ := st.ListPendingNotifications(ctx, model.NotifyUser)
	if len(user) != 0 {
		t.Errorf("user notifications = %d, want 0 for a warning", len(user))
	}
}

func TestMonitor_SkipsDisabledMetric(t *testing.T) {
	mon, st, _, _ := newMonitor(t)
	ctx := context.Background()
	metric, err := st.GetHealthMetric(ctx, 1)
	if err != nil {
		t.Fatalf("GetHealthMetric: %v", err)
	}
	metric.Enabled = false
	if err := st.UpdateHealthMetric(ctx, metric); err != nil {
		t.Fatalf("UpdateHealthMetric: %v", err)
	}
	for i := 0; i < 20; i++ {
		mon.Tracker().TrackAPIError("/api/x", 500, "")
	}
	if err := mon.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if incs, _ := mon.Incidents(ctx, 10); len(incs) != 0 {
		t.Errorf("incidents = %d, want 0", len(incs))
	}
	if n := len(st.MetricLogs(1)); n != 0 {
		t.Errorf("disabled metric logs = %d", n)
	}
}

func TestMonitor_ListFailure(t *testing.T) {
	mon, st, _, _ := newMonitor(t)
	st.FailOn("ListHealthMetrics", errors.New("db down"))
	if err := mon.Evaluate(context.Background()); err == nil {
		t.Error("Evaluate succeeded with failing store")
	}
}

func TestMonitor_ResolveAndAcknowledge(t *testing.T) {
	mon, _, pub, _ := newMonitor(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mon.Tracker().TrackAPIError("/api/x", 500, "")
	}
	if err := mon.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	incs, _ := mon.Incidents(ctx, 10)
	if len(incs) != 1 {
		t.Fatalf("incidents = %d", len(incs))
	}
	id := incs[0].ID

	inc, err := mon.Acknowledge(ctx, id)
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if inc.Status != model.IncidentAcknowledged || inc.ResolvedAt != nil {
		t.Errorf("acknowledged = %+v", inc)
	}

	inc, err = mon.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if inc.Status != model.IncidentResolved || inc.ResolvedAt == nil {
		t.Errorf("resolved = %+v", inc)
	}
	if pub.count(events.TopicIncidentResolved) != 1 {
		t.Error("resolution not published")
	}

	if _, err := mon.Resolve(ctx, 999); err == nil {
		t.Error("Resolve of unknown incident succeeded")
	}
}

func TestMonitor_Notifications(t *testing.T) {
	mon, _, _, _ := newMonitor(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mon.Tracker().TrackAPIError("/api/x", 500, "")
	}
	_ = mon.Evaluate(ctx)

	pending, err := mon.PendingAdminNotifications(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}
	if err := mon.MarkDelivered(ctx, pending[0].ID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if pending, _ = mon.PendingAdminNotifications(ctx); len(pending) != 0 {
		t.Errorf("pending after delivery = %d", len(pending))
	}
}

func TestMonitor_StartStop(t *testing.T) {
	mon, st, _, _ := newMonitor(t)
	mon.opts.Interval = 10 * time.Millisecond
	mon.Start()
	mon.Start()

	deadline := time.Now().Add(2 * time.Second)
	for len(st.MetricLogs(1)) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	mon.Stop()
	mon.Stop()
	if n := len(st.MetricLogs(1)); n < 2 {
		t.Errorf("evaluations = %d, want at least 2", n)
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		value, limit float64
		want         string
	}{
		{5, 5, model.SeverityWarning},
		{10, 5, model.SeverityWarning},
		{10.5, 5, model.SeverityCritical},
		{0.25, 0.1, model.SeverityCritical},
	}
	for _, tt := range tests {
		if got := Severity(tt.value, tt.limit); got != tt.want {
			t.Errorf("Severity(%v, %v) = %s, want %s", tt.value, tt.limit, got, tt.want)
		}
	}
}

func TestAffectedArea(t *testing.T) {
	if got := AffectedArea(model.MetricMediaUploadFailure); got != "Media Upload System" {
		t.Errorf("got %q", got)
	}
	if got := AffectedArea("other"); got != "General System" {
		t.Errorf("got %q", got)
	}
}

func TestAdminMessage(t *testing.T) {
	msg := AdminMessage(&model.HealthIncident{Severity: model.SeverityWarning, AffectedArea: "Dashboard Performance", AffectedUsers: 4})
	want := "⚡ Health Alert:\nDashboard Performance has exceeded safe thresholds.\nImpact detected for 4 users.\nMonitoring active."
	if msg != want {
		t.Errorf("message = %q", msg)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestSample_Validate(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		field  string
	}{
		{"APIError", Sample{Metric: model.MetricAPIErrorRate, Route: "/x", StatusCode: 500}, ""},
		{"APIErrorNoRoute", Sample{Metric: model.MetricAPIErrorRate, StatusCode: 500}, "route"},
		{"LoadTime", Sample{Metric: model.MetricDashboardLoadTime, Page: "dashboard", Value: 10}, ""},
		{"LoadTimeNoValue", Sample{Metric: model.MetricDashboardLoadTime, Page: "dashboard"}, "value"},
		{"Login", Sample{Metric: model.MetricLoginFailureRate}, ""},
		{"UploadNoSuccess", Sample{Metric: model.MetricMediaUploadFailure}, "success"},
		{"Unknown", Sample{Metric: "cpu"}, "metric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sample.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var ve *model.ValidationError
			if !errors.As(err, &ve) || ve.Errors[0].Field != tt.field {
				t.Errorf("error = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestBatcher_FlushOnSize(t *testing.T) {
	st := memory.New()
	tr, _ := newTracker()
	m := metrics.New()
	b := NewBatcher(st, tr, BatchOptions{Size: 3, FlushInterval: time.Hour, Metrics: m, Logger: quiet})
	b.Start()
	defer b.Stop()

	if err := b.Add(
		Sample{Metric: model.MetricAPIErrorRate, Route: "/api/x", StatusCode: 500, SessionID: "s1"},
		Sample{Metric: model.MetricMediaUploadFailure, Success: boolPtr(false)},
	); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if b.Pending() != 2 {
		t.Fatalf("pending = %d, want 2 below the batch size", b.Pending())
	}
	if err := b.Add(Sample{Metric: model.MetricDashboardLoadTime, Page: "/dashboard", Value: 1200}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(st.MetricLogs(2)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d after size flush", b.Pending())
	}
	if n := len(st.MetricLogs(1)); n != 1 {
		t.Errorf("api error logs = %d, want 1", n)
	}
	if r := tr.Read(model.MetricAPIErrorRate, model.Threshold{}); r.Value != 1 {
		t.Errorf("tracked api errors = %v, want 1", r.Value)
	}
	if r := tr.Read(model.MetricMediaUploadFailure, model.Threshold{}); r.Value != 1 {
		t.Errorf("upload failure rate = %v, want 1", r.Value)
	}
	if got := testutil.ToFloat64(m.HealthSamples.WithLabelValues(model.MetricDashboardLoadTime)); got != 1 {
		t.Errorf("sample metric = %v, want 1", got)
	}
}

func TestBatcher_FlushOnInterval(t *testing.T) {
	st := memory.New()
	tr, _ := newTracker()
	b := NewBatcher(st, tr, BatchOptions{Size: 100, FlushInterval: 10 * time.Millisecond, Logger: quiet})
	b.Start()
	defer b.Stop()

	if err := b.Add(Sample{Metric: model.MetricLoginFailureRate, SessionID: "s"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(st.MetricLogs(3)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := len(st.MetricLogs(3)); n != 1 {
		t.Errorf("login logs = %d, want 1", n)
	}
}

func TestBatcher_StopFlushesPending(t *testing.T) {
	st := memory.New()
	tr, _ := newTracker()
	b := NewBatcher(st, tr, BatchOptions{Size: 100, FlushInterval: time.Hour, Logger: quiet})
	b.Start()
	_ = b.Add(Sample{Metric: model.MetricLoginFailureRate})
	b.Stop()

	if b.Pending() != 0 {
		t.Errorf("pending = %d after Stop", b.Pending())
	}
	if n := len(st.MetricLogs(3)); n != 1 {
		t.Errorf("logs = %d, want 1", n)
	}
}

func TestBatcher_RejectsInvalidBatch(t *testing.T) {
	b := NewBatcher(memory.New(), NewTracker(), BatchOptions{Logger: quiet})
	err := b.Add(Sample{Metric: model.MetricLoginFailureRate}, Sample{Metric: "bogus"})
	if err == nil {
		t.Fatal("Add accepted an invalid sample")
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d, want 0", b.Pending())
	}
}

func TestBatcher_LogFailure(t *testing.T) {
	st := memory.New()
	tr, _ := newTracker()
	b := NewBatcher(st, tr, BatchOptions{Logger: quiet})
	_ = b.Add(Sample{Metric: model.MetricLoginFailureRate})
	st.FailOn("CreateHealthMetricLog", errors.New("disk full"))

	n, err := b.Flush(context.Background())
	if n != 1 || err == nil {
		t.Errorf("Flush = %d, %v", n, err)
	}
	// The tracker still saw the sample.
	if r := tr.Read(model.MetricLoginFailureRate, model.Threshold{}); r.Value != 0.1 {
		t.Errorf("rate = %v, want 0.1", r.Value)
	}
}

func TestCheckStatus(t *testing.T) {
	st := CheckStatus(context.Background(), map[string]Check{
		"api":      func(context.Context) error { return nil },
		"database": func(context.Context) error { return errors.New("down") },
	})
	if st.Status != "degraded" {
		t.Errorf("status = %s", st.Status)
	}
	if st.Services["database"].Healthy || st.Services["database"].Error != "database health check failed" {
		t.Errorf("database = %+v", st.Services["database"])
	}
	if !st.Services["api"].Healthy {
		t.Errorf("api = %+v", st.Services["api"])
	}

	if got := CheckStatus(context.Background(), nil).Status; got != "healthy" {
		t.Errorf("empty status = %s", got)
	}
}
