package embed

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store/memory"
)

func newService(t *testing.T) (*Service, *memory.Store, *metrics.Metrics) {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	for _, tn := range []*model.Tenant{
		{ID: "acme", Name: "Acme", Status: model.TenantActive},
		{ID: "gone", Name: "Gone", Status: model.TenantSuspended},
	} {
		if err := st.CreateTenant(ctx, tn); err != nil {
			t.Fatalf("CreateTenant: %v", err)
		}
	}
	m := metrics.New()
	return New(st, m), st, m
}

func TestScript(t *testing.T) {
	js, err := Script("acme", "https://app.example.com/")
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if !strings.Contains(js, `var TENANT_ID = "acme";`) {
		t.Error("tenant id not embedded")
	}
	if !strings.Contains(js, `var BASE_URL = "https://app.example.com";`) {
		t.Error("base url not embedded")
	}
	if !strings.Contains(js, "/api/analytics/page-view") || !strings.Contains(js, "window.NextMonthSmartSite") {
		t.Error("script missing tracking calls")
	}
}

func TestScript_EscapesTenantID(t *testing.T) {
	js, err := Script(`x";alert(1);</script><script>"`, "")
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if strings.Contains(js, "</script>") || strings.Contains(js, `"x";alert(1)`) {
		t.Errorf("tenant id not escaped:\n%s", js[:200])
	}
}

func TestCode(t *testing.T) {
	got := Code("a b&c", "https://app.example.com")
	want := `<script src="https://app.example.com/embed.js?tenantId=a+b%26c" async></script>`
	if got != want {
		t.Errorf("Code = %s, want %s", got, want)
	}
}

func TestValidateTenant(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.ValidateTenant(ctx, "acme"); err != nil {
		t.Errorf("acme: %v", err)
	}
	for _, id := range []string{"missing", "gone"} {
		if _, err := svc.ValidateTenant(ctx, id); !errors.Is(err, ErrInvalidTenant) {
			t.Errorf("%s: error = %v, want ErrInvalidTenant", id, err)
		}
	}
}

func TestTrackPageView(t *testing.T) {
	svc, _, m := newService(t)
	ctx := context.Background()

	err := svc.TrackPageView(ctx, PageView{TenantID: "acme", SessionID: "s1"}, Client{})
	var ve *model.ValidationError
	if !errors.As(err, &ve) || ve.Errors[0].Field != "pageUrl" {
		t.Fatalf("missing pageUrl error = %v", err)
	}
	if err := svc.TrackPageView(ctx, PageView{TenantID: "missing", SessionID: "s1", PageURL: "/"}, Client{}); !errors.Is(err, ErrInvalidTenant) {
		t.Fatalf("unknown tenant error = %v", err)
	}
	if err := svc.TrackPageView(ctx, PageView{TenantID: "acme", SessionID: "s1", PageURL: "/"}, Client{UserAgent: "ua", IPAddress: "10.0.0.1"}); err != nil {
		t.Fatalf("TrackPageView: %v", err)
	}
	if got := testutil.ToFloat64(m.EmbedEvents.WithLabelValues(model.EmbedPageView)); got != 1 {
		t.Errorf("page view metric = %v", got)
	}
}

func TestTrackEvent(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	err := svc.TrackEvent(ctx, Event{TenantID: "acme", SessionID: "s1", PageURL: "/"}, Client{})
	var ve *model.ValidationError
	if !errors.As(err, &ve) || ve.Errors[0].Field != "eventName" {
		t.Fatalf("missing eventName error = %v", err)
	}
	ev := Event{TenantID: "acme", SessionID: "s1", PageURL: "/", EventName: "chat_widget_clicked", EventData: json.RawMessage(`{"x":1}`)}
	if err := svc.TrackEvent(ctx, ev, Client{}); err != nil {
		t.Fatalf("TrackEvent: %v", err)
	}
}

func TestSummary(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Minute)

	for _, pv := range []PageView{
		{TenantID: "acme", SessionID: "s1", PageURL: "/"},
		{TenantID: "acme", SessionID: "s1", PageURL: "/pricing"},
		{TenantID: "acme", SessionID: "s2", PageURL: "/"},
	} {
		if err := svc.TrackPageView(ctx, pv, Client{}); err != nil {
			t.Fatalf("TrackPageView: %v", err)
		}
	}
	_ = svc.TrackEvent(ctx, Event{TenantID: "acme", SessionID: "s2", PageURL: "/", EventName: "signup"}, Client{})

	sum, err := svc.Summary(ctx, "acme", start, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.PageViews != 3 || sum.UniqueSessions != 2 || sum.Events != 1 {
		t.Errorf("summary = %+v", sum.AnalyticsSummary)
	}
	if len(sum.TopPages) != 2 || sum.TopPages[0].PageURL != "/" || sum.TopPages[0].Views != 2 {
		t.Errorf("top pages = %+v", sum.TopPages)
	}

	// An older window sees nothing.
	sum, err = svc.Summary(ctx, "acme", start.Add(-time.Hour), start)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.PageViews != 0 || sum.TopPages == nil {
		t.Errorf("empty summary = %+v", sum.AnalyticsSummary)
	}
}

func TestSummary_Validation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	var ve *model.ValidationError
	if _, err := svc.Summary(ctx, "", time.Time{}, time.Time{}); !errors.As(err, &ve) {
		t.Errorf("missing tenant error = %v", err)
	}
	now := time.Now()
	if _, err := svc.Summary(ctx, "acme", now, now.Add(-time.Hour)); !errors.As(err, &ve) {
		t.Errorf("inverted range error = %v", err)
	}
	sum, err := svc.Summary(ctx, "acme", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if d := sum.End.Sub(sum.Start); d != DefaultWindow {
		t.Errorf("default window = %v", d)
	}
}
