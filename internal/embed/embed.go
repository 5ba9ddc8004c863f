// Package embed serves the tenant embed script and records the page views
// and events it reports.
package embed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

// DefaultWindow is the summary range when no start date is given.
const DefaultWindow = 30 * 24 * time.Hour

// ErrInvalidTenant wraps sql.ErrNoRows for unknown or inactive tenants.
var ErrInvalidTenant = fmt.Errorf("invalid tenant id: %w", sql.ErrNoRows)

// Service records embed analytics.
type Service struct {
	store   store.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(s store.Store, m *metrics.Metrics) *Service {
	return &Service{store: s, metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

// ValidateTenant returns the tenant when it exists and is active.
func (s *Service) ValidateTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	t, err := s.store.GetTenant(ctx, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidTenant
	}
	if err != nil {
		return nil, err
	}
	if t.Status != model.TenantActive {
		return nil, ErrInvalidTenant
	}
	return t, nil
}

// PageView is reported by the embed script on load.
type PageView struct {
	TenantID  string `json:"tenantId"`
	SessionID string `json:"sessionId"`
	PageURL   string `json:"pageUrl"`
	PageTitle string `json:"pageTitle"`
	Referrer  string `json:"referrer"`
}

// Event is a custom event reported through trackEvent.
type Event struct {
	TenantID  string          `json:"tenantId"`
	SessionID string          `json:"sessionId"`
	PageURL   string          `json:"pageUrl"`
	EventName string          `json:"eventName"`
	EventData json.RawMessage `json:"eventData"`
}

// Client identifies the browser that sent a report.
type Client struct {
	UserAgent string
	IPAddress string
}

func required(fields ...[2]string) error {
	var errs []model.FieldError
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			errs = append(errs, model.FieldError{Field: f[0], Message: "is required"})
		}
	}
	if len(errs) > 0 {
		return &model.ValidationError{Errors: errs}
	}
	return nil
}

func (s *Service) TrackPageView(ctx context.Context, pv PageView, c Client) error {
	if err := required([2]string{"tenantId", pv.TenantID}, [2]string{"sessionId", pv.SessionID}, [2]string{"pageUrl", pv.PageURL}); err != nil {
		return err
	}
	if _, err := s.ValidateTenant(ctx, pv.TenantID); err != nil {
		return err
	}
	rec := &model.EmbedEventRecord{
		TenantID:  pv.TenantID,
		SessionID: pv.SessionID,
		Kind:      model.EmbedPageView,
		PageURL:   pv.PageURL,
		PageTitle: pv.PageTitle,
		Referrer:  pv.Referrer,
		UserAgent: c.UserAgent,
		IPAddress: c.IPAddress,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateEmbedEvent(ctx, rec); err != nil {
		return fmt.Errorf("record page view: %w", err)
	}
	s.metrics.ObserveEmbed(model.EmbedPageView)
	return nil
}

func (s *Service) TrackEvent(ctx context.Context, ev Event, c Client) error {
	if err := required([2]string{"tenantId", ev.TenantID}, [2]string{"sessionId", ev.SessionID}, [2]string{"pageUrl", ev.PageURL}, [2]string{"eventName", ev.EventName}); err != nil {
		return err
	}
	if _, err := s.ValidateTenant(ctx, ev.TenantID); err != nil {
		return err
	}
	rec := &model.EmbedEventRecord{
		TenantID:  ev.TenantID,
		SessionID: ev.SessionID,
		Kind:      model.EmbedEvent,
		PageURL:   ev.PageURL,
		EventName: ev.EventName,
		EventData: ev.EventData,
		UserAgent: c.UserAgent,
		IPAddress: c.IPAddress,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateEmbedEvent(ctx, rec); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	s.metrics.ObserveEmbed(model.EmbedEvent)
	return nil
}

// Summary is the analytics summary with the range it covers.
type Summary struct {
	*model.AnalyticsSummary
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Summary aggregates tenantID's events between from and to. A zero from
// means DefaultWindow before to; a zero to means now.
func (s *Service) Summary(ctx context.Context, tenantID string, from, to time.Time) (*Summary, error) {
	if err := required([2]string{"tenantId", tenantID}); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-DefaultWindow)
	}
	if from.After(to) {
		return nil, &model.ValidationError{Errors: []model.FieldError{{Field: "startDate", Message: "must not be after endDate"}}}
	}
	sum, err := s.store.GetAnalyticsSummary(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("analytics summary: %w", err)
	}
	if sum.TopPages == nil {
		sum.TopPages = []model.PageCount{}
	}
	return &Summary{AnalyticsSummary: sum, Start: from, End: to}, nil
}
