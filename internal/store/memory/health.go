package memory

import (
	"context"
	"sort"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

func (s *Store) ListHealthMetrics(_ context.Context) ([]*model.HealthMetric, error) {
	if err := s.lock("ListHealthMetrics"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.HealthMetric
	for _, m := range s.data.metrics {
		out = append(out, cp(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetHealthMetric(_ context.Context, id int64) (*model.HealthMetric, error) {
	if err := s.lock("GetHealthMetric"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	m, ok := s.data.metrics[id]
	if !ok {
		return nil, notFound("health metric", id)
	}
	return cp(m), nil
}

func (s *Store) UpdateHealthMetric(_ context.Context, m *model.HealthMetric) error {
	if err := s.lock("UpdateHealthMetric"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	old, ok := s.data.metrics[m.ID]
	if !ok {
		return notFound("health metric", m.ID)
	}
	m.Name, m.Category, m.CreatedAt = old.Name, old.Category, old.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	s.data.metrics[m.ID] = cp(m)
	return nil
}

func (s *Store) CreateHealthMetricLog(_ context.Context, l *model.HealthMetricLog) error {
	if err := s.lock("CreateHealthMetricLog"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if _, ok := s.data.metrics[l.MetricID]; !ok {
		return notFound("health metric", l.MetricID)
	}
	if l.RecordedAt.IsZero() {
		l.RecordedAt = time.Now().UTC()
	}
	l.ID = s.data.next("metricLogs")
	s.data.metricLogs[l.ID] = cp(l)
	return nil
}

func (s *Store) DeleteHealthMetricLogsBefore(_ context.Context, before time.Time) (int64, error) {
	if err := s.lock("DeleteHealthMetricLogsBefore"); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	var n int64
	for id, l := range s.data.metricLogs {
		if l.RecordedAt.Before(before) {
			delete(s.data.metricLogs, id)
			n++
		}
	}
	return n, nil
}

// MetricLogs returns the stored logs of metricID in insertion order.
func (s *Store) MetricLogs(metricID int64) []*model.HealthMetricLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.HealthMetricLog
	for _, l := range s.data.metricLogs {
		if l.MetricID == metricID {
			out = append(out, cp(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- Incidents ---

func (s *Store) incidentView(i *model.HealthIncident) *model.HealthIncident {
	c := cp(i)
	if m, ok := s.data.metrics[i.MetricID]; ok {
		c.MetricName = m.Name
	}
	return c
}

func (s *Store) GetActiveIncident(_ context.Context, metricID int64) (*model.HealthIncident, error) {
	if err := s.lock("GetActiveIncident"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var latest *model.HealthIncident
	for _, i := range s.data.incidents {
		if i.MetricID != metricID || i.Status != model.IncidentActive {
			continue
		}
		if latest == nil || i.DetectedAt.After(latest.DetectedAt) {
			latest = i
		}
	}
	if latest == nil {
		return nil, notFound("active incident for metric", metricID)
	}
	return s.incidentView(latest), nil
}

func (s *Store) CreateHealthIncident(_ context.Context, i *model.HealthIncident) error {
	if err := s.lock("CreateHealthIncident"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if _, ok := s.data.metrics[i.MetricID]; !ok {
		return notFound("health metric", i.MetricID)
	}
	if i.DetectedAt.IsZero() {
		i.DetectedAt = time.Now().UTC()
	}
	i.ID = s.data.next("incidents")
	stored := cp(i)
	stored.MetricName = ""
	s.data.incidents[i.ID] = stored
	return nil
}

func (s *Store) GetHealthIncident(_ context.Context, id int64) (*model.HealthIncident, error) {
	if err := s.lock("GetHealthIncident"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	i, ok := s.data.incidents[id]
	if !ok {
		return nil, notFound("health incident", id)
	}
	return s.incidentView(i), nil
}

func (s *Store) ListHealthIncidents(_ context.Context, limit int) ([]*model.HealthIncident, error) {
	if err := s.lock("ListHealthIncidents"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.HealthIncident
	for _, i := range s.data.incidents {
		out = append(out, s.incidentView(i))
	}
	sortNewestFirst(out, func(i *model.HealthIncident) (time.Time, int64) { return i.DetectedAt, i.ID })
	return truncate(out, limit), nil
}

func (s *Store) SetIncidentStatus(_ context.Context, id int64, status string, at time.Time) error {
	if err := s.lock("SetIncidentStatus"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	i, ok := s.data.incidents[id]
	if !ok {
		return notFound("health incident", id)
	}
	c := cp(i)
	c.Status = status
	if status == model.IncidentResolved {
		c.ResolvedAt = &at
	}
	s.data.incidents[id] = c
	return nil
}

// --- Notifications ---

func (s *Store) CreateHealthNotification(_ context.Context, n *model.HealthNotification) error {
	if err := s.lock("CreateHealthNotification"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if _, ok := s.data.incidents[n.IncidentID]; !ok {
		return notFound("health incident", n.IncidentID)
	}
	n.CreatedAt = time.Now().UTC()
	if n.Status == "" {
		n.Status = model.NotificationPending
	}
	n.ID = s.data.next("notifications")
	s.data.notifications[n.ID] = cp(n)
	return nil
}

func (s *Store) ListPendingNotifications(_ context.Context, typ string) ([]*model.HealthNotification, error) {
	if err := s.lock("ListPendingNotifications"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.HealthNotification
	for _, n := range s.data.notifications {
		if n.Status == model.NotificationPending && (typ == "" || n.Type == typ) {
			out = append(out, cp(n))
		}
	}
	sortNewestFirst(out, func(n *model.HealthNotification) (time.Time, int64) { return n.CreatedAt, n.ID })
	return out, nil
}

func (s *Store) MarkNotificationDelivered(_ context.Context, id int64, at time.Time) error {
	if err := s.lock("MarkNotificationDelivered"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	n, ok := s.data.notifications[id]
	if !ok {
		return notFound("health notification", id)
	}
	c := cp(n)
	c.Status = model.NotificationDelivered
	c.DeliveredAt = &at
	s.data.notifications[id] = c
	return nil
}
