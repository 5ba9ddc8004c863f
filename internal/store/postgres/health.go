package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

const metricColumns = `id, name, category, description, threshold, enabled, created_at, updated_at`

func scanMetric(row scannable) (*model.HealthMetric, error) {
	var (
		m           model.HealthMetric
		description sql.NullString
		threshold   []byte
	)
	err := row.Scan(&m.ID, &m.Name, &m.Category, &description, &threshold, &m.Enabled,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Description = description.String
	m.Threshold = rawJSON(threshold)
	return &m, nil
}

func (q queries) ListHealthMetrics(ctx context.Context) ([]*model.HealthMetric, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+metricColumns+` FROM health_metrics ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanMetric)
}

func (q queries) GetHealthMetric(ctx context.Context, id int64) (*model.HealthMetric, error) {
	return scanMetric(q.db.QueryRowContext(ctx, `SELECT `+metricColumns+` FROM health_metrics WHERE id = $1`, id))
}

func (q queries) UpdateHealthMetric(ctx context.Context, m *model.HealthMetric) error {
	m.UpdatedAt = time.Now().UTC()
	return expectAffected(q.db.ExecContext(ctx, `
		UPDATE health_metrics SET description = $2, threshold = $3, enabled = $4, updated_at = $5
		WHERE id = $1`,
		m.ID, nullString(m.Description), jsonbBytes(m.Threshold), m.Enabled, m.UpdatedAt))
}

func (q queries) CreateHealthMetricLog(ctx context.Context, l *model.HealthMetricLog) error {
	if l.RecordedAt.IsZero() {
		l.RecordedAt = time.Now().UTC()
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO health_metric_logs (metric_id, value, recorded_at) VALUES ($1, $2, $3)
		RETURNING id`, l.MetricID, jsonbBytes(l.Value), l.RecordedAt).Scan(&l.ID)
}

func (q queries) DeleteHealthMetricLogsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM health_metric_logs WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Incidents ---

const incidentColumns = `i.id, i.metric_id, i.status, i.severity, i.affected_area, i.affected_users,
	i.details, i.detected_at, i.resolved_at, m.name`

const incidentFrom = ` FROM health_incidents i JOIN health_metrics m ON m.id = i.metric_id`

func scanIncident(row scannable) (*model.HealthIncident, error) {
	var (
		i          model.HealthIncident
		details    []byte
		resolvedAt sql.NullTime
	)
	err := row.Scan(&i.ID, &i.MetricID, &i.Status, &i.Severity, &i.AffectedArea, &i.AffectedUsers,
		&details, &i.DetectedAt, &resolvedAt, &i.MetricName)
	if err != nil {
		return nil, err
	}
	i.Details = rawJSON(details)
	i.ResolvedAt = timePtr(resolvedAt)
	return &i, nil
}

func (q queries) GetActiveIncident(ctx context.Context, metricID int64) (*model.HealthIncident, error) {
	return scanIncident(q.db.QueryRowContext(ctx, `SELECT `+incidentColumns+incidentFrom+`
		WHERE i.metric_id = $1 AND i.status = 'active'
		ORDER BY i.detected_at DESC LIMIT 1`, metricID))
}

func (q queries) CreateHealthIncident(ctx context.Context, i *model.HealthIncident) error {
	if i.DetectedAt.IsZero() {
		i.DetectedAt = time.Now().UTC()
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO health_incidents (metric_id, status, severity, affected_area, affected_users,
			details, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		i.MetricID, i.Status, i.Severity, i.AffectedArea, i.AffectedUsers, jsonbBytes(i.Details), i.DetectedAt,
	).Scan(&i.ID)
}

func (q queries) GetHealthIncident(ctx context.Context, id int64) (*model.HealthIncident, error) {
	return scanIncident(q.db.QueryRowContext(ctx, `SELECT `+incidentColumns+incidentFrom+` WHERE i.id = $1`, id))
}

func (q queries) ListHealthIncidents(ctx context.Context, limit int) ([]*model.HealthIncident, error) {
	query := `SELECT ` + incidentColumns + incidentFrom + ` ORDER BY i.detected_at DESC, i.id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanIncident)
}

// SetIncidentStatus moves an incident to status. Resolving stamps
// resolved_at with at.
func (q queries) SetIncidentStatus(ctx context.Context, id int64, status string, at time.Time) error {
	var resolvedAt sql.NullTime
	if status == model.IncidentResolved {
		resolvedAt = sql.NullTime{Time: at, Valid: true}
	}
	return expectAffected(q.db.ExecContext(ctx, `
		UPDATE health_incidents SET status = $2, resolved_at = COALESCE($3, resolved_at)
		WHERE id = $1`, id, status, resolvedAt))
}

// --- Notifications ---

func scanNotification(row scannable) (*model.HealthNotification, error) {
	var (
		n                        model.HealthNotification
		deliveredAt, dismissedAt sql.NullTime
	)
	err := row.Scan(&n.ID, &n.IncidentID, &n.Type, &n.Status, &n.Message, &n.CreatedAt,
		&deliveredAt, &dismissedAt)
	if err != nil {
		return nil, err
	}
	n.DeliveredAt = timePtr(deliveredAt)
	n.DismissedAt = timePtr(dismissedAt)
	return &n, nil
}

func (q queries) CreateHealthNotification(ctx context.Context, n *model.HealthNotification) error {
	n.CreatedAt = time.Now().UTC()
	if n.Status == "" {
		n.Status = model.NotificationPending
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO health_notifications (incident_id, type, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, n.IncidentID, n.Type, n.Status, n.Message, n.CreatedAt).Scan(&n.ID)
}

func (q queries) ListPendingNotifications(ctx context.Context, typ string) ([]*model.HealthNotification, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, incident_id, type, status, message, created_at, delivered_at, dismissed_at
		FROM health_notifications
		WHERE status = 'pending' AND ($1 = '' OR type = $1)
		ORDER BY created_at DESC, id DESC`, typ)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanNotification)
}

func (q queries) MarkNotificationDelivered(ctx context.Context, id int64, at time.Time) error {
	return expectAffected(q.db.ExecContext(ctx,
		`UPDATE health_notifications SET status = 'delivered', delivered_at = $2 WHERE id = $1`, id, at))
}
