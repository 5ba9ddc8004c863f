package model

import (
	"encoding/json"
	"time"
)

// Known health metric names.
const (
	MetricAPIErrorRate       = "api_error_rate"
	MetricDashboardLoadTime  = "dashboard_load_time"
	MetricLoginFailureRate   = "login_failure_rate"
	MetricMediaUploadFailure = "media_upload_failure"
)

// HealthMetric is a monitored signal with a JSON threshold definition.
type HealthMetric struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Threshold   json.RawMessage `json:"threshold"`
	Enabled     bool            `json:"enabled"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Threshold is the decoded form of HealthMetric.Threshold. Which fields
// apply depends on the metric.
type Threshold struct {
	ErrorCount  float64  `json:"error_count,omitempty"`
	TimeWindow  int      `json:"time_window,omitempty"` // seconds
	Routes      []string `json:"routes,omitempty"`      // empty means every route
	MaxLoadTime float64  `json:"max_load_time,omitempty"`
	SampleSize  int      `json:"sample_size,omitempty"`
	FailureRate float64  `json:"failure_rate,omitempty"`
}

// ParseThreshold decodes the metric's threshold. A missing threshold
// decodes to the zero value.
func (m *HealthMetric) ParseThreshold() (Threshold, error) {
	var t Threshold
	if len(m.Threshold) == 0 {
		return t, nil
	}
	err := json.Unmarshal(m.Threshold, &t)
	return t, err
}

// HealthMetricLog is one evaluated value of a metric.
type HealthMetricLog struct {
	ID         int64           `json:"id"`
	MetricID   int64           `json:"metricId"`
	Value      json.RawMessage `json:"value"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Incident statuses and severities.
const (
	IncidentActive       = "active"
	IncidentAcknowledged = "acknowledged"
	IncidentResolved     = "resolved"

	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// HealthIncident is opened when a metric crosses its threshold.
type HealthIncident struct {
	ID            int64           `json:"id"`
	MetricID      int64           `json:"metricId"`
	Status        string          `json:"status"`
	Severity      string          `json:"severity"`
	AffectedArea  string          `json:"affectedArea"`
	AffectedUsers int             `json:"affectedUsers"`
	Details       json.RawMessage `json:"details,omitempty"`
	DetectedAt    time.Time       `json:"detectedAt"`
	ResolvedAt    *time.Time      `json:"resolvedAt,omitempty"`
	MetricName    string          `json:"metricName,omitempty"`
}

// Notification audiences and statuses.
const (
	NotifyAdmin = "admin"
	NotifyUser  = "user"

	NotificationPending   = "pending"
	NotificationDelivered = "delivered"
	NotificationDismissed = "dismissed"
)

// HealthNotification is a message about an incident for admins or users.
type HealthNotification struct {
	ID          int64      `json:"id"`
	IncidentID  int64      `json:"incidentId"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"createdAt"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	DismissedAt *time.Time `json:"dismissedAt,omitempty"`
}
