package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/nextmonth/smartsite/internal/health"
	"github.com/nextmonth/smartsite/internal/model"
)

const incidentListLimit = 10

// handleListHealthMetrics handles GET /api/health/metrics.
func (s *Server) handleListHealthMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.store.ListHealthMetrics(r.Context())
	if err != nil {
		s.fail(w, r, err, "health metric", "failed to list health metrics")
		return
	}
	if metrics == nil {
		metrics = []*model.HealthMetric{}
	}
	writeJSON(w, http.StatusOK, metrics)
}

type metricUpdate struct {
	Enabled   *bool           `json:"enabled"`
	Threshold json.RawMessage `json:"threshold"`
}

// handleUpdateHealthMetric handles PUT /api/health/metrics/{id}.
func (s *Server) handleUpdateHealthMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, "health metric", "failed to update health metric")
		return
	}
	var in metricUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "health metric", "failed to update health metric")
		return
	}
	ctx := r.Context()
	m, err := s.store.GetHealthMetric(ctx, id)
	if err != nil {
		s.fail(w, r, err, "health metric", "failed to update health metric")
		return
	}
	if in.Enabled != nil {
		m.Enabled = *in.Enabled
	}
	if len(in.Threshold) > 0 && !bytes.Equal(in.Threshold, []byte("null")) {
		m.Threshold = in.Threshold
		if _, err := m.ParseThreshold(); err != nil {
			writeError(w, http.StatusBadRequest, "threshold must be a JSON object")
			return
		}
	}
	if err := s.store.UpdateHealthMetric(ctx, m); err != nil {
		s.fail(w, r, err, "health metric", "failed to update health metric")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleListIncidents handles GET /api/health/incidents?limit=.
func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := s.monitor.Incidents(r.Context(), queryLimit(r, incidentListLimit))
	if err != nil {
		s.fail(w, r, err, "incident", "failed to list incidents")
		return
	}
	if incidents == nil {
		incidents = []*model.HealthIncident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

// handleResolveIncident handles POST /api/health/incidents/{id}/resolve.
func (s *Server) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	s.setIncidentStatus(w, r, s.monitor.Resolve)
}

// handleAcknowledgeIncident handles POST /api/health/incidents/{id}/acknowledge.
func (s *Server) handleAcknowledgeIncident(w http.ResponseWriter, r *http.Request) {
	s.setIncidentStatus(w, r, s.monitor.Acknowledge)
}

func (s *Server) setIncidentStatus(w http.ResponseWriter, r *http.Request, set func(context.Context, int64) (*model.HealthIncident, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, "incident", "failed to update incident")
		return
	}
	inc, err := set(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "incident", "failed to update incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// handlePendingNotifications handles GET /api/health/notifications.
func (s *Server) handlePendingNotifications(w http.ResponseWriter, r *http.Request) {
	ns, err := s.monitor.PendingAdminNotifications(r.Context())
	if err != nil {
		s.fail(w, r, err, "notification", "failed to list notifications")
		return
	}
	if ns == nil {
		ns = []*model.HealthNotification{}
	}
	writeJSON(w, http.StatusOK, ns)
}

// handleNotificationDelivered handles POST /api/health/notifications/{id}/delivered.
func (s *Server) handleNotificationDelivered(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, "notification", "failed to update notification")
		return
	}
	if err := s.monitor.MarkDelivered(r.Context(), id); err != nil {
		s.fail(w, r, err, "notification", "failed to update notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// trackInput is either a single sample or {"samples": [...]}.
type trackInput struct {
	health.Sample
	Samples []health.Sample `json:"samples"`
}

// handleTrack handles POST /api/health/track. Samples are buffered and
// reach the trackers on the next flush.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var in trackInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "sample", "failed to track metrics")
		return
	}
	samples := in.Samples
	if len(samples) == 0 {
		samples = []health.Sample{in.Sample}
	}
	key := clientKey(r)
	for i := range samples {
		if samples[i].SessionID == "" {
			samples[i].SessionID = key
		}
	}
	if err := s.batcher.Add(samples...); err != nil {
		s.fail(w, r, err, "sample", "failed to track metrics")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(samples)})
}

// handleSystemStatus handles GET /api/health/status.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.systemStatus(r.Context()))
}
