package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/nextmonth/smartsite/internal/embed"
)

const jsContentType = "application/javascript"

// handleEmbedScript handles GET /embed.js?tenantId=. Errors are answered
// as JavaScript comments so a broken tag fails quietly in the page.
func (s *Server) handleEmbedScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", jsContentType)
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("// Error: tenantId parameter is required"))
		return
	}
	if _, err := s.embed.ValidateTenant(r.Context(), tenantID); err != nil {
		if errors.Is(err, embed.ErrInvalidTenant) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("// Error: Invalid tenant ID"))
			return
		}
		s.logger.Error("failed to validate embed tenant", "err", err, "tenant_id", tenantID)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("// Error: Internal server error"))
		return
	}
	script, err := embed.Script(tenantID, s.baseURL(r))
	if err != nil {
		s.logger.Error("failed to render embed script", "err", err, "tenant_id", tenantID)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("// Error: Internal server error"))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write([]byte(script))
}

func embedClient(r *http.Request) embed.Client {
	return embed.Client{UserAgent: r.UserAgent(), IPAddress: remoteIP(r)}
}

// handleTrackPageView handles POST /api/analytics/page-view.
func (s *Server) handleTrackPageView(w http.ResponseWriter, r *http.Request) {
	var pv embed.PageView
	if err := decodeJSON(w, r, &pv); err != nil {
		s.fail(w, r, err, "tenant", "failed to track page view")
		return
	}
	if err := s.embed.TrackPageView(r.Context(), pv, embedClient(r)); err != nil {
		s.fail(w, r, err, "tenant", "failed to track page view")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleTrackEvent handles POST /api/analytics/event.
func (s *Server) handleTrackEvent(w http.ResponseWriter, r *http.Request) {
	var ev embed.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		s.fail(w, r, err, "tenant", "failed to track event")
		return
	}
	if err := s.embed.TrackEvent(r.Context(), ev, embedClient(r)); err != nil {
		s.fail(w, r, err, "tenant", "failed to track event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleAnalyticsSummary handles
// GET /api/analytics/summary?tenantId=&startDate=&endDate=. Dates are
// RFC 3339 timestamps or plain YYYY-MM-DD days; an end day covers the
// whole day.
func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("startDate"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startDate")
		return
	}
	to, err := parseDate(q.Get("endDate"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endDate")
		return
	}
	sum, err := s.embed.Summary(r.Context(), tenantFromContext(r.Context()), from, to)
	if err != nil {
		s.fail(w, r, err, "tenant", "failed to get analytics summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func parseDate(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
