package server

import (
	"errors"
	"net/http"

	"github.com/nextmonth/smartsite/internal/agent"
	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/model"
)

// handleAgentRespond handles POST /api/agent/respond. Anonymous callers
// always get the public assistant.
func (s *Server) handleAgentRespond(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, "conversation", "failed to process message")
		return
	}
	if u := auth.UserFromContext(r.Context()); u != nil {
		req.Authenticated = true
		req.TenantID = u.TenantID
	}
	resp, err := s.agent.Respond(r.Context(), req)
	if errors.Is(err, agent.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "AI assistant is not configured")
		return
	}
	if err != nil {
		s.fail(w, r, err, "conversation", "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAgentInsights handles GET /api/agent/insights.
func (s *Server) handleAgentInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := s.agent.Insights(r.Context())
	if err != nil {
		s.fail(w, r, err, "insight", "failed to list insights")
		return
	}
	if insights == nil {
		insights = []*model.ConversationInsight{}
	}
	writeJSON(w, http.StatusOK, insights)
}

// handleAgentStats handles GET /api/agent/stats.
func (s *Server) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.agent.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err, "stats", "failed to get agent stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleAgentSummary handles GET /api/agent/summary?tenantId=.
func (s *Server) handleAgentSummary(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenantId")
	if u := auth.UserFromContext(r.Context()); tenantID == "" && u != nil {
		tenantID = u.TenantID
	}
	sum, err := s.agent.Summary(r.Context(), tenantID)
	if err != nil {
		s.fail(w, r, err, "summary", "failed to build summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
