package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/user", s.authed(s.handleCurrentUser))

	// Tenants
	mux.HandleFunc("GET /api/tenants", s.superAdmin(s.handleListTenants))
	mux.HandleFunc("POST /api/tenants", s.superAdmin(s.handleCreateTenant))
	mux.HandleFunc("GET /api/tenants/{tenantId}", s.tenantScoped(s.handleGetTenant))
	mux.HandleFunc("PATCH /api/tenants/{tenantId}", s.admin(s.tenantScoped(s.handleUpdateTenant)))
	mux.HandleFunc("GET /api/tenants/{tenantId}/embed-code", s.tenantScoped(s.handleEmbedCode))

	// Business network
	mux.HandleFunc("GET /api/business-network/profile", s.authed(s.handleGetMyProfile))
	mux.HandleFunc("POST /api/business-network/profile", s.authed(s.handleCreateProfile))
	mux.HandleFunc("PUT /api/business-network/profile", s.authed(s.handleUpdateProfile))
	mux.HandleFunc("GET /api/business-network/profiles", s.authed(s.handleListProfiles))
	mux.HandleFunc("GET /api/business-network/profiles/{id}", s.authed(s.handleGetProfile))
	mux.HandleFunc("POST /api/business-network/profiles/{id}/follow", s.authed(s.handleFollow))
	mux.HandleFunc("DELETE /api/business-network/profiles/{id}/follow", s.authed(s.handleUnfollow))
	mux.HandleFunc("GET /api/business-network/profiles/{id}/following", s.authed(s.handleIsFollowing))
	mux.HandleFunc("GET /api/business-network/posts", s.authed(s.handleListPosts))
	mux.HandleFunc("GET /api/business-network/posts/following", s.authed(s.handleFollowingPosts))
	mux.HandleFunc("POST /api/business-network/posts", s.authed(s.handleCreatePost))
	mux.HandleFunc("POST /api/business-network/posts/{id}/like", s.authed(s.handleLikePost))
	mux.HandleFunc("GET /api/business-network/posts/{id}/comments", s.authed(s.handleListComments))
	mux.HandleFunc("POST /api/business-network/posts/{id}/comments", s.authed(s.handleCreateComment))
	mux.HandleFunc("POST /api/business-network/messages", s.authed(s.handleSendMessage))
	mux.HandleFunc("GET /api/business-network/messages/{profileId}", s.authed(s.handleListMessages))
	mux.HandleFunc("GET /api/business-network/conversations", s.authed(s.handleConversations))

	// Blueprints
	mux.HandleFunc("GET /api/blueprint/templates", s.authed(s.handleListTemplates))
	mux.HandleFunc("GET /api/blueprint/templates/{id}", s.authed(s.handleGetTemplate))
	mux.HandleFunc("POST /api/blueprint/templates", s.admin(s.handleCreateTemplate))
	mux.HandleFunc("PUT /api/blueprint/templates/{id}", s.admin(s.handleUpdateTemplate))
	mux.HandleFunc("POST /api/blueprint/templates/{id}/extract", s.admin(s.handleExtractTemplate))
	mux.HandleFunc("POST /api/blueprint/clone", s.superAdmin(s.handleClone))
	mux.HandleFunc("GET /api/blueprint/clone-operations", s.admin(s.handleListCloneOperations))
	mux.HandleFunc("GET /api/blueprint/clone-status/{requestId}", s.admin(s.handleCloneStatus))

	// Source of Truth
	mux.HandleFunc("GET /api/sot/declarations", s.admin(s.handleListDeclarations))
	mux.HandleFunc("POST /api/sot/declarations", s.admin(s.handleCreateDeclaration))
	mux.HandleFunc("GET /api/sot/declarations/latest", s.admin(s.handleLatestDeclaration))
	mux.HandleFunc("GET /api/sot/client-profile", s.admin(s.handleClientProfile))
	mux.HandleFunc("GET /api/sot/logs", s.admin(s.handleSyncLogs))
	mux.HandleFunc("GET /api/sot/status", s.admin(s.handleSyncStatus))
	mux.HandleFunc("PUT /api/sot/schedule", s.admin(s.handleUpdateSchedule))
	mux.HandleFunc("POST /api/sot/sync", s.admin(s.handleRunSync))

	// Pages and SEO
	mux.HandleFunc("GET /api/pages", s.tenantScoped(s.handleListPages))
	mux.HandleFunc("POST /api/pages", s.admin(s.tenantScoped(s.handleCreatePage)))
	mux.HandleFunc("GET /api/pages/{id}", s.tenantScoped(s.handleGetPage))
	mux.HandleFunc("PUT /api/pages/{id}", s.admin(s.tenantScoped(s.handleUpdatePage)))
	mux.HandleFunc("POST /api/pages/{id}/publish", s.admin(s.tenantScoped(s.handlePublishPage)))
	mux.HandleFunc("POST /api/pages/{id}/unpublish", s.admin(s.tenantScoped(s.handleUnpublishPage)))
	mux.HandleFunc("GET /api/seo/pages/{id}/keywords", s.tenantScoped(s.handlePageKeywords))
	mux.HandleFunc("POST /api/seo/analyze", s.authed(s.handleAnalyzeContent))

	// Health
	mux.HandleFunc("GET /api/health/metrics", s.admin(s.handleListHealthMetrics))
	mux.HandleFunc("PUT /api/health/metrics/{id}", s.admin(s.handleUpdateHealthMetric))
	mux.HandleFunc("GET /api/health/incidents", s.admin(s.handleListIncidents))
	mux.HandleFunc("POST /api/health/incidents/{id}/resolve", s.admin(s.handleResolveIncident))
	mux.HandleFunc("POST /api/health/incidents/{id}/acknowledge", s.admin(s.handleAcknowledgeIncident))
	mux.HandleFunc("GET /api/health/notifications", s.admin(s.handlePendingNotifications))
	mux.HandleFunc("POST /api/health/notifications/{id}/delivered", s.admin(s.handleNotificationDelivered))
	mux.HandleFunc("POST /api/health/track", s.handleTrack)
	mux.HandleFunc("GET /api/health/status", s.handleSystemStatus)

	// Agent
	mux.HandleFunc("POST /api/agent/respond", s.handleAgentRespond)
	mux.HandleFunc("GET /api/agent/insights", s.authed(s.handleAgentInsights))
	mux.HandleFunc("GET /api/agent/stats", s.authed(s.handleAgentStats))
	mux.HandleFunc("GET /api/agent/summary", s.handleAgentSummary)

	// Embed
	mux.HandleFunc("GET /embed.js", s.handleEmbedScript)
	mux.HandleFunc("POST /api/analytics/page-view", s.handleTrackPageView)
	mux.HandleFunc("POST /api/analytics/event", s.handleTrackEvent)
	mux.HandleFunc("GET /api/analytics/summary", s.tenantScoped(s.handleAnalyticsSummary))

	mux.HandleFunc("GET /api/events/stream", s.admin(s.handleEventStream))
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.recoverHTTP(s.sessions.Middleware(s.observeHTTP(mux)))
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeCodedError writes an error response carrying a machine-readable code.
func writeCodedError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// fail maps err to a response. Validation and input errors are 400,
// missing rows 404 "<what> not found" and duplicates 409. Anything else
// is logged and answered with 500 and msg.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, what, msg string) {
	var ve *model.ValidationError
	var ie inputError
	switch {
	case errors.As(err, &ve):
		fields := make([]fieldError, len(ve.Errors))
		for i, fe := range ve.Errors {
			fields[i] = fieldError{Field: fe.Field, Message: fe.Message}
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error(), "errors": fields})
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.Error())
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, what+" already exists")
	default:
		s.logger.Error(msg, "err", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

// decodeJSON decodes the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return inputError("request body is required")
		}
		return inputError("invalid JSON body")
	}
	return nil
}

// pathID parses the named path value as a positive integer id.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, inputError("invalid " + name)
	}
	return id, nil
}

// queryLimit parses ?limit=, falling back to def for missing or invalid values.
func queryLimit(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

// authed rejects requests without a signed-in user.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.UserFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next(w, r)
	}
}

// admin additionally requires an admin or staff user.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		if !auth.UserFromContext(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next(w, r)
	})
}

// superAdmin requires a super admin.
func (s *Server) superAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		if !auth.UserFromContext(r.Context()).IsSuperAdmin {
			writeError(w, http.StatusForbidden, "Super admin access required")
			return
		}
		next(w, r)
	})
}
