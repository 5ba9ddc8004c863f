package server

import (
	"net/http"
	"strings"

	"github.com/nextmonth/smartsite/internal/model"
)

const syncLogLimit = 20

// handleListDeclarations handles GET /api/sot/declarations?instanceId=.
func (s *Server) handleListDeclarations(w http.ResponseWriter, r *http.Request) {
	decls, err := s.store.ListSOTDeclarations(r.Context(), r.URL.Query().Get("instanceId"))
	if err != nil {
		s.fail(w, r, err, "declaration", "failed to list declarations")
		return
	}
	if decls == nil {
		decls = []*model.SOTDeclaration{}
	}
	writeJSON(w, http.StatusOK, decls)
}

// handleCreateDeclaration handles POST /api/sot/declarations. New
// declarations start out pending.
func (s *Server) handleCreateDeclaration(w http.ResponseWriter, r *http.Request) {
	var d model.SOTDeclaration
	if err := decodeJSON(w, r, &d); err != nil {
		s.fail(w, r, err, "declaration", "failed to create declaration")
		return
	}
	d.ID = 0
	d.LastSyncAt = nil
	if d.Status == "" {
		d.Status = model.DeclarationPending
	}
	if err := model.ValidateSOTDeclaration(&d); err != nil {
		s.fail(w, r, err, "declaration", "failed to create declaration")
		return
	}
	if err := s.store.CreateSOTDeclaration(r.Context(), &d); err != nil {
		s.fail(w, r, err, "declaration", "failed to create declaration")
		return
	}
	writeJSON(w, http.StatusCreated, &d)
}

// handleLatestDeclaration handles GET /api/sot/declarations/latest.
func (s *Server) handleLatestDeclaration(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetLatestSOTDeclaration(r.Context())
	if err != nil {
		s.fail(w, r, err, "declaration", "failed to get declaration")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleClientProfile handles GET /api/sot/client-profile?businessId=.
// Without a businessId it returns this instance's profile.
func (s *Server) handleClientProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.URL.Query().Get("businessId")
	if id == "" {
		var err error
		if id, err = s.sync.BusinessID(ctx); err != nil {
			s.fail(w, r, err, "client profile", "failed to get client profile")
			return
		}
	}
	p, err := s.store.GetSOTClientProfile(ctx, id)
	if err != nil {
		s.fail(w, r, err, "client profile", "failed to get client profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSyncLogs handles GET /api/sot/logs.
func (s *Server) handleSyncLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.ListSOTSyncLogs(r.Context(), queryLimit(r, syncLogLimit))
	if err != nil {
		s.fail(w, r, err, "sync log", "failed to list sync logs")
		return
	}
	if logs == nil {
		logs = []*model.SOTSyncLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// handleSyncStatus handles GET /api/sot/status.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sync.Status())
}

// handleUpdateSchedule handles PUT /api/sot/schedule.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Schedule string `json:"schedule"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "schedule", "failed to update schedule")
		return
	}
	if strings.TrimSpace(in.Schedule) == "" {
		writeError(w, http.StatusBadRequest, "schedule is required")
		return
	}
	if err := s.sync.UpdateSchedule(in.Schedule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.sync.Status())
}

// handleRunSync handles POST /api/sot/sync: one manual run, no retries.
func (s *Server) handleRunSync(w http.ResponseWriter, r *http.Request) {
	res := s.sync.RunSync(r.Context(), model.SyncEventManual)
	if !res.Success {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   res.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"profile":   res.Profile,
		"timestamp": res.Timestamp,
	})
}
