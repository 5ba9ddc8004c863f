package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/blueprint"
	"github.com/nextmonth/smartsite/internal/model"
)

const cloneOperationsLimit = 50

// handleListTemplates handles GET /api/blueprint/templates.
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.blueprint.Templates(r.Context())
	if err != nil {
		s.fail(w, r, err, "template", "failed to list templates")
		return
	}
	if templates == nil {
		templates = []*model.BlueprintTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

// handleGetTemplate handles GET /api/blueprint/templates/{id}.
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, "template", "failed to get template")
		return
	}
	t, err := s.blueprint.Template(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "template", "failed to get template")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleCreateTemplate handles POST /api/blueprint/templates.
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in blueprint.NewTemplate
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "template", "failed to create template")
		return
	}
	if in.TenantID == "" {
		in.TenantID = auth.UserFromContext(r.Context()).TenantID
	}
	t, err := s.blueprint.CreateTemplate(r.Context(), in)
	if err != nil {
		s.fail(w, r, err, "template", "failed to create template")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// handleUpdateTemplate handles PUT /api/blueprint/templates/{id}.
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, "template", "failed to update template")
		return
	}
	var in blueprint.TemplateUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "template", "failed to update template")
		return
	}
	t, err := s.blueprint.UpdateTemplate(r.Context(), id, in)
	if err != nil {
		s.fail(w, r, err, "template", "failed to update template")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleExtractTemplate handles POST /api/blueprint/templates/{id}/extract.
// Extraction is tenant-agnostic unless ?tenantAgnostic=false.
func (s *Server) handleExtractTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, "template", "failed to extract blueprint")
		return
	}
	agnostic := true
	if v := r.URL.Query().Get("tenantAgnostic"); v != "" {
		if agnostic, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid tenantAgnostic")
			return
		}
	}
	ext, err := s.blueprint.Extract(r.Context(), id, agnostic, auth.UserFromContext(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err, "template", "failed to extract blueprint")
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

// handleClone handles POST /api/blueprint/clone.
func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	var req blueprint.CloneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, "template", "failed to clone template")
		return
	}
	res, err := s.blueprint.Clone(r.Context(), req)
	var ce *blueprint.CloneError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, blueprint.ErrNotCloneable):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &ce):
		s.logger.Error("clone failed", "err", ce.Err, "request_id", ce.Operation.RequestID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":          ce.Error(),
			"cloneOperation": ce.Operation,
		})
	default:
		s.fail(w, r, err, "template", "failed to clone template")
	}
}

// handleListCloneOperations handles GET /api/blueprint/clone-operations.
func (s *Server) handleListCloneOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := s.blueprint.CloneOperations(r.Context(), queryLimit(r, cloneOperationsLimit))
	if err != nil {
		s.fail(w, r, err, "clone operation", "failed to list clone operations")
		return
	}
	if ops == nil {
		ops = []*model.CloneOperation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

// handleCloneStatus handles GET /api/blueprint/clone-status/{requestId}.
func (s *Server) handleCloneStatus(w http.ResponseWriter, r *http.Request) {
	op, err := s.blueprint.CloneOperation(r.Context(), r.PathValue("requestId"))
	if err != nil {
		s.fail(w, r, err, "clone operation", "failed to get clone status")
		return
	}
	writeJSON(w, http.StatusOK, op)
}
