package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/model"
)

type tenantKey struct{}

// tenantFromContext returns the tenant id the request was scoped to.
func tenantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantKey{}).(string)
	return id
}

// requestedTenantID returns the tenant named by the request: the
// {tenantId} path value, the tenantId query parameter or a top-level
// tenantId field of a JSON body, in that order.
func requestedTenantID(r *http.Request) (string, error) {
	if id := r.PathValue("tenantId"); id != "" {
		return id, nil
	}
	if id := r.URL.Query().Get("tenantId"); id != "" {
		return id, nil
	}
	if r.Body == nil || r.ContentLength == 0 || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return "", nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return "", inputError("failed to read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	var probe struct {
		TenantID string `json:"tenantId"`
	}
	// Malformed bodies are left to the handler's own decoding.
	_ = json.Unmarshal(body, &probe)
	return probe.TenantID, nil
}

// tenantScoped confines a route to one tenant. Regular users act on their
// own tenant, which must exist and be active, and may not name another.
// Super admins act on the tenant the request names, or their own.
func (s *Server) tenantScoped(next http.HandlerFunc) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		u := auth.UserFromContext(r.Context())
		requested, err := requestedTenantID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		tenantID := u.TenantID
		if u.IsSuperAdmin && requested != "" {
			tenantID = requested
		}
		if tenantID == "" {
			writeCodedError(w, http.StatusBadRequest, "TenantId required for all Admin Panel operations", "MISSING_TENANT_ID")
			return
		}

		if !u.IsSuperAdmin {
			t, err := s.store.GetTenant(r.Context(), tenantID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				s.logger.Error("failed to validate tenant", "err", err, "tenant_id", tenantID)
				writeCodedError(w, http.StatusInternalServerError, "Failed to validate tenant", "TENANT_VALIDATION_ERROR")
				return
			}
			if err != nil || t.Status != model.TenantActive {
				writeCodedError(w, http.StatusForbidden, "Invalid or inactive tenant", "INVALID_TENANT")
				return
			}
			if requested != "" && requested != tenantID {
				writeCodedError(w, http.StatusForbidden, "Cross-tenant access denied", "CROSS_TENANT_ACCESS_DENIED")
				return
			}
		}

		next(w, r.WithContext(context.WithValue(r.Context(), tenantKey{}, tenantID)))
	})
}
