package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/embed"
	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/model"
)

// DefaultPlan is assigned to tenants created without one.
const DefaultPlan = "standard"

// handleListTenants handles GET /api/tenants.
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.store.ListTenants(r.Context())
	if err != nil {
		s.fail(w, r, err, "tenant", "failed to list tenants")
		return
	}
	if tenants == nil {
		tenants = []*model.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

type createTenantInput struct {
	Name        string             `json:"name"`
	Domain      string             `json:"domain"`
	Status      model.TenantStatus `json:"status"`
	Plan        string             `json:"plan"`
	IsTemplate  bool               `json:"isTemplate"`
	SupportTier string             `json:"supportTier"`
}

// handleCreateTenant handles POST /api/tenants.
func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var in createTenantInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "tenant", "failed to create tenant")
		return
	}
	t := &model.Tenant{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Domain:      in.Domain,
		Status:      in.Status,
		Plan:        in.Plan,
		IsTemplate:  in.IsTemplate,
		SupportTier: in.SupportTier,
	}
	if t.Status == "" {
		t.Status = model.TenantActive
	}
	if t.Plan == "" {
		t.Plan = DefaultPlan
	}
	if err := model.ValidateTenant(t); err != nil {
		s.fail(w, r, err, "tenant", "failed to create tenant")
		return
	}
	if err := s.store.CreateTenant(r.Context(), t); err != nil {
		s.fail(w, r, err, "tenant", "failed to create tenant")
		return
	}
	s.emit(r.Context(), events.TopicTenantCreated, events.TenantCreated{Tenant: t})
	writeJSON(w, http.StatusCreated, t)
}

// handleGetTenant handles GET /api/tenants/{tenantId}.
func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTenant(r.Context(), tenantFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err, "tenant", "failed to get tenant")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type updateTenantInput struct {
	Name             *string             `json:"name"`
	Domain           *string             `json:"domain"`
	Status           *model.TenantStatus `json:"status"`
	Plan             *string             `json:"plan"`
	SupportTier      *string             `json:"supportTier"`
	CreditsPurchased *int                `json:"creditsPurchased"`
	CreditsConsumed  *int                `json:"creditsConsumed"`
}

// accountFields reports whether the update touches status, billing or
// credits, which only super admins may change.
func (in *updateTenantInput) accountFields() bool {
	return in.Status != nil || in.Plan != nil || in.SupportTier != nil ||
		in.CreditsPurchased != nil || in.CreditsConsumed != nil
}

// handleUpdateTenant handles PATCH /api/tenants/{tenantId}. Tenant admins
// may only rename their tenant and change its domain.
func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	var in updateTenantInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "tenant", "failed to update tenant")
		return
	}
	ctx := r.Context()
	if in.accountFields() && !auth.UserFromContext(ctx).IsSuperAdmin {
		writeError(w, http.StatusForbidden, "Super admin access required to change account status, plan or credits")
		return
	}

	t, err := s.store.GetTenant(ctx, tenantFromContext(ctx))
	if err != nil {
		s.fail(w, r, err, "tenant", "failed to update tenant")
		return
	}
	old := *t
	changes := map[string]any{}
	if in.Name != nil && *in.Name != t.Name {
		t.Name = strings.TrimSpace(*in.Name)
		changes["name"] = t.Name
	}
	if in.Domain != nil && *in.Domain != t.Domain {
		t.Domain = *in.Domain
		changes["domain"] = t.Domain
	}
	if in.Status != nil && *in.Status != t.Status {
		t.Status = *in.Status
		changes["status"] = t.Status
	}
	if in.Plan != nil && *in.Plan != t.Plan {
		t.Plan = *in.Plan
		changes["plan"] = t.Plan
	}
	if in.SupportTier != nil && *in.SupportTier != t.SupportTier {
		t.SupportTier = *in.SupportTier
		changes["supportTier"] = t.SupportTier
	}
	if in.CreditsPurchased != nil && *in.CreditsPurchased != t.CreditsPurchased {
		t.CreditsPurchased = *in.CreditsPurchased
		changes["creditsPurchased"] = t.CreditsPurchased
	}
	if in.CreditsConsumed != nil && *in.CreditsConsumed != t.CreditsConsumed {
		t.CreditsConsumed = *in.CreditsConsumed
		changes["creditsConsumed"] = t.CreditsConsumed
	}
	if len(changes) == 0 {
		writeJSON(w, http.StatusOK, t)
		return
	}
	if err := model.ValidateTenant(t); err != nil {
		s.fail(w, r, err, "tenant", "failed to update tenant")
		return
	}
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		s.fail(w, r, err, "tenant", "failed to update tenant")
		return
	}

	s.emit(ctx, events.TopicTenantUpdated, events.TenantUpdated{Tenant: t, Changes: changes})
	if t.Status != old.Status {
		s.emit(ctx, events.TopicAccountStatusChanged, events.AccountStatusChanged{TenantID: t.ID, From: old.Status, To: t.Status})
	}
	if d := t.CreditsPurchased - old.CreditsPurchased; d != 0 {
		s.emit(ctx, events.TopicCreditsPurchased, events.CreditsChanged{TenantID: t.ID, Delta: d})
	}
	if d := t.CreditsConsumed - old.CreditsConsumed; d != 0 {
		s.emit(ctx, events.TopicCreditsConsumed, events.CreditsChanged{TenantID: t.ID, Delta: d})
	}
	writeJSON(w, http.StatusOK, t)
}

// handleEmbedCode handles GET /api/tenants/{tenantId}/embed-code.
func (s *Server) handleEmbedCode(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTenant(r.Context(), tenantFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err, "tenant", "failed to get tenant")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"tenantId":  t.ID,
		"embedCode": embed.Code(t.ID, s.baseURL(r)),
	})
}

// baseURL is the configured public URL, or the scheme and host the
// request arrived on.
func (s *Server) baseURL(r *http.Request) string {
	if s.publicURL != "" {
		return strings.TrimRight(s.publicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
