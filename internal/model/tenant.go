package model

import "time"

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantSuspended TenantStatus = "suspended"
)

// IsValid checks whether the tenant status is a known value.
func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantActive, TenantInactive, TenantSuspended:
		return true
	}
	return false
}

// Tenant is one logical customer instance. Rows in most other tables are
// scoped to a tenant by TenantID.
type Tenant struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Domain           string       `json:"domain,omitempty"`
	Status           TenantStatus `json:"status"`
	Plan             string       `json:"plan"`
	IsTemplate       bool         `json:"isTemplate"`
	ParentTemplate   string       `json:"parentTemplate,omitempty"`
	CreditsPurchased int          `json:"creditsPurchased"`
	CreditsConsumed  int          `json:"creditsConsumed"`
	SupportTier      string       `json:"supportTier,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}
