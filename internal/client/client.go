// Package client talks to a SmartSite server on behalf of the admin CLI:
// the REST API over HTTP and the gRPC health service for probes.
package client

import (
	"context"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

// AdminClient is the interface the CLI commands use. HTTPClient implements
// it against the REST API.
type AdminClient interface {
	// Tenants
	ListTenants(ctx context.Context) ([]*model.Tenant, error)
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	CreateTenant(ctx context.Context, req *CreateTenantRequest) (*model.Tenant, error)
	UpdateTenantStatus(ctx context.Context, id string, status model.TenantStatus) (*model.Tenant, error)

	// SOT sync
	SyncStatus(ctx context.Context) (*SyncStatus, error)
	RunSync(ctx context.Context) (*SyncResult, error)
	SetSchedule(ctx context.Context, schedule string) (*SyncStatus, error)
	SyncLogs(ctx context.Context, limit int) ([]*model.SOTSyncLog, error)

	// Health
	SystemStatus(ctx context.Context) (*SystemStatus, error)
	ListIncidents(ctx context.Context, limit int) ([]*model.HealthIncident, error)
	ResolveIncident(ctx context.Context, id int64) (*model.HealthIncident, error)
	AcknowledgeIncident(ctx context.Context, id int64) (*model.HealthIncident, error)

	// Blueprints
	ListTemplates(ctx context.Context) ([]*model.BlueprintTemplate, error)
	Clone(ctx context.Context, req *CloneRequest) (*CloneResult, error)
	CloneStatus(ctx context.Context, requestID string) (*model.CloneOperation, error)

	Close() error
}

// CreateTenantRequest holds parameters for creating a tenant.
type CreateTenantRequest struct {
	Name        string `json:"name"`
	Domain      string `json:"domain,omitempty"`
	Plan        string `json:"plan,omitempty"`
	IsTemplate  bool   `json:"isTemplate,omitempty"`
	SupportTier string `json:"supportTier,omitempty"`
}

// SyncStatus is the scheduler view returned by GET /api/sot/status.
type SyncStatus struct {
	IsRunning  bool       `json:"isRunning"`
	Schedule   string     `json:"schedule"`
	LastSync   *time.Time `json:"lastSync"`
	RetryCount int        `json:"retryCount"`
	MaxRetries int        `json:"maxRetries"`
}

// SyncResult is the response from a manual sync.
type SyncResult struct {
	Success   bool                 `json:"success"`
	Profile   *model.ClientProfile `json:"profile,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Error     string               `json:"error,omitempty"`
}

// ServiceHealth is one dependency entry of SystemStatus.
type ServiceHealth struct {
	Healthy     bool      `json:"healthy"`
	LatencyMs   int64     `json:"latency"`
	LastChecked time.Time `json:"lastChecked"`
	Error       string    `json:"error,omitempty"`
}

// SystemStatus is the response from GET /api/health/status.
type SystemStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services"`
}

// CloneRequest holds parameters for cloning a blueprint template.
type CloneRequest struct {
	TemplateID    int64  `json:"templateId"`
	InstanceName  string `json:"instanceName"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

// CloneResult is the response from a successful clone.
type CloneResult struct {
	Message        string                `json:"message"`
	CloneOperation *model.CloneOperation `json:"cloneOperation"`
	NewInstanceID  string                `json:"newInstanceId"`
	AdminUserID    int64                 `json:"adminUserId"`
}
