package model

import (
	"encoding/json"
	"time"
)

// BlueprintTemplate registers an instance whose configuration can be
// exported or cloned into a new tenant.
type BlueprintTemplate struct {
	ID               int64     `json:"id"`
	InstanceID       string    `json:"instanceId"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	BlueprintVersion string    `json:"blueprintVersion"`
	IsCloneable      bool      `json:"isCloneable"`
	TenantID         string    `json:"tenantId,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// BlueprintExport is a stored snapshot produced by an extract.
type BlueprintExport struct {
	ID               int64           `json:"id"`
	InstanceID       string          `json:"instanceId"`
	BlueprintVersion string          `json:"blueprintVersion"`
	TenantID         string          `json:"tenantId,omitempty"`
	IsTenantAgnostic bool            `json:"isTenantAgnostic"`
	BlueprintData    json.RawMessage `json:"blueprintData"`
	ExportedBy       int64           `json:"exportedBy"`
	ValidationStatus string          `json:"validationStatus"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// CloneStatus is the state of a clone operation.
type CloneStatus string

const (
	CloneInProgress CloneStatus = "in_progress"
	CloneCompleted  CloneStatus = "completed"
	CloneFailed     CloneStatus = "failed"
)

// CloneOperation tracks one request to clone a template into a new instance.
type CloneOperation struct {
	ID            int64           `json:"id"`
	RequestID     string          `json:"requestId"`
	TemplateID    int64           `json:"templateId"`
	InstanceName  string          `json:"instanceName"`
	AdminEmail    string          `json:"adminEmail"`
	Status        CloneStatus     `json:"status"`
	NewInstanceID string          `json:"newInstanceId"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}
