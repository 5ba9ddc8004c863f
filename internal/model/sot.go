package model

import (
	"encoding/json"
	"time"
)

// Declaration statuses.
const (
	DeclarationPending = "pending"
	DeclarationActive  = "active"
)

// SOTDeclaration announces this instance to the Source of Truth system and
// carries the callback URL profiles are pushed to.
type SOTDeclaration struct {
	ID               int64      `json:"id"`
	InstanceID       string     `json:"instanceId"`
	InstanceType     string     `json:"instanceType"`
	BlueprintVersion string     `json:"blueprintVersion"`
	ToolsSupported   []string   `json:"toolsSupported"`
	CallbackURL      string     `json:"callbackUrl,omitempty"`
	Status           string     `json:"status"`
	IsTemplate       bool       `json:"isTemplate"`
	IsCloneable      bool       `json:"isCloneable"`
	LastSyncAt       *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ProfileLocation is the coarse location reported in a client profile.
type ProfileLocation struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// ProfileMetrics are usage counts reported in a client profile.
type ProfileMetrics struct {
	TotalPages int `json:"totalPages"`
	TotalUsers int `json:"totalUsers"`
	TotalTools int `json:"totalTools"`
}

// ProfileFeatures flags the capabilities an instance has turned on.
type ProfileFeatures struct {
	HasCustomBranding bool `json:"hasCustomBranding"`
	HasPublishedPages bool `json:"hasPublishedPages"`
	HasCRM            bool `json:"hasCRM"`
	HasAnalytics      bool `json:"hasAnalytics"`
}

// ClientProfile is the document reported to the Source of Truth system.
type ClientProfile struct {
	BusinessID    string          `json:"businessId"`
	BusinessName  string          `json:"businessName"`
	BusinessType  string          `json:"businessType"`
	Industry      string          `json:"industry"`
	Description   string          `json:"description"`
	Location      ProfileLocation `json:"location"`
	Metrics       ProfileMetrics  `json:"metrics"`
	Features      ProfileFeatures `json:"features"`
	DateOnboarded time.Time       `json:"dateOnboarded"`
	LastSync      time.Time       `json:"lastSync"`
}

// SOTClientProfile is the locally stored copy of the last built profile.
type SOTClientProfile struct {
	ID           int64           `json:"id"`
	BusinessID   string          `json:"businessId"`
	BusinessName string          `json:"businessName"`
	BusinessType string          `json:"businessType"`
	Industry     string          `json:"industry"`
	Description  string          `json:"description"`
	LocationData json.RawMessage `json:"locationData,omitempty"`
	ProfileData  json.RawMessage `json:"profileData,omitempty"`
	SyncStatus   string          `json:"syncStatus"`
	SyncMessage  string          `json:"syncMessage,omitempty"`
	LastSyncAt   *time.Time      `json:"lastSyncAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Sync log event types and statuses.
const (
	SyncEventScheduled = "scheduled_sync"
	SyncEventManual    = "manual_sync"

	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// SOTSyncLog records the outcome of one sync run.
type SOTSyncLog struct {
	ID        int64           `json:"id"`
	EventType string          `json:"eventType"`
	Status    string          `json:"status"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
