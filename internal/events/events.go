package events

import (
	"context"

	"github.com/nextmonth/smartsite/internal/model"
)

// Event topic constants
const (
	TopicTenantCreated           = "smartsite.tenant.created"
	TopicTenantUpdated           = "smartsite.tenant.updated"
	TopicAccountStatusChanged    = "smartsite.tenant.account_status_changed"
	TopicCreditsPurchased        = "smartsite.tenant.credits_purchased"
	TopicCreditsConsumed         = "smartsite.tenant.credits_consumed"
	TopicBusinessIdentityUpdated = "smartsite.network.business_identity_updated"

	TopicToolInstalled   = "smartsite.tool.installed"
	TopicToolUninstalled = "smartsite.tool.uninstalled"

	TopicPagePublished   = "smartsite.page.published"
	TopicPageUnpublished = "smartsite.page.unpublished"

	// SOT sync. SyncRequested is consumed by the sync trigger subscriber.
	TopicSOTSyncRequested = "smartsite.sot.sync_requested"
	TopicSOTSynced        = "smartsite.sot.synced"
	TopicSOTSyncFailed    = "smartsite.sot.sync_failed"

	TopicCloneStarted   = "smartsite.blueprint.clone_started"
	TopicCloneCompleted = "smartsite.blueprint.clone_completed"
	TopicCloneFailed    = "smartsite.blueprint.clone_failed"

	TopicIncidentOpened   = "smartsite.health.incident_opened"
	TopicIncidentResolved = "smartsite.health.incident_resolved"

	TopicPostCreated = "smartsite.network.post_created"
	TopicFollowed    = "smartsite.network.followed"
	TopicMessageSent = "smartsite.network.message_sent"

	TopicInsightCreated = "smartsite.agent.insight_created"
)

// Event types

type TenantCreated struct {
	Tenant *model.Tenant `json:"tenant"`
}

type TenantUpdated struct {
	Tenant  *model.Tenant  `json:"tenant"`
	Changes map[string]any `json:"changes"` // field name -> new value
}

// CreditsChanged is published for both credit topics with the delta applied.
type CreditsChanged struct {
	TenantID string `json:"tenantId"`
	Delta    int    `json:"delta"`
}

type AccountStatusChanged struct {
	TenantID string             `json:"tenantId"`
	From     model.TenantStatus `json:"from"`
	To       model.TenantStatus `json:"to"`
}

type BusinessIdentityUpdated struct {
	Profile *model.BusinessProfile `json:"profile"`
}

type PagePublished struct {
	Page *model.Page `json:"page"`
}

type PageUnpublished struct {
	PageID   int64  `json:"pageId"`
	TenantID string `json:"tenantId"`
}

type SOTSyncRequested struct {
	RequestedBy string `json:"requestedBy,omitempty"`
}

type SOTSynced struct {
	EventType  string `json:"eventType"`
	BusinessID string `json:"businessId"`
	Attempts   int    `json:"attempts"`
}

type SOTSyncFailed struct {
	EventType string `json:"eventType"`
	Error     string `json:"error"`
	Attempts  int    `json:"attempts"`
}

type CloneStarted struct {
	Operation *model.CloneOperation `json:"operation"`
}

type CloneCompleted struct {
	Operation *model.CloneOperation `json:"operation"`
}

type CloneFailed struct {
	Operation *model.CloneOperation `json:"operation"`
}

type IncidentOpened struct {
	Incident *model.HealthIncident `json:"incident"`
}

type IncidentResolved struct {
	Incident *model.HealthIncident `json:"incident"`
}

type PostCreated struct {
	Post *model.BusinessPost `json:"post"`
}

type Followed struct {
	FollowerID  int64 `json:"followerId"`
	FollowingID int64 `json:"followingId"`
}

type MessageSent struct {
	Message *model.Message `json:"message"`
}

type InsightCreated struct {
	Insight *model.ConversationInsight `json:"insight"`
}

// Scoped is implemented by events that belong to one tenant. Events without
// a tenant are platform-wide.
type Scoped interface {
	EventTenant() string
}

// TenantOf returns the tenant an event belongs to, or "" for platform
// events.
func TenantOf(event any) string {
	if sc, ok := event.(Scoped); ok {
		return sc.EventTenant()
	}
	return ""
}

func (e TenantCreated) EventTenant() string {
	if e.Tenant == nil {
		return ""
	}
	return e.Tenant.ID
}

func (e TenantUpdated) EventTenant() string {
	if e.Tenant == nil {
		return ""
	}
	return e.Tenant.ID
}

func (e CreditsChanged) EventTenant() string       { return e.TenantID }
func (e AccountStatusChanged) EventTenant() string { return e.TenantID }
func (e PageUnpublished) EventTenant() string      { return e.TenantID }

func (e BusinessIdentityUpdated) EventTenant() string {
	if e.Profile == nil {
		return ""
	}
	return e.Profile.TenantID
}

func (e PagePublished) EventTenant() string {
	if e.Page == nil {
		return ""
	}
	return e.Page.TenantID
}

func (e InsightCreated) EventTenant() string {
	if e.Insight == nil {
		return ""
	}
	return e.Insight.TenantID
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
