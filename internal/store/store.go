package store

import (
	"context"
	"errors"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

// ErrDuplicate is wrapped by writes that would break a uniqueness rule.
var ErrDuplicate = errors.New("already exists")

// Store defines the persistence interface for the platform.
// Lookups of missing rows return an error wrapping sql.ErrNoRows.
type Store interface {
	// Users and sessions
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	CountUsers(ctx context.Context, tenantID string) (int, error)
	FirstAdminUser(ctx context.Context, tenantID string) (*model.User, error)
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, token string) (*model.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)

	// Tenants
	CreateTenant(ctx context.Context, t *model.Tenant) error
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	ListTenants(ctx context.Context) ([]*model.Tenant, error)
	UpdateTenant(ctx context.Context, t *model.Tenant) error

	// Business network
	CreateBusinessProfile(ctx context.Context, p *model.BusinessProfile) error
	GetBusinessProfile(ctx context.Context, id int64) (*model.BusinessProfile, error)
	GetBusinessProfileByUser(ctx context.Context, userID int64) (*model.BusinessProfile, error)
	UpdateBusinessProfile(ctx context.Context, p *model.BusinessProfile) error
	ListBusinessProfiles(ctx context.Context, search string, limit int) ([]*model.BusinessProfile, error)
	AdjustFollowCounts(ctx context.Context, followerID, followingID int64, delta int) error
	CreatePost(ctx context.Context, p *model.BusinessPost) error
	GetPost(ctx context.Context, id int64) (*model.BusinessPost, error)
	ListPosts(ctx context.Context, profileIDs []int64, limit int) ([]*model.BusinessPost, error) // nil profileIDs = all
	LikePost(ctx context.Context, id int64) (*model.BusinessPost, error)
	CreateComment(ctx context.Context, c *model.PostComment) error
	ListComments(ctx context.Context, postID int64) ([]*model.PostComment, error)
	CreateFollow(ctx context.Context, f *model.Follow) error
	DeleteFollow(ctx context.Context, followerID, followingID int64) (bool, error)
	IsFollowing(ctx context.Context, followerID, followingID int64) (bool, error)
	ListFollowingIDs(ctx context.Context, followerID int64) ([]int64, error)
	CreateMessage(ctx context.Context, m *model.Message) error
	ListMessagesForProfile(ctx context.Context, profileID int64) ([]*model.Message, error)
	ListMessagesBetween(ctx context.Context, a, b int64) ([]*model.Message, error)
	MarkMessagesRead(ctx context.Context, receiverID, senderID int64) error

	// Blueprints and cloning
	CreateBlueprintTemplate(ctx context.Context, t *model.BlueprintTemplate) error
	GetBlueprintTemplate(ctx context.Context, id int64) (*model.BlueprintTemplate, error)
	ListBlueprintTemplates(ctx context.Context) ([]*model.BlueprintTemplate, error)
	UpdateBlueprintTemplate(ctx context.Context, t *model.BlueprintTemplate) error
	CreateBlueprintExport(ctx context.Context, e *model.BlueprintExport) error
	CreateCloneOperation(ctx context.Context, op *model.CloneOperation) error
	UpdateCloneOperation(ctx context.Context, op *model.CloneOperation) error
	GetCloneOperation(ctx context.Context, requestID string) (*model.CloneOperation, error)
	ListCloneOperations(ctx context.Context, limit int) ([]*model.CloneOperation, error)

	// Source of Truth
	CreateSOTDeclaration(ctx context.Context, d *model.SOTDeclaration) error
	UpdateSOTDeclaration(ctx context.Context, d *model.SOTDeclaration) error
	GetLatestSOTDeclaration(ctx context.Context) (*model.SOTDeclaration, error)
	ListSOTDeclarations(ctx context.Context, instanceID string) ([]*model.SOTDeclaration, error) // "" = all
	UpsertSOTClientProfile(ctx context.Context, p *model.SOTClientProfile) error
	GetSOTClientProfile(ctx context.Context, businessID string) (*model.SOTClientProfile, error)
	CreateSOTSyncLog(ctx context.Context, l *model.SOTSyncLog) error
	ListSOTSyncLogs(ctx context.Context, limit int) ([]*model.SOTSyncLog, error)

	// Pages
	CreatePage(ctx context.Context, p *model.Page) error
	GetPage(ctx context.Context, id int64) (*model.Page, error)
	ListPages(ctx context.Context, tenantID string) ([]*model.Page, error)
	UpdatePage(ctx context.Context, p *model.Page) error
	CountPages(ctx context.Context, tenantID string, publishedOnly bool) (int, error)

	// Health
	ListHealthMetrics(ctx context.Context) ([]*model.HealthMetric, error)
	GetHealthMetric(ctx context.Context, id int64) (*model.HealthMetric, error)
	UpdateHealthMetric(ctx context.Context, m *model.HealthMetric) error
	CreateHealthMetricLog(ctx context.Context, l *model.HealthMetricLog) error
	DeleteHealthMetricLogsBefore(ctx context.Context, before time.Time) (int64, error)
	GetActiveIncident(ctx context.Context, metricID int64) (*model.HealthIncident, error)
	CreateHealthIncident(ctx context.Context, i *model.HealthIncident) error
	GetHealthIncident(ctx context.Context, id int64) (*model.HealthIncident, error)
	ListHealthIncidents(ctx context.Context, limit int) ([]*model.HealthIncident, error)
	SetIncidentStatus(ctx context.Context, id int64, status string, at time.Time) error
	CreateHealthNotification(ctx context.Context, n *model.HealthNotification) error
	ListPendingNotifications(ctx context.Context, typ string) ([]*model.HealthNotification, error)
	MarkNotificationDelivered(ctx context.Context, id int64, at time.Time) error

	// Agent
	UpsertAgentConversation(ctx context.Context, c *model.AgentConversation) error
	CreateConversationInsight(ctx context.Context, i *model.ConversationInsight) error
	ListConversationInsights(ctx context.Context, mode string, limit int) ([]*model.ConversationInsight, error)
	GetAgentStats(ctx context.Context) (*model.AgentStats, error)

	// Embed analytics
	CreateEmbedEvent(ctx context.Context, e *model.EmbedEventRecord) error
	GetAnalyticsSummary(ctx context.Context, tenantID string, from, to time.Time) (*model.AnalyticsSummary, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
