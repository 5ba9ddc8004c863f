package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

// UpsertAgentConversation stores the full transcript keyed by conversation id.
func (q queries) UpsertAgentConversation(ctx context.Context, c *model.AgentConversation) error {
	now := time.Now().UTC()
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	msgs, err := marshalJSONB(c.Messages)
	if err != nil {
		return err
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO agent_conversations (conversation_id, tenant_id, messages, mode, metadata,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (conversation_id) DO UPDATE SET
			messages = EXCLUDED.messages,
			mode = EXCLUDED.mode,
			metadata = COALESCE(EXCLUDED.metadata, agent_conversations.metadata),
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		c.ConversationID, nullString(c.TenantID), msgs, c.Mode, jsonbBytes(c.Metadata),
		c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
}

func (q queries) CreateConversationInsight(ctx context.Context, i *model.ConversationInsight) error {
	i.CreatedAt = time.Now().UTC()
	if i.Sentiment == "" {
		i.Sentiment = "neutral"
	}
	if i.Tags == nil {
		i.Tags = []string{}
	}
	tags, err := marshalJSONB(i.Tags)
	if err != nil {
		return err
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO conversation_insights (conversation_id, tenant_id, user_message, agent_response,
			mode, intent, sentiment, lead_potential, confusion_detected, tags, analysis_notes,
			metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		i.ConversationID, nullString(i.TenantID), i.UserMessage, i.AgentResponse, i.Mode,
		nullString(i.Intent), i.Sentiment, i.LeadPotential, i.ConfusionDetected, tags,
		nullString(i.AnalysisNotes), jsonbBytes(i.Metadata), i.CreatedAt,
	).Scan(&i.ID)
}

func (q queries) ListConversationInsights(ctx context.Context, mode string, limit int) ([]*model.ConversationInsight, error) {
	query := `
		SELECT id, conversation_id, tenant_id, user_message, agent_response, mode, intent, sentiment,
			lead_potential, confusion_detected, tags, analysis_notes, metadata, created_at
		FROM conversation_insights
		WHERE ($1 = '' OR mode = $1)
		ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := q.db.QueryContext(ctx, query, mode)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, func(row scannable) (*model.ConversationInsight, error) {
		var (
			i                       model.ConversationInsight
			tenantID, intent, notes sql.NullString
			tags, metadata          []byte
		)
		err := row.Scan(&i.ID, &i.ConversationID, &tenantID, &i.UserMessage, &i.AgentResponse,
			&i.Mode, &intent, &i.Sentiment, &i.LeadPotential, &i.ConfusionDetected, &tags, &notes,
			&metadata, &i.CreatedAt)
		if err != nil {
			return nil, err
		}
		i.TenantID = tenantID.String
		i.Intent = intent.String
		i.AnalysisNotes = notes.String
		i.Metadata = rawJSON(metadata)
		if err := unmarshalStrings(tags, &i.Tags); err != nil {
			return nil, err
		}
		return &i, nil
	})
}

func (q queries) GetAgentStats(ctx context.Context) (*model.AgentStats, error) {
	var s model.AgentStats
	err := q.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM agent_conversations),
			(SELECT COUNT(*) FROM conversation_insights),
			(SELECT COUNT(*) FROM conversation_insights WHERE lead_potential)`,
	).Scan(&s.TotalConversations, &s.TotalInsights, &s.LeadPotential)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
