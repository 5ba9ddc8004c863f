package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

func (q queries) CreateEmbedEvent(ctx context.Context, e *model.EmbedEventRecord) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO embed_events (tenant_id, session_id, kind, page_url, page_title, referrer,
			event_name, event_data, user_agent, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		e.TenantID, e.SessionID, e.Kind, nullString(e.PageURL), nullString(e.PageTitle),
		nullString(e.Referrer), nullString(e.EventName), jsonbBytes(e.EventData),
		nullString(e.UserAgent), nullString(e.IPAddress), e.CreatedAt,
	).Scan(&e.ID)
}

// GetAnalyticsSummary aggregates events in [from, to) for the tenant.
func (q queries) GetAnalyticsSummary(ctx context.Context, tenantID string, from, to time.Time) (*model.AnalyticsSummary, error) {
	s := &model.AnalyticsSummary{TenantID: tenantID, TopPages: []model.PageCount{}}
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE kind = 'page_view'),
			COUNT(DISTINCT session_id),
			COUNT(*) FILTER (WHERE kind = 'event')
		FROM embed_events
		WHERE tenant_id::text = $1 AND created_at >= $2 AND created_at < $3`,
		tenantID, from, to).Scan(&s.PageViews, &s.UniqueSessions, &s.Events)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT page_url, COUNT(*) AS views FROM embed_events
		WHERE tenant_id::text = $1 AND kind = 'page_view' AND created_at >= $2 AND created_at < $3
		GROUP BY page_url
		ORDER BY views DESC, page_url ASC
		LIMIT 10`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("top pages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pc model.PageCount
		var url sql.NullString
		if err := rows.Scan(&url, &pc.Views); err != nil {
			return nil, err
		}
		pc.PageURL = url.String
		s.TopPages = append(s.TopPages, pc)
	}
	return s, rows.Err()
}
