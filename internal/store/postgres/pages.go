package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

const pageColumns = `id, tenant_id, path, title, published, seo, components, created_at, updated_at`

func scanPage(row scannable) (*model.Page, error) {
	var (
		p          model.Page
		seo        []byte
		components []byte
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.Path, &p.Title, &p.Published, &seo, &components,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(seo) > 0 {
		if err := json.Unmarshal(seo, &p.SEO); err != nil {
			return nil, fmt.Errorf("decode page seo: %w", err)
		}
	}
	p.Components = rawJSON(components)
	return &p, nil
}

func (q queries) CreatePage(ctx context.Context, p *model.Page) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	seo, err := marshalJSONB(p.SEO)
	if err != nil {
		return err
	}
	return uniqueViolation(q.db.QueryRowContext(ctx, `
		INSERT INTO pages (tenant_id, path, title, published, seo, components, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		p.TenantID, p.Path, p.Title, p.Published, seo, jsonbBytes(p.Components), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID))
}

func (q queries) GetPage(ctx context.Context, id int64) (*model.Page, error) {
	return scanPage(q.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, id))
}

func (q queries) ListPages(ctx context.Context, tenantID string) ([]*model.Page, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+pageColumns+` FROM pages
		WHERE ($1 = '' OR tenant_id::text = $1)
		ORDER BY path ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanPage)
}

func (q queries) UpdatePage(ctx context.Context, p *model.Page) error {
	p.UpdatedAt = time.Now().UTC()
	seo, err := marshalJSONB(p.SEO)
	if err != nil {
		return err
	}
	return expectAffected(q.db.ExecContext(ctx, `
		UPDATE pages SET path = $2, title = $3, published = $4, seo = $5, components = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.Path, p.Title, p.Published, seo, jsonbBytes(p.Components), p.UpdatedAt))
}

func (q queries) CountPages(ctx context.Context, tenantID string, publishedOnly bool) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pages
		WHERE ($1 = '' OR tenant_id::text = $1) AND (NOT $2 OR published)`,
		tenantID, publishedOnly).Scan(&n)
	return n, err
}
