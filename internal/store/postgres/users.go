package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/nextmonth/smartsite/internal/model"
)

const userColumns = `id, username, password, name, email, user_type, tenant_id,
	is_super_admin, created_at, updated_at`

func scanUser(row scannable) (*model.User, error) {
	var (
		u        model.User
		name     sql.NullString
		email    sql.NullString
		tenantID sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &name, &email, &u.UserType,
		&tenantID, &u.IsSuperAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	u.Email = email.String
	u.TenantID = tenantID.String
	return &u, nil
}

func (q queries) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return uniqueViolation(q.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password, name, email, user_type, tenant_id,
			is_super_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		u.Username, u.PasswordHash, nullString(u.Name), nullString(u.Email),
		string(u.UserType), nullString(u.TenantID), u.IsSuperAdmin, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID))
}

func (q queries) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (q queries) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (q queries) CountUsers(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE ($1 = '' OR tenant_id::text = $1)`, tenantID).Scan(&n)
	return n, err
}

// FirstAdminUser returns the oldest admin of the tenant, or of the whole
// instance when tenantID is empty.
func (q queries) FirstAdminUser(ctx context.Context, tenantID string) (*model.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE user_type = 'admin' AND ($1 = '' OR tenant_id::text = $1)
		ORDER BY id ASC LIMIT 1`, tenantID))
}

func (q queries) CreateSession(ctx context.Context, s *model.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		s.Token, s.UserID, s.ExpiresAt, s.CreatedAt)
	return err
}

func (q queries) GetSession(ctx context.Context, token string) (*model.Session, error) {
	var s model.Session
	err := q.db.QueryRowContext(ctx,
		`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = $1`, token,
	).Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (q queries) DeleteSession(ctx context.Context, token string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

func (q queries) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Tenants ---

const tenantColumns = `id, name, domain, status, plan, is_template, parent_template,
	credits_purchased, credits_consumed, support_tier, created_at, updated_at`

func scanTenant(row scannable) (*model.Tenant, error) {
	var (
		t              model.Tenant
		domain         sql.NullString
		parentTemplate sql.NullString
		supportTier    sql.NullString
	)
	err := row.Scan(&t.ID, &t.Name, &domain, &t.Status, &t.Plan, &t.IsTemplate, &parentTemplate,
		&t.CreditsPurchased, &t.CreditsConsumed, &supportTier, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Domain = domain.String
	t.ParentTemplate = parentTemplate.String
	t.SupportTier = supportTier.String
	return &t, nil
}

func (q queries) CreateTenant(ctx context.Context, t *model.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, domain, status, plan, is_template, parent_template,
			credits_purchased, credits_consumed, support_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.Name, nullString(t.Domain), string(t.Status), t.Plan, t.IsTemplate,
		nullString(t.ParentTemplate), t.CreditsPurchased, t.CreditsConsumed,
		nullString(t.SupportTier), t.CreatedAt, t.UpdatedAt)
	return err
}

func (q queries) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	return scanTenant(q.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id::text = $1`, id))
}

func (q queries) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanTenant)
}

func (q queries) UpdateTenant(ctx context.Context, t *model.Tenant) error {
	t.UpdatedAt = time.Now().UTC()
	return expectAffected(q.db.ExecContext(ctx, `
		UPDATE tenants SET name = $2, domain = $3, status = $4, plan = $5, is_template = $6,
			parent_template = $7, credits_purchased = $8, credits_consumed = $9,
			support_tier = $10, updated_at = $11
		WHERE id::text = $1`,
		t.ID, t.Name, nullString(t.Domain), string(t.Status), t.Plan, t.IsTemplate,
		nullString(t.ParentTemplate), t.CreditsPurchased, t.CreditsConsumed,
		nullString(t.SupportTier), t.UpdatedAt))
}
