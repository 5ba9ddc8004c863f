package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nextmonth/smartsite/internal/model"
)

const declarationColumns = `id, instance_id, instance_type, blueprint_version, tools_supported,
	callback_url, status, is_template, is_cloneable, last_sync_at, created_at, updated_at`

func scanDeclaration(row scannable) (*model.SOTDeclaration, error) {
	var (
		d           model.SOTDeclaration
		tools       pq.StringArray
		callbackURL sql.NullString
		lastSyncAt  sql.NullTime
	)
	err := row.Scan(&d.ID, &d.InstanceID, &d.InstanceType, &d.BlueprintVersion, &tools,
		&callbackURL, &d.Status, &d.IsTemplate, &d.IsCloneable, &lastSyncAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ToolsSupported = []string(tools)
	d.CallbackURL = callbackURL.String
	d.LastSyncAt = timePtr(lastSyncAt)
	return &d, nil
}

func (q queries) CreateSOTDeclaration(ctx context.Context, d *model.SOTDeclaration) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = model.DeclarationPending
	}
	if d.ToolsSupported == nil {
		d.ToolsSupported = []string{}
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO sot_declarations (instance_id, instance_type, blueprint_version, tools_supported,
			callback_url, status, is_template, is_cloneable, last_sync_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		d.InstanceID, d.InstanceType, d.BlueprintVersion, pq.Array(d.ToolsSupported),
		nullString(d.CallbackURL), d.Status, d.IsTemplate, d.IsCloneable, nullTimePtr(d.LastSyncAt),
		d.CreatedAt, d.UpdatedAt,
	).Scan(&d.ID)
}

func (q queries) UpdateSOTDeclaration(ctx context.Context, d *model.SOTDeclaration) error {
	d.UpdatedAt = time.Now().UTC()
	return expectAffected(q.db.ExecContext(ctx, `
		UPDATE sot_declarations SET instance_type = $2, blueprint_version = $3, tools_supported = $4,
			callback_url = $5, status = $6, is_template = $7, is_cloneable = $8, last_sync_at = $9,
			updated_at = $10
		WHERE id = $1`,
		d.ID, d.InstanceType, d.BlueprintVersion, pq.Array(d.ToolsSupported), nullString(d.CallbackURL),
		d.Status, d.IsTemplate, d.IsCloneable, nullTimePtr(d.LastSyncAt), d.UpdatedAt))
}

func (q queries) GetLatestSOTDeclaration(ctx context.Context) (*model.SOTDeclaration, error) {
	return scanDeclaration(q.db.QueryRowContext(ctx,
		`SELECT `+declarationColumns+` FROM sot_declarations ORDER BY created_at DESC, id DESC LIMIT 1`))
}

func (q queries) ListSOTDeclarations(ctx context.Context, instanceID string) ([]*model.SOTDeclaration, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+declarationColumns+` FROM sot_declarations
		WHERE ($1 = '' OR instance_id::text = $1)
		ORDER BY created_at DESC, id DESC`, instanceID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanDeclaration)
}

// --- Client profiles ---

const clientProfileColumns = `id, business_id, business_name, business_type, industry, description,
	location_data, profile_data, sync_status, sync_message, last_sync_at, created_at, updated_at`

func scanClientProfile(row scannable) (*model.SOTClientProfile, error) {
	var (
		p                                   model.SOTClientProfile
		businessType, industry, description sql.NullString
		syncMessage                         sql.NullString
		location, profile                   []byte
		lastSyncAt                          sql.NullTime
	)
	err := row.Scan(&p.ID, &p.BusinessID, &p.BusinessName, &businessType, &industry, &description,
		&location, &profile, &p.SyncStatus, &syncMessage, &lastSyncAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.BusinessType = businessType.String
	p.Industry = industry.String
	p.Description = description.String
	p.SyncMessage = syncMessage.String
	p.LocationData = rawJSON(location)
	p.ProfileData = rawJSON(profile)
	p.LastSyncAt = timePtr(lastSyncAt)
	return &p, nil
}

// UpsertSOTClientProfile inserts the profile or replaces the row with the
// same business id.
func (q queries) UpsertSOTClientProfile(ctx context.Context, p *model.SOTClientProfile) error {
	now := time.Now().UTC()
	p.UpdatedAt = now
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO sot_client_profiles (business_id, business_name, business_type, industry,
			description, location_data, profile_data, sync_status, sync_message, last_sync_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (business_id) DO UPDATE SET
			business_name = EXCLUDED.business_name,
			business_type = EXCLUDED.business_type,
			industry = EXCLUDED.industry,
			description = EXCLUDED.description,
			location_data = EXCLUDED.location_data,
			profile_data = EXCLUDED.profile_data,
			sync_status = EXCLUDED.sync_status,
			sync_message = EXCLUDED.sync_message,
			last_sync_at = EXCLUDED.last_sync_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		p.BusinessID, p.BusinessName, nullString(p.BusinessType), nullString(p.Industry),
		nullString(p.Description), jsonbBytes(p.LocationData), jsonbBytes(p.ProfileData),
		p.SyncStatus, nullString(p.SyncMessage), nullTimePtr(p.LastSyncAt), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
}

// GetSOTClientProfile returns the profile for businessID, or the most
// recently synced profile when businessID is empty.
func (q queries) GetSOTClientProfile(ctx context.Context, businessID string) (*model.SOTClientProfile, error) {
	return scanClientProfile(q.db.QueryRowContext(ctx, `
		SELECT `+clientProfileColumns+` FROM sot_client_profiles
		WHERE ($1 = '' OR business_id = $1)
		ORDER BY updated_at DESC LIMIT 1`, businessID))
}

// --- Sync logs ---

func (q queries) CreateSOTSyncLog(ctx context.Context, l *model.SOTSyncLog) error {
	l.CreatedAt = time.Now().UTC()
	return q.db.QueryRowContext(ctx, `
		INSERT INTO sot_sync_logs (event_type, status, details, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, l.EventType, l.Status, jsonbBytes(l.Details), l.CreatedAt).Scan(&l.ID)
}

func (q queries) ListSOTSyncLogs(ctx context.Context, limit int) ([]*model.SOTSyncLog, error) {
	query := `SELECT id, event_type, status, details, created_at FROM sot_sync_logs ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, func(row scannable) (*model.SOTSyncLog, error) {
		var (
			l       model.SOTSyncLog
			details []byte
		)
		if err := row.Scan(&l.ID, &l.EventType, &l.Status, &details, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Details = rawJSON(details)
		return &l, nil
	})
}
