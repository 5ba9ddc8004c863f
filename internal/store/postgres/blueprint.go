package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

const templateColumns = `id, instance_id, name, description, blueprint_version, is_cloneable,
	tenant_id, status, created_at, updated_at`

func scanTemplate(row scannable) (*model.BlueprintTemplate, error) {
	var (
		t           model.BlueprintTemplate
		description sql.NullString
		tenantID    sql.NullString
	)
	err := row.Scan(&t.ID, &t.InstanceID, &t.Name, &description, &t.BlueprintVersion,
		&t.IsCloneable, &tenantID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	t.TenantID = tenantID.String
	return &t, nil
}

func (q queries) CreateBlueprintTemplate(ctx context.Context, t *model.BlueprintTemplate) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	return q.db.QueryRowContext(ctx, `
		INSERT INTO blueprint_templates (instance_id, name, description, blueprint_version,
			is_cloneable, tenant_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		t.InstanceID, t.Name, nullString(t.Description), t.BlueprintVersion, t.IsCloneable,
		nullString(t.TenantID), t.Status, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
}

func (q queries) GetBlueprintTemplate(ctx context.Context, id int64) (*model.BlueprintTemplate, error) {
	return scanTemplate(q.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM blueprint_templates WHERE id = $1`, id))
}

func (q queries) ListBlueprintTemplates(ctx context.Context) ([]*model.BlueprintTemplate, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM blueprint_templates ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanTemplate)
}

func (q queries) UpdateBlueprintTemplate(ctx context.Context, t *model.BlueprintTemplate) error {
	t.UpdatedAt = time.Now().UTC()
	return expectAffected(q.db.ExecContext(ctx, `
		UPDATE blueprint_templates SET name = $2, description = $3, blueprint_version = $4,
			is_cloneable = $5, status = $6, updated_at = $7
		WHERE id = $1`,
		t.ID, t.Name, nullString(t.Description), t.BlueprintVersion, t.IsCloneable, t.Status, t.UpdatedAt))
}

func (q queries) CreateBlueprintExport(ctx context.Context, e *model.BlueprintExport) error {
	e.CreatedAt = time.Now().UTC()
	var exportedBy sql.NullInt64
	if e.ExportedBy != 0 {
		exportedBy = sql.NullInt64{Int64: e.ExportedBy, Valid: true}
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO blueprint_exports (instance_id, blueprint_version, tenant_id, is_tenant_agnostic,
			blueprint_data, exported_by, validation_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.InstanceID, e.BlueprintVersion, nullString(e.TenantID), e.IsTenantAgnostic,
		jsonbBytes(e.BlueprintData), exportedBy, e.ValidationStatus, e.CreatedAt,
	).Scan(&e.ID)
}

// --- Clone operations ---

const cloneColumns = `id, request_id, template_id, instance_name, admin_email, status,
	new_instance_id, error_message, metadata, started_at, completed_at`

func scanCloneOperation(row scannable) (*model.CloneOperation, error) {
	var (
		op          model.CloneOperation
		errMsg      sql.NullString
		metadata    []byte
		completedAt sql.NullTime
	)
	err := row.Scan(&op.ID, &op.RequestID, &op.TemplateID, &op.InstanceName, &op.AdminEmail,
		&op.Status, &op.NewInstanceID, &errMsg, &metadata, &op.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	op.ErrorMessage = errMsg.String
	op.Metadata = rawJSON(metadata)
	op.CompletedAt = timePtr(completedAt)
	return &op, nil
}

func (q queries) CreateCloneOperation(ctx context.Context, op *model.CloneOperation) error {
	if op.StartedAt.IsZero() {
		op.StartedAt = time.Now().UTC()
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO clone_operations (request_id, template_id, instance_name, admin_email, status,
			new_instance_id, error_message, metadata, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		op.RequestID, op.TemplateID, op.InstanceName, op.AdminEmail, string(op.Status),
		op.NewInstanceID, nullString(op.ErrorMessage), jsonbBytes(op.Metadata), op.StartedAt,
		nullTimePtr(op.CompletedAt),
	).Scan(&op.ID)
}

func (q queries) UpdateCloneOperation(ctx context.Context, op *model.CloneOperation) error {
	return expectAffected(q.db.ExecContext(ctx, `
		UPDATE clone_operations SET status = $2, error_message = $3, metadata = $4, completed_at = $5
		WHERE request_id = $1`,
		op.RequestID, string(op.Status), nullString(op.ErrorMessage), jsonbBytes(op.Metadata),
		nullTimePtr(op.CompletedAt)))
}

func (q queries) GetCloneOperation(ctx context.Context, requestID string) (*model.CloneOperation, error) {
	return scanCloneOperation(q.db.QueryRowContext(ctx,
		`SELECT `+cloneColumns+` FROM clone_operations WHERE request_id::text = $1`, requestID))
}

func (q queries) ListCloneOperations(ctx context.Context, limit int) ([]*model.CloneOperation, error) {
	query := `SELECT ` + cloneColumns + ` FROM clone_operations ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanCloneOperation)
}
