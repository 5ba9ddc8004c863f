package blueprint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

// CloneRequest asks for a new instance built from a template.
type CloneRequest struct {
	TemplateID    int64  `json:"templateId"`
	InstanceName  string `json:"instanceName"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

// Validate reports missing fields.
func (r *CloneRequest) Validate() error {
	var missing []model.FieldError
	if r.TemplateID <= 0 {
		missing = append(missing, model.FieldError{Field: "templateId", Message: "is required"})
	}
	if strings.TrimSpace(r.InstanceName) == "" {
		missing = append(missing, model.FieldError{Field: "instanceName", Message: "is required"})
	}
	if strings.TrimSpace(r.AdminEmail) == "" {
		missing = append(missing, model.FieldError{Field: "adminEmail", Message: "is required"})
	}
	if r.AdminPassword == "" {
		missing = append(missing, model.FieldError{Field: "adminPassword", Message: "is required"})
	}
	if len(missing) > 0 {
		return &model.ValidationError{Errors: missing}
	}
	return nil
}

// CloneResult is returned when a clone completes.
type CloneResult struct {
	Message        string                `json:"message"`
	CloneOperation *model.CloneOperation `json:"cloneOperation"`
	NewInstanceID  string                `json:"newInstanceId"`
	AdminUserID    int64                 `json:"adminUserId"`
}

// CloneError is returned when the copy fails after the operation row was
// recorded; Operation carries the failed row.
type CloneError struct {
	Operation *model.CloneOperation
	Err       error
}

func (e *CloneError) Error() string { return "clone failed: " + e.Err.Error() }
func (e *CloneError) Unwrap() error { return e.Err }

// Clone copies a cloneable template into a new instance: a tenant, its
// admin user and the template's declarations re-keyed to the new id. The
// copy runs in one transaction; the operation row is written outside it so
// a failure stays visible.
func (s *Service) Clone(ctx context.Context, req CloneRequest) (*CloneResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tmpl, err := s.Template(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsCloneable {
		return nil, ErrNotCloneable
	}

	meta, err := json.Marshal(map[string]string{
		"originalTemplate": tmpl.Name,
		"blueprintVersion": tmpl.BlueprintVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	op := &model.CloneOperation{
		RequestID:     uuid.NewString(),
		TemplateID:    tmpl.ID,
		InstanceName:  req.InstanceName,
		AdminEmail:    req.AdminEmail,
		Status:        model.CloneInProgress,
		NewInstanceID: uuid.NewString(),
		Metadata:      meta,
		StartedAt:     s.now(),
	}
	if err := s.store.CreateCloneOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("record clone operation: %w", err)
	}
	s.publish(ctx, events.TopicCloneStarted, events.CloneStarted{Operation: op})

	adminID, err := s.copyInstance(ctx, tmpl, op, req)
	done := s.now()
	op.CompletedAt = &done
	if err != nil {
		op.Status = model.CloneFailed
		op.ErrorMessage = err.Error()
		// The request context may already be gone; the failure must still land.
		if uerr := s.store.UpdateCloneOperation(context.WithoutCancel(ctx), op); uerr != nil {
			s.logger.Error("failed to mark clone operation failed", "err", uerr, "request_id", op.RequestID)
		}
		s.metrics.ObserveClone(string(model.CloneFailed))
		s.publish(ctx, events.TopicCloneFailed, events.CloneFailed{Operation: op})
		s.logger.Error("clone failed", "err", err, "request_id", op.RequestID, "template_id", tmpl.ID)
		return nil, &CloneError{Operation: op, Err: err}
	}

	op.Status = model.CloneCompleted
	if err := s.store.UpdateCloneOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("mark clone operation completed: %w", err)
	}
	s.metrics.ObserveClone(string(model.CloneCompleted))
	s.publish(ctx, events.TopicCloneCompleted, events.CloneCompleted{Operation: op})
	s.logger.Info("instance cloned", "request_id", op.RequestID, "new_instance_id", op.NewInstanceID)

	return &CloneResult{
		Message:        "Instance cloned successfully",
		CloneOperation: op,
		NewInstanceID:  op.NewInstanceID,
		AdminUserID:    adminID,
	}, nil
}

func (s *Service) copyInstance(ctx context.Context, tmpl *model.BlueprintTemplate, op *model.CloneOperation, req CloneRequest) (int64, error) {
	hash, err := s.hashPassword(req.AdminPassword)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	var adminID int64
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		tenant := &model.Tenant{
			ID:             op.NewInstanceID,
			Name:           req.InstanceName,
			Status:         model.TenantActive,
			Plan:           "standard",
			ParentTemplate: tmpl.InstanceID,
		}
		if err := tx.CreateTenant(ctx, tenant); err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}

		admin := &model.User{
			Username:     AdminUsername(req.AdminEmail),
			PasswordHash: hash,
			Email:        req.AdminEmail,
			Name:         "Administrator",
			UserType:     model.UserTypeAdmin,
			TenantID:     op.NewInstanceID,
		}
		if err := tx.CreateUser(ctx, admin); err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
		adminID = admin.ID

		decls, err := tx.ListSOTDeclarations(ctx, tmpl.InstanceID)
		if err != nil {
			return fmt.Errorf("list declarations: %w", err)
		}
		// Listed newest first; copy oldest first so the order survives.
		for i := len(decls) - 1; i >= 0; i-- {
			d := decls[i]
			c := &model.SOTDeclaration{
				InstanceID:       op.NewInstanceID,
				InstanceType:     d.InstanceType,
				BlueprintVersion: d.BlueprintVersion,
				ToolsSupported:   d.ToolsSupported,
				CallbackURL:      d.CallbackURL,
				Status:           d.Status,
				IsTemplate:       d.IsTemplate,
				IsCloneable:      d.IsCloneable,
			}
			if err := tx.CreateSOTDeclaration(ctx, c); err != nil {
				return fmt.Errorf("copy declaration %d: %w", d.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return adminID, nil
}

// AdminUsername derives the admin username from the local part of email.
func AdminUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
