// Package blueprint registers template instances, extracts their
// configuration and clones them into new tenants.
package blueprint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

const DefaultVersion = "1.0.0"

var (
	// ErrTemplateNotFound wraps sql.ErrNoRows.
	ErrTemplateNotFound = fmt.Errorf("template not found: %w", sql.ErrNoRows)
	ErrNotCloneable     = errors.New("This template is not available for cloning")
)

// Service implements the blueprint operations on top of a store.
type Service struct {
	store   store.Store
	pub     events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger

	hashPassword func(string) (string, error)
	now          func() time.Time
}

// New returns a Service. pub and m may be nil.
func New(s store.Store, pub events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        s,
		pub:          pub,
		metrics:      m,
		logger:       logger,
		hashPassword: auth.HashPassword,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Templates(ctx context.Context) ([]*model.BlueprintTemplate, error) {
	return s.store.ListBlueprintTemplates(ctx)
}

func (s *Service) Template(ctx context.Context, id int64) (*model.BlueprintTemplate, error) {
	t, err := s.store.GetBlueprintTemplate(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	return t, err
}

// NewTemplate describes a template to register.
type NewTemplate struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	BlueprintVersion string `json:"blueprintVersion"`
	IsCloneable      bool   `json:"isCloneable"`
	TenantID         string `json:"tenantId"`
}

// CreateTemplate registers a template under a fresh instance id.
func (s *Service) CreateTemplate(ctx context.Context, in NewTemplate) (*model.BlueprintTemplate, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &model.ValidationError{Errors: []model.FieldError{{Field: "name", Message: "is required"}}}
	}
	t := &model.BlueprintTemplate{
		InstanceID:       uuid.NewString(),
		Name:             in.Name,
		Description:      in.Description,
		BlueprintVersion: in.BlueprintVersion,
		IsCloneable:      in.IsCloneable,
		TenantID:         in.TenantID,
		Status:           "active",
	}
	if t.BlueprintVersion == "" {
		t.BlueprintVersion = DefaultVersion
	}
	if err := s.store.CreateBlueprintTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// TemplateUpdate holds the fields to change; nil fields are kept.
type TemplateUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsCloneable *bool   `json:"isCloneable"`
	Status      *string `json:"status"`
}

func (s *Service) UpdateTemplate(ctx context.Context, id int64, u TemplateUpdate) (*model.BlueprintTemplate, error) {
	t, err := s.Template(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil && *u.Name != "" {
		t.Name = *u.Name
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.IsCloneable != nil {
		t.IsCloneable = *u.IsCloneable
	}
	if u.Status != nil && *u.Status != "" {
		t.Status = *u.Status
	}
	if err := s.store.UpdateBlueprintTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

// Blueprint is the exported configuration of a template instance.
type Blueprint struct {
	Version         string                  `json:"version"`
	ExtractedAt     time.Time               `json:"extractedAt"`
	SOTDeclarations []*model.SOTDeclaration `json:"sotDeclarations"`
}

// Extraction is the result of Extract.
type Extraction struct {
	Message       string     `json:"message"`
	ExportID      int64      `json:"exportId"`
	BlueprintData *Blueprint `json:"blueprintData"`
}

// Extract snapshots the template instance's declarations into a stored
// export. Tenant-agnostic exports have tenant data and the business name
// replaced with placeholders.
func (s *Service) Extract(ctx context.Context, templateID int64, tenantAgnostic bool, exportedBy int64) (*Extraction, error) {
	t, err := s.Template(ctx, templateID)
	if err != nil {
		return nil, err
	}
	decls, err := s.store.ListSOTDeclarations(ctx, t.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("list declarations: %w", err)
	}
	if tenantAgnostic {
		decls = Sanitize(decls)
	}
	bp := &Blueprint{Version: t.BlueprintVersion, ExtractedAt: s.now(), SOTDeclarations: decls}
	if bp.SOTDeclarations == nil {
		bp.SOTDeclarations = []*model.SOTDeclaration{}
	}
	data, err := json.Marshal(bp)
	if err != nil {
		return nil, fmt.Errorf("marshal blueprint: %w", err)
	}

	exp := &model.BlueprintExport{
		InstanceID:       t.InstanceID,
		BlueprintVersion: t.BlueprintVersion,
		TenantID:         t.TenantID,
		IsTenantAgnostic: tenantAgnostic,
		BlueprintData:    data,
		ExportedBy:       exportedBy,
		ValidationStatus: "validated",
	}
	if err := s.store.CreateBlueprintExport(ctx, exp); err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}
	return &Extraction{Message: "Blueprint extracted successfully", ExportID: exp.ID, BlueprintData: bp}, nil
}

func (s *Service) CloneOperations(ctx context.Context, limit int) ([]*model.CloneOperation, error) {
	return s.store.ListCloneOperations(ctx, limit)
}

func (s *Service) CloneOperation(ctx context.Context, requestID string) (*model.CloneOperation, error) {
	return s.store.GetCloneOperation(ctx, requestID)
}

func (s *Service) publish(ctx context.Context, topic string, event any) {
	if err := s.pub.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish blueprint event", "err", err, "topic", topic)
	}
}
