package blueprint

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func newService(t *testing.T) (*Service, *memory.Store, *recordingPublisher, *metrics.Metrics) {
	t.Helper()
	st := memory.New()
	pub := &recordingPublisher{}
	m := metrics.New()
	svc := New(st, pub, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.hashPassword = func(p string) (string, error) { return "hashed:" + p, nil }
	return svc, st, pub, m
}

func seedTemplate(t *testing.T, svc *Service, st *memory.Store, cloneable bool) *model.BlueprintTemplate {
	t.Helper()
	ctx := context.Background()
	tmpl, err := svc.CreateTemplate(ctx, NewTemplate{Name: "Accounting Starter", IsCloneable: cloneable, TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	for _, d := range []*model.SOTDeclaration{
		{InstanceID: tmpl.InstanceID, InstanceType: "Progress Accountants client portal", ToolsSupported: []string{"crm"}, CallbackURL: "https://sot.example.com/cb", IsTemplate: true},
		{InstanceID: tmpl.InstanceID, InstanceType: "progress   accountants blog", ToolsSupported: []string{"blog"}},
	} {
		if err := st.CreateSOTDeclaration(ctx, d); err != nil {
			t.Fatalf("CreateSOTDeclaration: %v", err)
		}
	}
	return tmpl
}

func validRequest(templateID int64) CloneRequest {
	return CloneRequest{
		TemplateID:    templateID,
		InstanceName:  "Smith & Co",
		AdminEmail:    "owner@smithco.example",
		AdminPassword: "s3cret",
	}
}

func TestCreateTemplate(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	tmpl, err := svc.CreateTemplate(ctx, NewTemplate{Name: "Starter"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if tmpl.InstanceID == "" || tmpl.BlueprintVersion != DefaultVersion || tmpl.Status != "active" {
		t.Errorf("template = %+v", tmpl)
	}

	_, err = svc.CreateTemplate(ctx, NewTemplate{Name: "  "})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("blank name error = %v, want ValidationError", err)
	}
}

func TestUpdateTemplate(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	tmpl := seedTemplate(t, svc, st, false)

	cloneable := true
	desc := "Now public"
	got, err := svc.UpdateTemplate(ctx, tmpl.ID, TemplateUpdate{IsCloneable: &cloneable, Description: &desc})
	if err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}
	if !got.IsCloneable || got.Description != desc || got.Name != tmpl.Name {
		t.Errorf("updated = %+v", got)
	}

	if _, err := svc.UpdateTemplate(ctx, 9999, TemplateUpdate{}); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("missing template error = %v", err)
	}
}

func TestClone_NotCloneable(t *testing.T) {
	svc, st, pub, _ := newService(t)
	tmpl := seedTemplate(t, svc, st, false)

	_, err := svc.Clone(context.Background(), validRequest(tmpl.ID))
	if !errors.Is(err, ErrNotCloneable) {
		t.Fatalf("error = %v, want ErrNotCloneable", err)
	}
	if err.Error() != "This template is not available for cloning" {
		t.Errorf("message = %q", err.Error())
	}
	ops, _ := st.ListCloneOperations(context.Background(), 10)
	if len(ops) != 0 {
		t.Errorf("clone operations = %d, want 0", len(ops))
	}
	if len(pub.Topics()) != 0 {
		t.Errorf("published %v", pub.Topics())
	}
}

func TestClone_TemplateNotFound(t *testing.T) {
	svc, _, _, _ := newService(t)
	_, err := svc.Clone(context.Background(), validRequest(42))
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("error = %v, want ErrTemplateNotFound", err)
	}
}

func TestClone_Validation(t *testing.T) {
	svc, _, _, _ := newService(t)
	req := validRequest(1)
	req.AdminEmail = ""
	req.AdminPassword = ""

	_, err := svc.Clone(context.Background(), req)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("field errors = %+v, want 2", ve.Errors)
	}
}

func TestClone_Success(t *testing.T) {
	svc, st, pub, m := newService(t)
	ctx := context.Background()
	tmpl := seedTemplate(t, svc, st, true)

	res, err := svc.Clone(ctx, validRequest(tmpl.ID))
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if res.Message != "Instance cloned successfully" {
		t.Errorf("message = %q", res.Message)
	}
	op := res.CloneOperation
	if op.Status != model.CloneCompleted || op.CompletedAt == nil || op.NewInstanceID != res.NewInstanceID {
		t.Errorf("operation = %+v", op)
	}
	var meta map[string]string
	if err := json.Unmarshal(op.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["originalTemplate"] != "Accounting Starter" || meta["blueprintVersion"] != DefaultVersion {
		t.Errorf("metadata = %v", meta)
	}

	tenant, err := st.GetTenant(ctx, res.NewInstanceID)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if tenant.Name != "Smith & Co" || tenant.ParentTemplate != tmpl.InstanceID {
		t.Errorf("tenant = %+v", tenant)
	}

	admin, err := st.GetUser(ctx, res.AdminUserID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if admin.Username != "owner" || admin.UserType != model.UserTypeAdmin || admin.TenantID != res.NewInstanceID {
		t.Errorf("admin = %+v", admin)
	}
	if admin.PasswordHash != "hashed:s3cret" {
		t.Errorf("password hash = %q", admin.PasswordHash)
	}

	copied, err := st.ListSOTDeclarations(ctx, res.NewInstanceID)
	if err != nil {
		t.Fatalf("ListSOTDeclarations: %v", err)
	}
	if len(copied) != 2 {
		t.Fatalf("copied declarations = %d, want 2", len(copied))
	}
	orig, _ := st.ListSOTDeclarations(ctx, tmpl.InstanceID)
	if len(orig) != 2 {
		t.Errorf("template declarations = %d, want 2", len(orig))
	}

	stored, err := svc.CloneOperation(ctx, op.RequestID)
	if err != nil {
		t.Fatalf("CloneOperation: %v", err)
	}
	if stored.Status != model.CloneCompleted {
		t.Errorf("stored status = %s", stored.Status)
	}

	want := []string{events.TopicCloneStarted, events.TopicCloneCompleted}
	if got := pub.Topics(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("topics = %v, want %v", got, want)
	}
	if got := testutil.ToFloat64(m.CloneOperations.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed clones = %v, want 1", got)
	}
}

func TestClone_RollsBackOnFailure(t *testing.T) {
	svc, st, pub, m := newService(t)
	ctx := context.Background()
	tmpl := seedTemplate(t, svc, st, true)

	boom := errors.New("disk full")
	st.FailOn("CreateSOTDeclaration", boom)

	_, err := svc.Clone(ctx, validRequest(tmpl.ID))
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped %v", err, boom)
	}
	var ce *CloneError
	if !errors.As(err, &ce) {
		t.Fatalf("error %T is not a CloneError", err)
	}
	newID := ce.Operation.NewInstanceID

	if _, err := st.GetTenant(ctx, newID); err == nil {
		t.Error("tenant survived rollback")
	}
	if _, err := st.GetUserByUsername(ctx, "owner"); err == nil {
		t.Error("admin user survived rollback")
	}

	stored, err := st.GetCloneOperation(ctx, ce.Operation.RequestID)
	if err != nil {
		t.Fatalf("GetCloneOperation: %v", err)
	}
	if stored.Status != model.CloneFailed || stored.CompletedAt == nil || !strings.Contains(stored.ErrorMessage, "disk full") {
		t.Errorf("stored operation = %+v", stored)
	}
	if got := pub.Topics(); len(got) != 2 || got[1] != events.TopicCloneFailed {
		t.Errorf("topics = %v", got)
	}
	if got := testutil.ToFloat64(m.CloneOperations.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed clones = %v, want 1", got)
	}
}

func TestClone_RealPasswordHash(t *testing.T) {
	svc, st, _, _ := newService(t)
	svc.hashPassword = auth.HashPassword
	tmpl := seedTemplate(t, svc, st, true)

	res, err := svc.Clone(context.Background(), validRequest(tmpl.ID))
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	admin, _ := st.GetUser(context.Background(), res.AdminUserID)
	ok, err := auth.VerifyPassword("s3cret", admin.PasswordHash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword = %v, %v", ok, err)
	}
}

func TestExtract(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	tmpl := seedTemplate(t, svc, st, true)

	ex, err := svc.Extract(ctx, tmpl.ID, true, 7)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ex.ExportID == 0 || ex.BlueprintData.Version != DefaultVersion {
		t.Errorf("extraction = %+v", ex)
	}
	for _, d := range ex.BlueprintData.SOTDeclarations {
		if d.InstanceID != "" {
			t.Errorf("instance id kept: %q", d.InstanceID)
		}
		if strings.Contains(strings.ToLower(d.InstanceType), "accountants") {
			t.Errorf("business name kept: %q", d.InstanceType)
		}
	}
	types := map[string]bool{}
	for _, d := range ex.BlueprintData.SOTDeclarations {
		types[d.InstanceType] = true
	}
	if !types["{{businessName}} client portal"] || !types["{{businessName}} blog"] {
		t.Errorf("instance types = %v", types)
	}

	// The template's own declarations are untouched.
	orig, _ := st.ListSOTDeclarations(ctx, tmpl.InstanceID)
	for _, d := range orig {
		if d.InstanceID != tmpl.InstanceID {
			t.Errorf("source declaration modified: %+v", d)
		}
	}

	exports := st.Exports(tmpl.InstanceID)
	if len(exports) != 1 || !exports[0].IsTenantAgnostic || exports[0].ExportedBy != 7 || exports[0].ValidationStatus != "validated" {
		t.Errorf("exports = %+v", exports)
	}
}

func TestExtract_KeepsTenantData(t *testing.T) {
	svc, st, _, _ := newService(t)
	tmpl := seedTemplate(t, svc, st, true)

	ex, err := svc.Extract(context.Background(), tmpl.ID, false, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, d := range ex.BlueprintData.SOTDeclarations {
		if d.InstanceID != tmpl.InstanceID {
			t.Errorf("instance id = %q, want %q", d.InstanceID, tmpl.InstanceID)
		}
	}
}

func TestReplaceBusinessName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Progress Accountants", "{{businessName}}"},
		{"About PROGRESS  accountants ltd", "About {{businessName}} ltd"},
		{"Progress", "Progress"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ReplaceBusinessName(tt.in); got != tt.want {
			t.Errorf("ReplaceBusinessName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAdminUsername(t *testing.T) {
	if got := AdminUsername("jane@example.com"); got != "jane" {
		t.Errorf("got %q", got)
	}
	if got := AdminUsername("nodomain"); got != "nodomain" {
		t.Errorf("got %q", got)
	}
}
