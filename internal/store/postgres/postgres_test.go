package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var userRowColumns = []string{
	"id", "username", "password", "name", "email", "user_type", "tenant_id",
	"is_super_admin", "created_at", "updated_at",
}

var declarationRowColumns = []string{
	"id", "instance_id", "instance_type", "blueprint_version", "tools_supported",
	"callback_url", "status", "is_template", "is_cloneable", "last_sync_at", "created_at", "updated_at",
}

func TestScanHelpers(t *testing.T) {
	if nullTimePtr(nil).Valid {
		t.Error("nullTimePtr(nil) should be invalid")
	}
	now := time.Now()
	if nt := nullTimePtr(&now); !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("nullTimePtr(now) = %v", nt)
	}
	if timePtr(sql.NullTime{}) != nil {
		t.Error("timePtr(invalid) should be nil")
	}
	if tp := timePtr(sql.NullTime{Time: now, Valid: true}); tp == nil || !tp.Equal(now) {
		t.Errorf("timePtr(valid) = %v", tp)
	}

	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("hello"); !ns.Valid || ns.String != "hello" {
		t.Errorf("nullString(\"hello\") = %v", ns)
	}

	if jsonbBytes(nil) != nil {
		t.Error("jsonbBytes(nil) should be nil")
	}
	input := json.RawMessage(`{"key":"value"}`)
	if string(jsonbBytes(input)) != `{"key":"value"}` {
		t.Errorf("jsonbBytes = %s", jsonbBytes(input))
	}
	if rawJSON(nil) != nil {
		t.Error("rawJSON(nil) should be nil")
	}

	var dst []string
	if err := unmarshalStrings([]byte(`["a","b"]`), &dst); err != nil || len(dst) != 2 {
		t.Errorf("unmarshalStrings = %v, %v", dst, err)
	}
	if err := unmarshalStrings([]byte(`{`), &dst); err == nil {
		t.Error("expected error for malformed array")
	}
}

func TestEscapeLike(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"plain", "plain"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
	} {
		if got := escapeLike(tc.in); got != tc.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreateUser(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	u := &model.User{Username: "ann", PasswordHash: "h.s", UserType: model.UserTypeAdmin, TenantID: "t-1"}

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("ann", "h.s", sql.NullString{}, sql.NullString{}, "admin",
			sql.NullString{String: "t-1", Valid: true}, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	if err := q.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID != 42 {
		t.Errorf("ID = %d, want 42", u.ID)
	}
	if u.CreatedAt.IsZero() || u.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestGetUserByUsername(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM users WHERE username = \\$1").WithArgs("ann").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(7, "ann", "h.s", "Ann", nil, "client", nil, true, now, now))

	u, err := q.GetUserByUsername(context.Background(), "ann")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u.ID != 7 || u.Name != "Ann" || u.Email != "" || u.TenantID != "" || !u.IsSuperAdmin {
		t.Errorf("user = %+v", u)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	mock.ExpectQuery("SELECT .+ FROM users WHERE id = \\$1").WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := q.GetUser(context.Background(), 9)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestUpdateTenant_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	mock.ExpectExec("UPDATE tenants SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := q.UpdateTenant(context.Background(), &model.Tenant{ID: "missing", Name: "x", Status: model.TenantActive})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestAdjustFollowCounts(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	mock.ExpectExec("UPDATE business_profiles SET following = GREATEST\\(following \\+ \\$2, 0\\)").
		WithArgs(int64(1), -1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE business_profiles SET followers = GREATEST\\(followers \\+ \\$2, 0\\)").
		WithArgs(int64(2), -1).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := q.AdjustFollowCounts(context.Background(), 1, 2, -1); err != nil {
		t.Fatalf("AdjustFollowCounts: %v", err)
	}
}

func TestDeleteFollow(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	mock.ExpectExec("DELETE FROM follows").WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := q.DeleteFollow(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("DeleteFollow: %v", err)
	}
	if removed {
		t.Error("expected removed = false when no row matched")
	}
}

func TestListPosts_EmptyFollowSet(t *testing.T) {
	db, _ := newMockDB(t)
	q := queries{db: db}
	// No query expected: an empty follow set short-circuits.
	posts, err := q.ListPosts(context.Background(), []int64{}, 20)
	if err != nil || posts != nil {
		t.Fatalf("ListPosts = %v, %v", posts, err)
	}
}

func TestListBusinessProfiles_Search(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	mock.ExpectQuery("ILIKE \\$1 .+ORDER BY p.followers DESC.+LIMIT 20").
		WithArgs(`%tax\_ad%`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	// Column mismatch would fail the scan, but the empty result never scans.
	profiles, err := q.ListBusinessProfiles(context.Background(), "tax_ad", 20)
	if err != nil {
		t.Fatalf("ListBusinessProfiles: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("got %d profiles, want 0", len(profiles))
	}
}

func TestGetLatestSOTDeclaration(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM sot_declarations ORDER BY created_at DESC, id DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows(declarationRowColumns).AddRow(
			3, "inst-1", "client_site", "1.2.0", "{crm,seo}",
			"https://sot.test/hook", "pending", false, true, nil, now, now))

	d, err := q.GetLatestSOTDeclaration(context.Background())
	if err != nil {
		t.Fatalf("GetLatestSOTDeclaration: %v", err)
	}
	if d.ID != 3 || d.CallbackURL != "https://sot.test/hook" || len(d.ToolsSupported) != 2 || d.LastSyncAt != nil {
		t.Errorf("declaration = %+v", d)
	}
}

func TestUpsertSOTClientProfile(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	now := time.Now().UTC()
	p := &model.SOTClientProfile{
		BusinessID:   "inst-1",
		BusinessName: "Progress Accountants",
		ProfileData:  json.RawMessage(`{"businessId":"inst-1"}`),
		SyncStatus:   "synced",
		LastSyncAt:   &now,
	}
	mock.ExpectQuery("INSERT INTO sot_client_profiles .+ON CONFLICT \\(business_id\\) DO UPDATE").
		WithArgs("inst-1", "Progress Accountants", sql.NullString{}, sql.NullString{}, sql.NullString{},
			sqlmock.AnyArg(), []byte(`{"businessId":"inst-1"}`), "synced", sql.NullString{},
			sql.NullTime{Time: now, Valid: true}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	if err := q.UpsertSOTClientProfile(context.Background(), p); err != nil {
		t.Fatalf("UpsertSOTClientProfile: %v", err)
	}
	if p.ID != 1 {
		t.Errorf("ID = %d, want 1", p.ID)
	}
}

func TestSetIncidentStatus(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE health_incidents SET status").
		WithArgs(int64(5), "resolved", sql.NullTime{Time: at, Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := q.SetIncidentStatus(context.Background(), 5, model.IncidentResolved, at); err != nil {
		t.Fatalf("SetIncidentStatus resolved: %v", err)
	}

	mock.ExpectExec("UPDATE health_incidents SET status").
		WithArgs(int64(5), "acknowledged", sql.NullTime{}).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := q.SetIncidentStatus(context.Background(), 5, model.IncidentAcknowledged, at)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestGetAnalyticsSummary(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery("SELECT .+FROM embed_events").WithArgs("t-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"views", "sessions", "events"}).AddRow(12, 4, 3))
	mock.ExpectQuery("SELECT page_url, COUNT").WithArgs("t-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"page_url", "views"}).
			AddRow("/", 8).AddRow("/services", 4))

	s, err := q.GetAnalyticsSummary(context.Background(), "t-1", from, to)
	if err != nil {
		t.Fatalf("GetAnalyticsSummary: %v", err)
	}
	if s.PageViews != 12 || s.UniqueSessions != 4 || s.Events != 3 {
		t.Errorf("summary = %+v", s)
	}
	if len(s.TopPages) != 2 || s.TopPages[0].PageURL != "/" || s.TopPages[0].Views != 8 {
		t.Errorf("top pages = %+v", s.TopPages)
	}
}

func TestRunInTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sessions WHERE token").WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return tx.DeleteSession(context.Background(), "tok")
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		// Nested calls reuse the same transaction.
		return tx.RunInTransaction(context.Background(), func(store.Store) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}
