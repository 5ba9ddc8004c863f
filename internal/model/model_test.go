package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestUserType_IsValid(t *testing.T) {
	for _, tc := range []struct {
		typ  UserType
		want bool
	}{
		{UserTypeClient, true},
		{UserTypeStaff, true},
		{UserTypeAdmin, true},
		{UserType(""), false},
		{UserType("root"), false},
	} {
		if got := tc.typ.IsValid(); got != tc.want {
			t.Errorf("UserType(%q).IsValid() = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestUser_IsAdmin(t *testing.T) {
	var nilUser *User
	if nilUser.IsAdmin() {
		t.Error("nil user should not be admin")
	}
	for _, tc := range []struct {
		user User
		want bool
	}{
		{User{UserType: UserTypeClient}, false},
		{User{UserType: UserTypeStaff}, true},
		{User{UserType: UserTypeAdmin}, true},
		{User{UserType: UserTypeClient, IsSuperAdmin: true}, true},
	} {
		if got := tc.user.IsAdmin(); got != tc.want {
			t.Errorf("IsAdmin(%+v) = %v, want %v", tc.user, got, tc.want)
		}
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	if s.Expired(now) {
		t.Error("session should not be expired before ExpiresAt")
	}
	if !s.Expired(now.Add(time.Minute)) {
		t.Error("session should be expired at ExpiresAt")
	}
}

func TestUser_PasswordHashNotSerialized(t *testing.T) {
	data, err := json.Marshal(User{Username: "ann", PasswordHash: "secret.salt"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("password hash leaked into JSON: %s", data)
	}
}

func TestHealthMetric_ParseThreshold(t *testing.T) {
	m := &HealthMetric{Threshold: json.RawMessage(`{"error_count":5,"time_window":300}`)}
	th, err := m.ParseThreshold()
	if err != nil {
		t.Fatal(err)
	}
	if th.ErrorCount != 5 || th.TimeWindow != 300 {
		t.Errorf("threshold = %+v", th)
	}

	empty := &HealthMetric{}
	if th, err := empty.ParseThreshold(); err != nil || !reflect.DeepEqual(th, Threshold{}) {
		t.Errorf("empty threshold = %+v, %v", th, err)
	}

	bad := &HealthMetric{Threshold: json.RawMessage(`{`)}
	if _, err := bad.ParseThreshold(); err == nil {
		t.Error("expected error for malformed threshold")
	}
}

func TestBuildConversations(t *testing.T) {
	now := time.Now()
	profiles := map[int64]*BusinessProfile{
		2: {ID: 2, BusinessName: "Two"},
		3: {ID: 3, BusinessName: "Three"},
	}
	// Newest first.
	msgs := []*Message{
		{ID: 5, SenderID: 2, ReceiverID: 1, Content: "latest from two", CreatedAt: now},
		{ID: 4, SenderID: 1, ReceiverID: 3, Content: "to three", Read: false, CreatedAt: now.Add(-time.Minute)},
		{ID: 3, SenderID: 2, ReceiverID: 1, Content: "older from two", CreatedAt: now.Add(-2 * time.Minute)},
		{ID: 2, SenderID: 2, ReceiverID: 1, Content: "read", Read: true, CreatedAt: now.Add(-3 * time.Minute)},
	}

	convs := BuildConversations(1, msgs, profiles)
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].Profile.ID != 2 || convs[0].LastMessage.ID != 5 || convs[0].UnreadCount != 2 {
		t.Errorf("conversation[0] = profile %d last %d unread %d", convs[0].Profile.ID, convs[0].LastMessage.ID, convs[0].UnreadCount)
	}
	// Messages we sent never count as unread.
	if convs[1].Profile.ID != 3 || convs[1].UnreadCount != 0 {
		t.Errorf("conversation[1] = profile %d unread %d", convs[1].Profile.ID, convs[1].UnreadCount)
	}
}

func TestValidateTenant(t *testing.T) {
	for _, tc := range []struct {
		name    string
		tenant  Tenant
		wantErr string
	}{
		{"Valid", Tenant{Name: "Acme", Status: TenantActive}, ""},
		{"MissingName", Tenant{Status: TenantActive}, "name"},
		{"BadStatus", Tenant{Name: "Acme", Status: "gone"}, "status"},
		{"NegativeCredits", Tenant{Name: "Acme", Status: TenantActive, CreditsConsumed: -1}, "credits"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTenant(&tc.tenant)
			checkValidation(t, err, tc.wantErr)
		})
	}
}

func TestValidateBusinessProfile(t *testing.T) {
	for _, tc := range []struct {
		name    string
		profile BusinessProfile
		wantErr string
	}{
		{"Valid", BusinessProfile{BusinessName: "Acme", Industry: "Accounting", Website: "https://acme.test"}, ""},
		{"MissingName", BusinessProfile{Industry: "Accounting"}, "businessName"},
		{"MissingIndustry", BusinessProfile{BusinessName: "Acme"}, "industry"},
		{"RelativeWebsite", BusinessProfile{BusinessName: "Acme", Industry: "x", Website: "acme"}, "website"},
		{"BadSpecialties", BusinessProfile{BusinessName: "Acme", Industry: "x", Specialties: json.RawMessage(`[`)}, "specialties"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			checkValidation(t, ValidateBusinessProfile(&tc.profile), tc.wantErr)
		})
	}
}

func TestValidateSOTDeclaration(t *testing.T) {
	valid := SOTDeclaration{InstanceID: "i-1", InstanceType: "client_site", BlueprintVersion: "1.0.0"}
	for _, tc := range []struct {
		name    string
		mutate  func(d *SOTDeclaration)
		wantErr string
	}{
		{"Valid", func(*SOTDeclaration) {}, ""},
		{"MissingInstance", func(d *SOTDeclaration) { d.InstanceID = "" }, "instanceId"},
		{"FTPCallback", func(d *SOTDeclaration) { d.CallbackURL = "ftp://sot.test" }, "callbackUrl"},
		{"HTTPSCallback", func(d *SOTDeclaration) { d.CallbackURL = "https://sot.test/hook" }, ""},
		{"BadStatus", func(d *SOTDeclaration) { d.Status = "retired" }, "status"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := valid
			tc.mutate(&d)
			checkValidation(t, ValidateSOTDeclaration(&d), tc.wantErr)
		})
	}
}

func TestValidatePage(t *testing.T) {
	if err := ValidatePage(&Page{TenantID: "t", Path: "/", Title: "Home"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidatePage(&Page{Path: "about", Components: json.RawMessage(`{`)})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Errors) != 4 {
		t.Errorf("got %d field errors, want 4: %v", len(ve.Errors), err)
	}
}

func checkValidation(t *testing.T, err error, wantField string) {
	t.Helper()
	if wantField == "" {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, fe := range ve.Errors {
		if fe.Field == wantField {
			return
		}
	}
	t.Errorf("no error for field %q in %v", wantField, err)
}
