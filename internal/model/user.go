package model

import "time"

// UserType is the coarse role of a user account.
type UserType string

const (
	UserTypeClient UserType = "client"
	UserTypeStaff  UserType = "staff"
	UserTypeAdmin  UserType = "admin"
)

// IsValid checks whether the user type is a known value.
func (t UserType) IsValid() bool {
	switch t {
	case UserTypeClient, UserTypeStaff, UserTypeAdmin:
		return true
	}
	return false
}

// User is an account that can sign in. PasswordHash never leaves the server.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	UserType     UserType  `json:"userType"`
	TenantID     string    `json:"tenantId,omitempty"`
	IsSuperAdmin bool      `json:"isSuperAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsAdmin reports whether the user may use admin-only surfaces.
func (u *User) IsAdmin() bool {
	return u != nil && (u.IsSuperAdmin || u.UserType == UserTypeAdmin || u.UserType == UserTypeStaff)
}

// Session binds an opaque cookie token to a user until ExpiresAt.
type Session struct {
	Token     string    `json:"-"`
	UserID    int64     `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
