package auth

import (
	"context"

	"github.com/nextmonth/smartsite/internal/model"
)

type ctxKey struct{}

// ServiceUser is the identity attached to requests that present the static
// API token. It has no database row.
var ServiceUser = &model.User{
	Username:     "service",
	UserType:     model.UserTypeAdmin,
	IsSuperAdmin: true,
}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(ctxKey{}).(*model.User)
	return u
}
