package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/model"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	TenantID string `json:"tenantId"`
}

// handleRegister handles POST /api/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "user", "failed to register")
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	var ve model.ValidationError
	if in.Username == "" {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "username", Message: "is required"})
	}
	if len(in.Password) < 6 {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "password", Message: "must be at least 6 characters"})
	}
	if ve.HasErrors() {
		s.fail(w, r, &ve, "user", "failed to register")
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetUserByUsername(ctx, in.Username); err == nil {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.fail(w, r, err, "user", "failed to register")
		return
	}
	if in.TenantID != "" {
		if _, err := s.store.GetTenant(ctx, in.TenantID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = inputError("unknown tenant")
			}
			s.fail(w, r, err, "tenant", "failed to register")
			return
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		s.fail(w, r, err, "user", "failed to register")
		return
	}
	u := &model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Name:         in.Name,
		Email:        in.Email,
		UserType:     model.UserTypeClient,
		TenantID:     in.TenantID,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		s.fail(w, r, err, "user", "failed to register")
		return
	}
	if err := s.sessions.Login(ctx, w, u); err != nil {
		s.fail(w, r, err, "user", "failed to start session")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// handleLogin handles POST /api/login. Failures feed the login failure
// tracker.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "user", "failed to log in")
		return
	}

	ctx := r.Context()
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.fail(w, r, err, "user", "failed to log in")
		return
	}
	ok := false
	if u != nil {
		if ok, err = auth.VerifyPassword(in.Password, u.PasswordHash); err != nil {
			s.logger.Warn("password verification failed", "err", err, "user_id", u.ID)
		}
	}
	if !ok {
		s.Tracker().TrackLoginFailure(clientKey(r))
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	if err := s.sessions.Login(ctx, w, u); err != nil {
		s.fail(w, r, err, "user", "failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleLogout handles POST /api/logout. It succeeds without a session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context(), w, r); err != nil {
		s.logger.Warn("logout failed", "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleCurrentUser handles GET /api/user.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.UserFromContext(r.Context()))
}
