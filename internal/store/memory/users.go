package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	if err := s.lock("CreateUser"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for _, existing := range s.data.users {
		if existing.Username == u.Username {
			return fmt.Errorf("username %q already exists", u.Username)
		}
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.ID = s.data.next("users")
	s.data.users[u.ID] = cp(u)
	return nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*model.User, error) {
	if err := s.lock("GetUser"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return cp(u), nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	if err := s.lock("GetUserByUsername"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	for _, u := range s.data.users {
		if u.Username == username {
			return cp(u), nil
		}
	}
	return nil, notFound("user", username)
}

func (s *Store) CountUsers(_ context.Context, tenantID string) (int, error) {
	if err := s.lock("CountUsers"); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.data.users {
		if tenantID == "" || u.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (s *Store) FirstAdminUser(_ context.Context, tenantID string) (*model.User, error) {
	if err := s.lock("FirstAdminUser"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var first *model.User
	for _, u := range s.data.users {
		if u.UserType != model.UserTypeAdmin || (tenantID != "" && u.TenantID != tenantID) {
			continue
		}
		if first == nil || u.ID < first.ID {
			first = u
		}
	}
	if first == nil {
		return nil, notFound("admin user for tenant", tenantID)
	}
	return cp(first), nil
}

func (s *Store) CreateSession(_ context.Context, sess *model.Session) error {
	if err := s.lock("CreateSession"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	s.data.sessions[sess.Token] = cp(sess)
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (*model.Session, error) {
	if err := s.lock("GetSession"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	sess, ok := s.data.sessions[token]
	if !ok {
		return nil, notFound("session", "token")
	}
	return cp(sess), nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	if err := s.lock("DeleteSession"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	delete(s.data.sessions, token)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	if err := s.lock("DeleteExpiredSessions"); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	var n int64
	for tok, sess := range s.data.sessions {
		if sess.Expired(before) {
			delete(s.data.sessions, tok)
			n++
		}
	}
	return n, nil
}

// --- Tenants ---

func (s *Store) CreateTenant(_ context.Context, t *model.Tenant) error {
	if err := s.lock("CreateTenant"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = newUUID()
	}
	if _, dup := s.data.tenants[t.ID]; dup {
		return fmt.Errorf("tenant %s already exists", t.ID)
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	s.data.tenants[t.ID] = cp(t)
	return nil
}

func (s *Store) GetTenant(_ context.Context, id string) (*model.Tenant, error) {
	if err := s.lock("GetTenant"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	t, ok := s.data.tenants[id]
	if !ok {
		return nil, notFound("tenant", id)
	}
	return cp(t), nil
}

func (s *Store) ListTenants(_ context.Context) ([]*model.Tenant, error) {
	if err := s.lock("ListTenants"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	out := make([]*model.Tenant, 0, len(s.data.tenants))
	for _, t := range s.data.tenants {
		out = append(out, cp(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateTenant(_ context.Context, t *model.Tenant) error {
	if err := s.lock("UpdateTenant"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	old, ok := s.data.tenants[t.ID]
	if !ok {
		return notFound("tenant", t.ID)
	}
	t.CreatedAt = old.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.data.tenants[t.ID] = cp(t)
	return nil
}
