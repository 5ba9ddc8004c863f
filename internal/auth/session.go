package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nextmonth/smartsite/internal/idgen"
	"github.com/nextmonth/smartsite/internal/model"
)

const (
	// CookieName is the session cookie set on login.
	CookieName = "smartsite_session"
	// DefaultTTL is how long a session stays valid.
	DefaultTTL = 7 * 24 * time.Hour
)

// SessionStore is the storage the session manager needs.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, token string) (*model.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

// Options configures a Sessions manager.
type Options struct {
	// TTL is the session lifetime. Default: DefaultTTL.
	TTL time.Duration
	// Secure marks the cookie Secure (HTTPS only).
	Secure bool
	// APIToken, when set, authenticates "Authorization: Bearer" callers as
	// ServiceUser.
	APIToken string
	// SweepInterval is how often expired sessions are deleted. Default: 1h.
	SweepInterval time.Duration
}

// Sessions issues, resolves and revokes cookie sessions.
type Sessions struct {
	store SessionStore
	opts  Options
	now   func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSessions creates a session manager over store.
func NewSessions(store SessionStore, opts Options) *Sessions {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Hour
	}
	return &Sessions{store: store, opts: opts, now: time.Now}
}

// Login creates a session for u and sets the cookie on w.
func (s *Sessions) Login(ctx context.Context, w http.ResponseWriter, u *model.User) error {
	token, err := idgen.SessionToken()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	sess := &model.Session{Token: token, UserID: u.ID, ExpiresAt: now.Add(s.opts.TTL), CreatedAt: now}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(s.opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout revokes the request's session, if any, and clears the cookie.
func (s *Sessions) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		if err := s.store.DeleteSession(ctx, c.Value); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Resolve returns the user behind r: the service identity for a valid
// bearer token, the session user for a live cookie, or nil.
func (s *Sessions) Resolve(ctx context.Context, r *http.Request) (*model.User, error) {
	if s.opts.APIToken != "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			provided := strings.TrimPrefix(h, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(s.opts.APIToken)) == 1 {
				return ServiceUser, nil
			}
			return nil, nil
		}
	}

	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	sess, err := s.store.GetSession(ctx, c.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.Expired(s.now()) {
		return nil, nil
	}
	u, err := s.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session user: %w", err)
	}
	return u, nil
}

// Middleware attaches the resolved user to the request context. It never
// rejects a request; handlers decide what identity they need.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.Resolve(r.Context(), r)
		if err != nil {
			slog.Warn("resolve session", "err", err)
		}
		if u != nil {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

// StartSweeper launches a goroutine that deletes expired sessions every
// SweepInterval. Call Stop to shut it down.
func (s *Sessions) StartSweeper() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit. Safe to call when the
// sweeper was never started.
func (s *Sessions) Stop() {
	if s.stop == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Sessions) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.store.DeleteExpiredSessions(ctx, s.now().UTC())
	if err != nil {
		slog.Error("sweep sessions", "err", err)
		return
	}
	if n > 0 {
		slog.Info("swept expired sessions", "count", n)
	}
}
