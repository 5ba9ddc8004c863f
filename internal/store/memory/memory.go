// Package memory is an in-process store.Store used by tests and by the
// server when started with a memory:// database URL. Data does not survive
// a restart.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

// state holds every table. Stored values are never mutated in place, so a
// shallow clone of the maps is a consistent snapshot.
type state struct {
	seq map[string]int64

	users         map[int64]*model.User
	sessions      map[string]*model.Session
	tenants       map[string]*model.Tenant
	profiles      map[int64]*model.BusinessProfile
	posts         map[int64]*model.BusinessPost
	comments      map[int64]*model.PostComment
	follows       map[int64]*model.Follow
	messages      map[int64]*model.Message
	templates     map[int64]*model.BlueprintTemplate
	exports       map[int64]*model.BlueprintExport
	clones        map[int64]*model.CloneOperation
	declarations  map[int64]*model.SOTDeclaration
	clientProfile map[string]*model.SOTClientProfile
	syncLogs      map[int64]*model.SOTSyncLog
	pages         map[int64]*model.Page
	metrics       map[int64]*model.HealthMetric
	metricLogs    map[int64]*model.HealthMetricLog
	incidents     map[int64]*model.HealthIncident
	notifications map[int64]*model.HealthNotification
	conversations map[string]*model.AgentConversation
	insights      map[int64]*model.ConversationInsight
	embedEvents   map[int64]*model.EmbedEventRecord
}

func newState() *state {
	return &state{
		seq:           map[string]int64{},
		users:         map[int64]*model.User{},
		sessions:      map[string]*model.Session{},
		tenants:       map[string]*model.Tenant{},
		profiles:      map[int64]*model.BusinessProfile{},
		posts:         map[int64]*model.BusinessPost{},
		comments:      map[int64]*model.PostComment{},
		follows:       map[int64]*model.Follow{},
		messages:      map[int64]*model.Message{},
		templates:     map[int64]*model.BlueprintTemplate{},
		exports:       map[int64]*model.BlueprintExport{},
		clones:        map[int64]*model.CloneOperation{},
		declarations:  map[int64]*model.SOTDeclaration{},
		clientProfile: map[string]*model.SOTClientProfile{},
		syncLogs:      map[int64]*model.SOTSyncLog{},
		pages:         map[int64]*model.Page{},
		metrics:       map[int64]*model.HealthMetric{},
		metricLogs:    map[int64]*model.HealthMetricLog{},
		incidents:     map[int64]*model.HealthIncident{},
		notifications: map[int64]*model.HealthNotification{},
		conversations: map[string]*model.AgentConversation{},
		insights:      map[int64]*model.ConversationInsight{},
		embedEvents:   map[int64]*model.EmbedEventRecord{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:           maps.Clone(s.seq),
		users:         maps.Clone(s.users),
		sessions:      maps.Clone(s.sessions),
		tenants:       maps.Clone(s.tenants),
		profiles:      maps.Clone(s.profiles),
		posts:         maps.Clone(s.posts),
		comments:      maps.Clone(s.comments),
		follows:       maps.Clone(s.follows),
		messages:      maps.Clone(s.messages),
		templates:     maps.Clone(s.templates),
		exports:       maps.Clone(s.exports),
		clones:        maps.Clone(s.clones),
		declarations:  maps.Clone(s.declarations),
		clientProfile: maps.Clone(s.clientProfile),
		syncLogs:      maps.Clone(s.syncLogs),
		pages:         maps.Clone(s.pages),
		metrics:       maps.Clone(s.metrics),
		metricLogs:    maps.Clone(s.metricLogs),
		incidents:     maps.Clone(s.incidents),
		notifications: maps.Clone(s.notifications),
		conversations: maps.Clone(s.conversations),
		insights:      maps.Clone(s.insights),
		embedEvents:   maps.Clone(s.embedEvents),
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Store is a mutex-guarded in-memory store.Store.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *state

	// FailOn makes the named method return the error, for exercising
	// failure paths. Guarded by mu.
	failOn map[string]error
}

var _ store.Store = (*Store)(nil)

// New returns an empty store seeded with the default health metrics.
func New() *Store {
	s := &Store{data: newState(), failOn: map[string]error{}}
	now := time.Now().UTC()
	for _, m := range []struct{ name, category, desc, threshold string }{
		{model.MetricAPIErrorRate, "api", "Server errors returned by API endpoints", `{"error_count": 5, "time_window": 300}`},
		{model.MetricDashboardLoadTime, "performance", "Average dashboard page load time in milliseconds", `{"max_load_time": 3000, "sample_size": 10}`},
		{model.MetricLoginFailureRate, "security", "Failed login attempts", `{"failure_rate": 0.1, "time_window": 600}`},
		{model.MetricMediaUploadFailure, "storage", "Share of failed media uploads", `{"failure_rate": 0.1, "time_window": 600}`},
	} {
		id := s.data.next("metrics")
		s.data.metrics[id] = &model.HealthMetric{
			ID: id, Name: m.name, Category: m.category, Description: m.desc,
			Threshold: json.RawMessage(m.threshold), Enabled: true, CreatedAt: now, UpdatedAt: now,
		}
	}
	return s
}

// FailOn arranges for every later call of method to return err. A nil err
// clears the failure.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, method)
		return
	}
	s.failOn[method] = err
}

// lock acquires the store and reports any injected failure for method.
func (s *Store) lock(method string) error {
	s.mu.Lock()
	if err := s.failOn[method]; err != nil {
		s.mu.Unlock()
		return err
	}
	return nil
}

// RunInTransaction serializes fn against other transactions and restores
// the pre-transaction snapshot when fn fails. Writes made outside any
// transaction while fn runs are lost on rollback.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(&txStore{Store: s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

// txStore re-enters the outer transaction instead of deadlocking on txMu.
type txStore struct {
	*Store
}

func (t *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *txStore) Close() error { return nil }

func notFound(what string, key any) error {
	return fmt.Errorf("%s %v: %w", what, key, sql.ErrNoRows)
}

func newUUID() string { return uuid.NewString() }

func cp[T any](v *T) *T {
	c := *v
	return &c
}

func errDuplicate(what string, key any) error {
	return fmt.Errorf("%s %v: %w", what, key, store.ErrDuplicate)
}
