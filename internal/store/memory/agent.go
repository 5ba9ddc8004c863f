package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

func (s *Store) UpsertAgentConversation(_ context.Context, c *model.AgentConversation) error {
	if err := s.lock("UpsertAgentConversation"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	now := time.Now().UTC()
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	stored := cp(c)
	stored.Messages = slices.Clone(c.Messages)
	if old, ok := s.data.conversations[c.ConversationID]; ok {
		stored.ID, stored.CreatedAt, stored.TenantID = old.ID, old.CreatedAt, old.TenantID
		if stored.Metadata == nil {
			stored.Metadata = old.Metadata
		}
	} else {
		stored.ID = s.data.next("conversations")
	}
	c.ID = stored.ID
	s.data.conversations[c.ConversationID] = stored
	return nil
}

// Conversation returns the stored transcript, or nil.
func (s *Store) Conversation(id string) *model.AgentConversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.conversations[id]
	if !ok {
		return nil
	}
	out := cp(c)
	out.Messages = slices.Clone(c.Messages)
	return out
}

func (s *Store) CreateConversationInsight(_ context.Context, i *model.ConversationInsight) error {
	if err := s.lock("CreateConversationInsight"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	i.CreatedAt = time.Now().UTC()
	if i.Sentiment == "" {
		i.Sentiment = "neutral"
	}
	if i.Tags == nil {
		i.Tags = []string{}
	}
	i.ID = s.data.next("insights")
	stored := cp(i)
	stored.Tags = slices.Clone(i.Tags)
	s.data.insights[i.ID] = stored
	return nil
}

func (s *Store) ListConversationInsights(_ context.Context, mode string, limit int) ([]*model.ConversationInsight, error) {
	if err := s.lock("ListConversationInsights"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.ConversationInsight
	for _, i := range s.data.insights {
		if mode != "" && i.Mode != mode {
			continue
		}
		c := cp(i)
		c.Tags = slices.Clone(i.Tags)
		out = append(out, c)
	}
	sortNewestFirst(out, func(i *model.ConversationInsight) (time.Time, int64) { return i.CreatedAt, i.ID })
	return truncate(out, limit), nil
}

func (s *Store) GetAgentStats(_ context.Context) (*model.AgentStats, error) {
	if err := s.lock("GetAgentStats"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	st := &model.AgentStats{
		TotalConversations: len(s.data.conversations),
		TotalInsights:      len(s.data.insights),
	}
	for _, i := range s.data.insights {
		if i.LeadPotential {
			st.LeadPotential++
		}
	}
	return st, nil
}

// --- Embed analytics ---

func (s *Store) CreateEmbedEvent(_ context.Context, e *model.EmbedEventRecord) error {
	if err := s.lock("CreateEmbedEvent"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.ID = s.data.next("embedEvents")
	s.data.embedEvents[e.ID] = cp(e)
	return nil
}

func (s *Store) GetAnalyticsSummary(_ context.Context, tenantID string, from, to time.Time) (*model.AnalyticsSummary, error) {
	if err := s.lock("GetAnalyticsSummary"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	sum := &model.AnalyticsSummary{TenantID: tenantID, TopPages: []model.PageCount{}}
	sessions := map[string]struct{}{}
	views := map[string]int{}
	for _, e := range s.data.embedEvents {
		if e.TenantID != tenantID || e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		sessions[e.SessionID] = struct{}{}
		switch e.Kind {
		case model.EmbedPageView:
			sum.PageViews++
			views[e.PageURL]++
		case model.EmbedEvent:
			sum.Events++
		}
	}
	sum.UniqueSessions = len(sessions)
	for url, n := range views {
		sum.TopPages = append(sum.TopPages, model.PageCount{PageURL: url, Views: n})
	}
	sort.Slice(sum.TopPages, func(i, j int) bool {
		a, b := sum.TopPages[i], sum.TopPages[j]
		if a.Views != b.Views {
			return a.Views > b.Views
		}
		return a.PageURL < b.PageURL
	})
	sum.TopPages = truncate(sum.TopPages, 10)
	return sum, nil
}
