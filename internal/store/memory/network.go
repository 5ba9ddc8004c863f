package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

func (s *Store) CreateBusinessProfile(_ context.Context, p *model.BusinessProfile) error {
	if err := s.lock("CreateBusinessProfile"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for _, existing := range s.data.profiles {
		if existing.UserID == p.UserID {
			return fmt.Errorf("user %d already has a business profile", p.UserID)
		}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Followers, p.Following = 0, 0
	p.ID = s.data.next("profiles")
	s.data.profiles[p.ID] = cp(p)
	return nil
}

func (s *Store) GetBusinessProfile(_ context.Context, id int64) (*model.BusinessProfile, error) {
	if err := s.lock("GetBusinessProfile"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	p, ok := s.data.profiles[id]
	if !ok {
		return nil, notFound("business profile", id)
	}
	return cp(p), nil
}

func (s *Store) GetBusinessProfileByUser(_ context.Context, userID int64) (*model.BusinessProfile, error) {
	if err := s.lock("GetBusinessProfileByUser"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	for _, p := range s.data.profiles {
		if p.UserID == userID {
			return cp(p), nil
		}
	}
	return nil, notFound("business profile for user", userID)
}

func (s *Store) UpdateBusinessProfile(_ context.Context, p *model.BusinessProfile) error {
	if err := s.lock("UpdateBusinessProfile"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	old, ok := s.data.profiles[p.ID]
	if !ok {
		return notFound("business profile", p.ID)
	}
	// Counters and ownership are not editable.
	p.UserID, p.TenantID, p.Verified = old.UserID, old.TenantID, old.Verified
	p.Followers, p.Following = old.Followers, old.Following
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.data.profiles[p.ID] = cp(p)
	return nil
}

func (s *Store) ListBusinessProfiles(_ context.Context, search string, limit int) ([]*model.BusinessProfile, error) {
	if err := s.lock("ListBusinessProfiles"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	needle := strings.ToLower(search)
	var out []*model.BusinessProfile
	for _, p := range s.data.profiles {
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.BusinessName), needle) &&
			!strings.Contains(strings.ToLower(p.Industry), needle) {
			continue
		}
		out = append(out, cp(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Followers != out[j].Followers {
			return out[i].Followers > out[j].Followers
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, limit), nil
}

func (s *Store) AdjustFollowCounts(_ context.Context, followerID, followingID int64, delta int) error {
	if err := s.lock("AdjustFollowCounts"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if p, ok := s.data.profiles[followerID]; ok {
		c := cp(p)
		c.Following = max(c.Following+delta, 0)
		s.data.profiles[followerID] = c
	}
	if p, ok := s.data.profiles[followingID]; ok {
		c := cp(p)
		c.Followers = max(c.Followers+delta, 0)
		s.data.profiles[followingID] = c
	}
	return nil
}

// --- Posts ---

func (s *Store) CreatePost(_ context.Context, p *model.BusinessPost) error {
	if err := s.lock("CreatePost"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.ID = s.data.next("posts")
	stored := cp(p)
	stored.Profile = nil
	stored.MediaURLs = slices.Clone(p.MediaURLs)
	s.data.posts[p.ID] = stored
	return nil
}

func (s *Store) withProfile(p *model.BusinessPost) *model.BusinessPost {
	c := cp(p)
	if prof, ok := s.data.profiles[p.ProfileID]; ok {
		c.Profile = cp(prof)
	}
	return c
}

func (s *Store) GetPost(_ context.Context, id int64) (*model.BusinessPost, error) {
	if err := s.lock("GetPost"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	p, ok := s.data.posts[id]
	if !ok {
		return nil, notFound("post", id)
	}
	return s.withProfile(p), nil
}

func (s *Store) ListPosts(_ context.Context, profileIDs []int64, limit int) ([]*model.BusinessPost, error) {
	if profileIDs != nil && len(profileIDs) == 0 {
		return nil, nil
	}
	if err := s.lock("ListPosts"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.BusinessPost
	for _, p := range s.data.posts {
		if profileIDs != nil && !slices.Contains(profileIDs, p.ProfileID) {
			continue
		}
		out = append(out, s.withProfile(p))
	}
	sortNewestFirst(out, func(p *model.BusinessPost) (time.Time, int64) { return p.CreatedAt, p.ID })
	return truncate(out, limit), nil
}

func (s *Store) LikePost(_ context.Context, id int64) (*model.BusinessPost, error) {
	if err := s.lock("LikePost"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	p, ok := s.data.posts[id]
	if !ok {
		return nil, notFound("post", id)
	}
	c := cp(p)
	c.Likes++
	c.UpdatedAt = time.Now().UTC()
	s.data.posts[id] = c
	return cp(c), nil
}

func (s *Store) CreateComment(_ context.Context, c *model.PostComment) error {
	if err := s.lock("CreateComment"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	p, ok := s.data.posts[c.PostID]
	if !ok {
		return notFound("post", c.PostID)
	}
	c.CreatedAt = time.Now().UTC()
	c.ID = s.data.next("comments")
	stored := cp(c)
	stored.Profile = nil
	s.data.comments[c.ID] = stored

	updated := cp(p)
	updated.Comments++
	s.data.posts[p.ID] = updated
	return nil
}

func (s *Store) ListComments(_ context.Context, postID int64) ([]*model.PostComment, error) {
	if err := s.lock("ListComments"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.PostComment
	for _, c := range s.data.comments {
		if c.PostID != postID {
			continue
		}
		cc := cp(c)
		if prof, ok := s.data.profiles[c.ProfileID]; ok {
			cc.Profile = cp(prof)
		}
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Follows ---

func (s *Store) CreateFollow(_ context.Context, f *model.Follow) error {
	if err := s.lock("CreateFollow"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if f.FollowerID == f.FollowingID {
		return fmt.Errorf("profile %d cannot follow itself", f.FollowerID)
	}
	for _, existing := range s.data.follows {
		if existing.FollowerID == f.FollowerID && existing.FollowingID == f.FollowingID {
			return fmt.Errorf("follow %d->%d already exists", f.FollowerID, f.FollowingID)
		}
	}
	f.CreatedAt = time.Now().UTC()
	f.ID = s.data.next("follows")
	s.data.follows[f.ID] = cp(f)
	return nil
}

func (s *Store) DeleteFollow(_ context.Context, followerID, followingID int64) (bool, error) {
	if err := s.lock("DeleteFollow"); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	for id, f := range s.data.follows {
		if f.FollowerID == followerID && f.FollowingID == followingID {
			delete(s.data.follows, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) IsFollowing(_ context.Context, followerID, followingID int64) (bool, error) {
	if err := s.lock("IsFollowing"); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	for _, f := range s.data.follows {
		if f.FollowerID == followerID && f.FollowingID == followingID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListFollowingIDs(_ context.Context, followerID int64) ([]int64, error) {
	if err := s.lock("ListFollowingIDs"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var follows []*model.Follow
	for _, f := range s.data.follows {
		if f.FollowerID == followerID {
			follows = append(follows, f)
		}
	}
	sort.Slice(follows, func(i, j int) bool { return follows[i].ID < follows[j].ID })
	ids := make([]int64, 0, len(follows))
	for _, f := range follows {
		ids = append(ids, f.FollowingID)
	}
	return ids, nil
}

// --- Messages ---

func (s *Store) CreateMessage(_ context.Context, m *model.Message) error {
	if err := s.lock("CreateMessage"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	m.CreatedAt = time.Now().UTC()
	m.ID = s.data.next("messages")
	s.data.messages[m.ID] = cp(m)
	return nil
}

func (s *Store) ListMessagesForProfile(_ context.Context, profileID int64) ([]*model.Message, error) {
	if err := s.lock("ListMessagesForProfile"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.Message
	for _, m := range s.data.messages {
		if m.SenderID == profileID || m.ReceiverID == profileID {
			out = append(out, cp(m))
		}
	}
	sortNewestFirst(out, func(m *model.Message) (time.Time, int64) { return m.CreatedAt, m.ID })
	return out, nil
}

func (s *Store) ListMessagesBetween(_ context.Context, a, b int64) ([]*model.Message, error) {
	if err := s.lock("ListMessagesBetween"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.Message
	for _, m := range s.data.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, cp(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkMessagesRead(_ context.Context, receiverID, senderID int64) error {
	if err := s.lock("MarkMessagesRead"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for id, m := range s.data.messages {
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.Read {
			c := cp(m)
			c.Read = true
			s.data.messages[id] = c
		}
	}
	return nil
}

// sortNewestFirst orders by timestamp descending with id as tie-breaker.
func sortNewestFirst[T any](items []*T, key func(*T) (time.Time, int64)) {
	sort.Slice(items, func(i, j int) bool {
		ti, ii := key(items[i])
		tj, ij := key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ii > ij
	})
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
