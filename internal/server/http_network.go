package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

const (
	feedLimit        = 20
	profileListLimit = 20
)

// myProfile loads the caller's business profile. It writes the 404 itself
// and returns nil when there is none.
func (s *Server) myProfile(w http.ResponseWriter, r *http.Request) *model.BusinessProfile {
	u := auth.UserFromContext(r.Context())
	p, err := s.store.GetBusinessProfileByUser(r.Context(), u.ID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "You need to create a business profile first")
		return nil
	}
	if err != nil {
		s.fail(w, r, err, "business profile", "failed to get business profile")
		return nil
	}
	return p
}

// handleGetMyProfile handles GET /api/business-network/profile.
func (s *Server) handleGetMyProfile(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	p, err := s.store.GetBusinessProfileByUser(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err, "business profile", "failed to get business profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleCreateProfile handles POST /api/business-network/profile.
func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := auth.UserFromContext(ctx)
	if _, err := s.store.GetBusinessProfileByUser(ctx, u.ID); err == nil {
		writeError(w, http.StatusBadRequest, "User already has a business profile")
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.fail(w, r, err, "business profile", "failed to create business profile")
		return
	}

	var p model.BusinessProfile
	if err := decodeJSON(w, r, &p); err != nil {
		s.fail(w, r, err, "business profile", "failed to create business profile")
		return
	}
	p.ID = 0
	p.UserID = u.ID
	p.TenantID = u.TenantID
	p.Verified = false
	if err := model.ValidateBusinessProfile(&p); err != nil {
		s.fail(w, r, err, "business profile", "failed to create business profile")
		return
	}
	if err := s.store.CreateBusinessProfile(ctx, &p); err != nil {
		s.fail(w, r, err, "business profile", "failed to create business profile")
		return
	}
	s.emit(ctx, events.TopicBusinessIdentityUpdated, events.BusinessIdentityUpdated{Profile: &p})
	writeJSON(w, http.StatusCreated, &p)
}

// handleUpdateProfile handles PUT /api/business-network/profile. Fields
// missing from the body keep their stored values.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p := s.myProfile(w, r)
	if p == nil {
		return
	}
	id := p.ID
	if err := decodeJSON(w, r, p); err != nil {
		s.fail(w, r, err, "business profile", "failed to update business profile")
		return
	}
	p.ID = id
	if err := model.ValidateBusinessProfile(p); err != nil {
		s.fail(w, r, err, "business profile", "failed to update business profile")
		return
	}
	if err := s.store.UpdateBusinessProfile(r.Context(), p); err != nil {
		s.fail(w, r, err, "business profile", "failed to update business profile")
		return
	}
	s.emit(r.Context(), events.TopicBusinessIdentityUpdated, events.BusinessIdentityUpdated{Profile: p})
	writeJSON(w, http.StatusOK, p)
}

// handleListProfiles handles GET /api/business-network/profiles?search=.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	limit := profileListLimit
	if search != "" {
		limit = 0
	}
	profiles, err := s.store.ListBusinessProfiles(r.Context(), search, limit)
	if err != nil {
		s.fail(w, r, err, "business profile", "failed to list business profiles")
		return
	}
	if profiles == nil {
		profiles = []*model.BusinessProfile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

// handleGetProfile handles GET /api/business-network/profiles/{id}.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid profile ID")
		return
	}
	p, err := s.store.GetBusinessProfile(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "business profile", "failed to get business profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Follows ---

// handleFollow handles POST /api/business-network/profiles/{id}/follow.
// The follow row and both counters change in one transaction.
func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid profile ID")
		return
	}
	me := s.myProfile(w, r)
	if me == nil {
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetBusinessProfile(ctx, targetID); err != nil {
		s.fail(w, r, err, "business profile", "failed to follow profile")
		return
	}
	if me.ID == targetID {
		writeError(w, http.StatusBadRequest, "You cannot follow yourself")
		return
	}

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		following, err := tx.IsFollowing(ctx, me.ID, targetID)
		if err != nil {
			return err
		}
		if following {
			return inputError("Already following this profile")
		}
		if err := tx.CreateFollow(ctx, &model.Follow{FollowerID: me.ID, FollowingID: targetID}); err != nil {
			return err
		}
		return tx.AdjustFollowCounts(ctx, me.ID, targetID, 1)
	})
	if err != nil {
		s.fail(w, r, err, "business profile", "failed to follow profile")
		return
	}
	s.emit(ctx, events.TopicFollowed, events.Followed{FollowerID: me.ID, FollowingID: targetID})
	writeJSON(w, http.StatusOK, map[string]bool{"following": true})
}

// handleUnfollow handles DELETE /api/business-network/profiles/{id}/follow.
func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid profile ID")
		return
	}
	me := s.myProfile(w, r)
	if me == nil {
		return
	}
	ctx := r.Context()
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		removed, err := tx.DeleteFollow(ctx, me.ID, targetID)
		if err != nil {
			return err
		}
		if !removed {
			return inputError("Not following this profile")
		}
		return tx.AdjustFollowCounts(ctx, me.ID, targetID, -1)
	})
	if err != nil {
		s.fail(w, r, err, "business profile", "failed to unfollow profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": false})
}

// handleIsFollowing handles GET /api/business-network/profiles/{id}/following.
func (s *Server) handleIsFollowing(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid profile ID")
		return
	}
	ctx := r.Context()
	me, err := s.store.GetBusinessProfileByUser(ctx, auth.UserFromContext(ctx).ID)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusOK, map[string]bool{"following": false})
		return
	}
	if err != nil {
		s.fail(w, r, err, "business profile", "failed to check follow status")
		return
	}
	following, err := s.store.IsFollowing(ctx, me.ID, targetID)
	if err != nil {
		s.fail(w, r, err, "business profile", "failed to check follow status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": following})
}

// --- Posts ---

// handleListPosts handles GET /api/business-network/posts.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	s.writePosts(w, r, nil)
}

// handleFollowingPosts handles GET /api/business-network/posts/following.
func (s *Server) handleFollowingPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me, err := s.store.GetBusinessProfileByUser(ctx, auth.UserFromContext(ctx).ID)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusOK, []*model.BusinessPost{})
		return
	}
	if err != nil {
		s.fail(w, r, err, "post", "failed to list posts")
		return
	}
	ids, err := s.store.ListFollowingIDs(ctx, me.ID)
	if err != nil {
		s.fail(w, r, err, "post", "failed to list posts")
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	s.writePosts(w, r, ids)
}

func (s *Server) writePosts(w http.ResponseWriter, r *http.Request, profileIDs []int64) {
	posts, err := s.store.ListPosts(r.Context(), profileIDs, feedLimit)
	if err != nil {
		s.fail(w, r, err, "post", "failed to list posts")
		return
	}
	if posts == nil {
		posts = []*model.BusinessPost{}
	}
	writeJSON(w, http.StatusOK, posts)
}

type postInput struct {
	Content   string   `json:"content"`
	MediaURLs []string `json:"mediaUrls"`
}

// handleCreatePost handles POST /api/business-network/posts.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	me := s.myProfile(w, r)
	if me == nil {
		return
	}
	var in postInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "post", "failed to create post")
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	post := &model.BusinessPost{ProfileID: me.ID, Content: in.Content, MediaURLs: in.MediaURLs}
	if err := s.store.CreatePost(r.Context(), post); err != nil {
		s.fail(w, r, err, "post", "failed to create post")
		return
	}
	post.Profile = me
	s.emit(r.Context(), events.TopicPostCreated, events.PostCreated{Post: post})
	writeJSON(w, http.StatusCreated, post)
}

// handleLikePost handles POST /api/business-network/posts/{id}/like.
func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}
	post, err := s.store.LikePost(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "post", "failed to like post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handleListComments handles GET /api/business-network/posts/{id}/comments.
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}
	if _, err := s.store.GetPost(r.Context(), id); err != nil {
		s.fail(w, r, err, "post", "failed to list comments")
		return
	}
	comments, err := s.store.ListComments(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "post", "failed to list comments")
		return
	}
	if comments == nil {
		comments = []*model.PostComment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

// handleCreateComment handles POST /api/business-network/posts/{id}/comments.
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}
	me := s.myProfile(w, r)
	if me == nil {
		return
	}
	var in postInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "post", "failed to add comment")
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	c := &model.PostComment{PostID: id, ProfileID: me.ID, Content: in.Content}
	if err := s.store.CreateComment(r.Context(), c); err != nil {
		s.fail(w, r, err, "post", "failed to add comment")
		return
	}
	c.Profile = me
	writeJSON(w, http.StatusCreated, c)
}

// --- Messages ---

type messageInput struct {
	ReceiverID int64  `json:"receiverId"`
	Content    string `json:"content"`
}

// handleSendMessage handles POST /api/business-network/messages.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	me := s.myProfile(w, r)
	if me == nil {
		return
	}
	var in messageInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "message", "failed to send message")
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetBusinessProfile(ctx, in.ReceiverID); err != nil {
		s.fail(w, r, err, "receiver", "failed to send message")
		return
	}
	m := &model.Message{SenderID: me.ID, ReceiverID: in.ReceiverID, Content: in.Content}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		s.fail(w, r, err, "message", "failed to send message")
		return
	}
	s.emit(ctx, events.TopicMessageSent, events.MessageSent{Message: m})
	writeJSON(w, http.StatusCreated, m)
}

// handleConversations handles GET /api/business-network/conversations.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	me := s.myProfile(w, r)
	if me == nil {
		return
	}
	ctx := r.Context()
	msgs, err := s.store.ListMessagesForProfile(ctx, me.ID)
	if err != nil {
		s.fail(w, r, err, "message", "failed to list conversations")
		return
	}
	profiles := map[int64]*model.BusinessProfile{}
	for _, m := range msgs {
		other := m.SenderID
		if other == me.ID {
			other = m.ReceiverID
		}
		if _, seen := profiles[other]; seen {
			continue
		}
		p, err := s.store.GetBusinessProfile(ctx, other)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			s.fail(w, r, err, "message", "failed to list conversations")
			return
		}
		profiles[other] = p
	}
	convs := model.BuildConversations(me.ID, msgs, profiles)
	if convs == nil {
		convs = []*model.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// handleListMessages handles GET /api/business-network/messages/{profileId}
// and marks the messages received from that profile as read.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	otherID, err := pathID(r, "profileId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid profile ID")
		return
	}
	me := s.myProfile(w, r)
	if me == nil {
		return
	}
	ctx := r.Context()
	msgs, err := s.store.ListMessagesBetween(ctx, me.ID, otherID)
	if err != nil {
		s.fail(w, r, err, "message", "failed to list messages")
		return
	}
	if err := s.store.MarkMessagesRead(ctx, me.ID, otherID); err != nil {
		s.fail(w, r, err, "message", "failed to mark messages read")
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
