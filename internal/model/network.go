package model

import (
	"encoding/json"
	"time"
)

// BusinessProfile is a user's public page in the business network.
// A user owns at most one profile.
type BusinessProfile struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"userId"`
	TenantID     string          `json:"tenantId,omitempty"`
	BusinessName string          `json:"businessName"`
	Industry     string          `json:"industry"`
	Description  string          `json:"description,omitempty"`
	Location     string          `json:"location,omitempty"`
	Website      string          `json:"website,omitempty"`
	Logo         string          `json:"logo,omitempty"`
	CoverImage   string          `json:"coverImage,omitempty"`
	Founded      string          `json:"founded,omitempty"`
	Size         string          `json:"size,omitempty"`
	Specialties  json.RawMessage `json:"specialties,omitempty"`
	Verified     bool            `json:"verified"`
	Followers    int             `json:"followers"`
	Following    int             `json:"following"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// BusinessPost is a status update published by a profile.
type BusinessPost struct {
	ID        int64            `json:"id"`
	ProfileID int64            `json:"profileId"`
	Content   string           `json:"content"`
	MediaURLs []string         `json:"mediaUrls,omitempty"`
	Likes     int              `json:"likes"`
	Shares    int              `json:"shares"`
	Comments  int              `json:"comments"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Profile   *BusinessProfile `json:"profile,omitempty"`
}

// PostComment is a reply to a BusinessPost.
type PostComment struct {
	ID        int64            `json:"id"`
	PostID    int64            `json:"postId"`
	ProfileID int64            `json:"profileId"`
	Content   string           `json:"content"`
	Likes     int              `json:"likes"`
	CreatedAt time.Time        `json:"createdAt"`
	Profile   *BusinessProfile `json:"profile,omitempty"`
}

// Follow is a directed edge between two profiles.
type Follow struct {
	ID          int64     `json:"id"`
	FollowerID  int64     `json:"followerId"`
	FollowingID int64     `json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Message is a direct message between two profiles.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Conversation summarizes the message thread with one counterpart.
type Conversation struct {
	Profile     *BusinessProfile `json:"profile"`
	LastMessage *Message         `json:"lastMessage"`
	UnreadCount int              `json:"unreadCount"`
}

// BuildConversations groups messages (newest first) by counterpart of
// profileID, keeping the first message seen per counterpart as the last
// message and counting unread messages received from that counterpart.
func BuildConversations(profileID int64, msgs []*Message, profiles map[int64]*BusinessProfile) []*Conversation {
	byOther := make(map[int64]*Conversation)
	var out []*Conversation
	for _, m := range msgs {
		other := m.SenderID
		if other == profileID {
			other = m.ReceiverID
		}
		c, ok := byOther[other]
		if !ok {
			c = &Conversation{Profile: profiles[other], LastMessage: m}
			byOther[other] = c
			out = append(out, c)
		}
		if m.ReceiverID == profileID && !m.Read {
			c.UnreadCount++
		}
	}
	return out
}
