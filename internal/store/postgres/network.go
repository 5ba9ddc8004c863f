package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/nextmonth/smartsite/internal/model"
)

const profileColumns = `p.id, p.user_id, p.tenant_id, p.business_name, p.industry, p.description,
	p.location, p.website, p.logo, p.cover_image, p.founded, p.size, p.specialties,
	p.verified, p.followers, p.following, p.created_at, p.updated_at`

func scanProfile(row scannable) (*model.BusinessProfile, error) {
	var (
		p                                        model.BusinessProfile
		tenantID, description, location, website sql.NullString
		logo, coverImage, founded, size          sql.NullString
		specialties                              []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &tenantID, &p.BusinessName, &p.Industry, &description,
		&location, &website, &logo, &coverImage, &founded, &size, &specialties,
		&p.Verified, &p.Followers, &p.Following, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.TenantID = tenantID.String
	p.Description = description.String
	p.Location = location.String
	p.Website = website.String
	p.Logo = logo.String
	p.CoverImage = coverImage.String
	p.Founded = founded.String
	p.Size = size.String
	p.Specialties = rawJSON(specialties)
	return &p, nil
}

func (q queries) CreateBusinessProfile(ctx context.Context, p *model.BusinessProfile) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return q.db.QueryRowContext(ctx, `
		INSERT INTO business_profiles (user_id, tenant_id, business_name, industry, description,
			location, website, logo, cover_image, founded, size, specialties, verified,
			followers, following, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, 0, $14, $15)
		RETURNING id`,
		p.UserID, nullString(p.TenantID), p.BusinessName, p.Industry, nullString(p.Description),
		nullString(p.Location), nullString(p.Website), nullString(p.Logo), nullString(p.CoverImage),
		nullString(p.Founded), nullString(p.Size), jsonbBytes(p.Specialties), p.Verified,
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
}

func (q queries) GetBusinessProfile(ctx context.Context, id int64) (*model.BusinessProfile, error) {
	return scanProfile(q.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM business_profiles p WHERE p.id = $1`, id))
}

func (q queries) GetBusinessProfileByUser(ctx context.Context, userID int64) (*model.BusinessProfile, error) {
	return scanProfile(q.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM business_profiles p WHERE p.user_id = $1`, userID))
}

// UpdateBusinessProfile writes the editable fields. Follower counters are
// only changed through AdjustFollowCounts.
func (q queries) UpdateBusinessProfile(ctx context.Context, p *model.BusinessProfile) error {
	p.UpdatedAt = time.Now().UTC()
	return expectAffected(q.db.ExecContext(ctx, `
		UPDATE business_profiles SET business_name = $2, industry = $3, description = $4,
			location = $5, website = $6, logo = $7, cover_image = $8, founded = $9, size = $10,
			specialties = $11, updated_at = $12
		WHERE id = $1`,
		p.ID, p.BusinessName, p.Industry, nullString(p.Description), nullString(p.Location),
		nullString(p.Website), nullString(p.Logo), nullString(p.CoverImage), nullString(p.Founded),
		nullString(p.Size), jsonbBytes(p.Specialties), p.UpdatedAt))
}

// ListBusinessProfiles returns profiles ordered by follower count. A
// non-empty search matches business name or industry case-insensitively.
func (q queries) ListBusinessProfiles(ctx context.Context, search string, limit int) ([]*model.BusinessProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM business_profiles p`
	var args []any
	if search != "" {
		query += ` WHERE p.business_name ILIKE $1 OR p.industry ILIKE $1`
		args = append(args, "%"+escapeLike(search)+"%")
	}
	query += ` ORDER BY p.followers DESC, p.id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanProfile)
}

// AdjustFollowCounts moves the following counter of followerID and the
// followers counter of followingID by delta, never below zero.
func (q queries) AdjustFollowCounts(ctx context.Context, followerID, followingID int64, delta int) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE business_profiles SET following = GREATEST(following + $2, 0) WHERE id = $1`,
		followerID, delta); err != nil {
		return fmt.Errorf("update following: %w", err)
	}
	if _, err := q.db.ExecContext(ctx,
		`UPDATE business_profiles SET followers = GREATEST(followers + $2, 0) WHERE id = $1`,
		followingID, delta); err != nil {
		return fmt.Errorf("update followers: %w", err)
	}
	return nil
}

// --- Posts ---

const postColumns = `bp.id, bp.profile_id, bp.content, bp.media_urls, bp.likes, bp.shares,
	bp.comments, bp.created_at, bp.updated_at`

func scanPost(row scannable) (*model.BusinessPost, error) {
	var (
		p     model.BusinessPost
		media []byte
	)
	err := row.Scan(&p.ID, &p.ProfileID, &p.Content, &media, &p.Likes, &p.Shares,
		&p.Comments, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalStrings(media, &p.MediaURLs); err != nil {
		return nil, err
	}
	return &p, nil
}

// scanPostWithProfile scans post columns followed by profile columns.
func scanPostWithProfile(row scannable) (*model.BusinessPost, error) {
	var (
		p                                        model.BusinessPost
		media                                    []byte
		pr                                       model.BusinessProfile
		tenantID, description, location, website sql.NullString
		logo, coverImage, founded, size          sql.NullString
		specialties                              []byte
	)
	err := row.Scan(&p.ID, &p.ProfileID, &p.Content, &media, &p.Likes, &p.Shares,
		&p.Comments, &p.CreatedAt, &p.UpdatedAt,
		&pr.ID, &pr.UserID, &tenantID, &pr.BusinessName, &pr.Industry, &description,
		&location, &website, &logo, &coverImage, &founded, &size, &specialties,
		&pr.Verified, &pr.Followers, &pr.Following, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalStrings(media, &p.MediaURLs); err != nil {
		return nil, err
	}
	pr.TenantID = tenantID.String
	pr.Description = description.String
	pr.Location = location.String
	pr.Website = website.String
	pr.Logo = logo.String
	pr.CoverImage = coverImage.String
	pr.Founded = founded.String
	pr.Size = size.String
	pr.Specialties = rawJSON(specialties)
	p.Profile = &pr
	return &p, nil
}

func (q queries) CreatePost(ctx context.Context, p *model.BusinessPost) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	media, err := marshalJSONB(p.MediaURLs)
	if err != nil {
		return err
	}
	return q.db.QueryRowContext(ctx, `
		INSERT INTO business_posts (profile_id, content, media_urls, likes, shares, comments,
			created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, 0, $4, $5)
		RETURNING id`,
		p.ProfileID, p.Content, media, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
}

func (q queries) GetPost(ctx context.Context, id int64) (*model.BusinessPost, error) {
	return scanPost(q.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM business_posts bp WHERE bp.id = $1`, id))
}

// ListPosts returns the newest posts with their author profile. A nil
// profileIDs lists every profile; an empty non-nil slice lists nothing.
func (q queries) ListPosts(ctx context.Context, profileIDs []int64, limit int) ([]*model.BusinessPost, error) {
	if profileIDs != nil && len(profileIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + postColumns + `, ` + profileColumns + `
		FROM business_posts bp JOIN business_profiles p ON p.id = bp.profile_id`
	var args []any
	if profileIDs != nil {
		query += ` WHERE bp.profile_id = ANY($1)`
		args = append(args, pq.Array(profileIDs))
	}
	query += ` ORDER BY bp.created_at DESC, bp.id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanPostWithProfile)
}

func (q queries) LikePost(ctx context.Context, id int64) (*model.BusinessPost, error) {
	return scanPost(q.db.QueryRowContext(ctx, `
		UPDATE business_posts bp SET likes = likes + 1, updated_at = now()
		WHERE bp.id = $1
		RETURNING `+postColumns, id))
}

// CreateComment inserts the comment and bumps the post's comment counter.
func (q queries) CreateComment(ctx context.Context, c *model.PostComment) error {
	c.CreatedAt = time.Now().UTC()
	if err := q.db.QueryRowContext(ctx, `
		INSERT INTO post_comments (post_id, profile_id, content, likes, created_at)
		VALUES ($1, $2, $3, 0, $4)
		RETURNING id`,
		c.PostID, c.ProfileID, c.Content, c.CreatedAt,
	).Scan(&c.ID); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE business_posts SET comments = comments + 1 WHERE id = $1`, c.PostID)
	return err
}

func (q queries) ListComments(ctx context.Context, postID int64) ([]*model.PostComment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.id, c.post_id, c.profile_id, c.content, c.likes, c.created_at, `+profileColumns+`
		FROM post_comments c JOIN business_profiles p ON p.id = c.profile_id
		WHERE c.post_id = $1
		ORDER BY c.created_at ASC, c.id ASC`, postID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, func(row scannable) (*model.PostComment, error) {
		var (
			c                                        model.PostComment
			pr                                       model.BusinessProfile
			tenantID, description, location, website sql.NullString
			logo, coverImage, founded, size          sql.NullString
			specialties                              []byte
		)
		err := row.Scan(&c.ID, &c.PostID, &c.ProfileID, &c.Content, &c.Likes, &c.CreatedAt,
			&pr.ID, &pr.UserID, &tenantID, &pr.BusinessName, &pr.Industry, &description,
			&location, &website, &logo, &coverImage, &founded, &size, &specialties,
			&pr.Verified, &pr.Followers, &pr.Following, &pr.CreatedAt, &pr.UpdatedAt)
		if err != nil {
			return nil, err
		}
		pr.TenantID = tenantID.String
		pr.Description = description.String
		pr.Location = location.String
		pr.Website = website.String
		pr.Logo = logo.String
		pr.CoverImage = coverImage.String
		pr.Founded = founded.String
		pr.Size = size.String
		pr.Specialties = rawJSON(specialties)
		c.Profile = &pr
		return &c, nil
	})
}

// --- Follows ---

func (q queries) CreateFollow(ctx context.Context, f *model.Follow) error {
	f.CreatedAt = time.Now().UTC()
	return uniqueViolation(q.db.QueryRowContext(ctx, `
		INSERT INTO follows (follower_id, following_id, created_at) VALUES ($1, $2, $3)
		RETURNING id`, f.FollowerID, f.FollowingID, f.CreatedAt).Scan(&f.ID))
}

func (q queries) DeleteFollow(ctx context.Context, followerID, followingID int64) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND following_id = $2`, followerID, followingID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q queries) IsFollowing(ctx context.Context, followerID, followingID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND following_id = $2)`,
		followerID, followingID).Scan(&exists)
	return exists, err
}

func (q queries) ListFollowingIDs(ctx context.Context, followerID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT following_id FROM follows WHERE follower_id = $1 ORDER BY id`, followerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Messages ---

const messageColumns = `id, sender_id, receiver_id, content, read, created_at`

func scanMessage(row scannable) (*model.Message, error) {
	var m model.Message
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Read, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (q queries) CreateMessage(ctx context.Context, m *model.Message) error {
	m.CreatedAt = time.Now().UTC()
	return q.db.QueryRowContext(ctx, `
		INSERT INTO messages (sender_id, receiver_id, content, read, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING id`, m.SenderID, m.ReceiverID, m.Content, m.CreatedAt).Scan(&m.ID)
}

// ListMessagesForProfile returns every message sent or received by the
// profile, newest first.
func (q queries) ListMessagesForProfile(ctx context.Context, profileID int64) ([]*model.Message, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC`, profileID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanMessage)
}

// ListMessagesBetween returns the thread between two profiles in
// chronological order.
func (q queries) ListMessagesBetween(ctx context.Context, a, b int64) ([]*model.Message, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC`, a, b)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanMessage)
}

func (q queries) MarkMessagesRead(ctx context.Context, receiverID, senderID int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE messages SET read = TRUE WHERE receiver_id = $1 AND sender_id = $2 AND read = FALSE`,
		receiverID, senderID)
	return err
}

// escapeLike escapes LIKE wildcards in user-supplied search text.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
