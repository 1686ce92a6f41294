package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"eventure/database"
	"eventure/models"
	"eventure/storage"
)

const (
	defaultFeedLimit = 10
	maxFeedLimit     = 50
)

const postSelect = `
	SELECT p.id, p.user_id, u.role AS user_role, u.display_name, u.photo_url AS user_photo_url,
		p.content, p.media_url, p.media_type, p.likes, p.created_at, p.updated_at
	FROM posts p
	JOIN users u ON u.id = p.user_id`

// PostService manages the feed: posts, likes and comments.
type PostService struct {
	db            *sqlx.DB
	blobs         storage.Blob
	notifications *NotificationService
	logger        *zap.Logger
}

// NewPostService creates a PostService.
func NewPostService(db *sqlx.DB, blobs storage.Blob, notifications *NotificationService, logger *zap.Logger) *PostService {
	return &PostService{db: db, blobs: blobs, notifications: notifications, logger: logger}
}

func mediaTypeOf(contentType string) (models.MediaType, bool) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MediaImage, true
	case strings.HasPrefix(contentType, "video/"):
		return models.MediaVideo, true
	}
	return "", false
}

// CreatePost publishes a post. Content may be empty only when media is
// attached; media must be an image or a video.
func (s *PostService) CreatePost(ctx context.Context, userID, content string, media *models.Upload) (*models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" && media == nil {
		return nil, fmt.Errorf("post content or media is required: %w", ErrInvalidInput)
	}

	var mediaType models.MediaType
	if media != nil {
		var ok bool
		if mediaType, ok = mediaTypeOf(media.ContentType); !ok {
			return nil, fmt.Errorf("media must be an image or a video, got %q: %w", media.ContentType, ErrInvalidInput)
		}
	}

	if _, err := getUser(ctx, s.db, userID); err != nil {
		return nil, err
	}

	var mediaURL, mediaKey string
	if media != nil {
		mediaKey = fmt.Sprintf("postMedia/%s/%d_%s", userID, now().UnixMilli(), media.Name)
		url, err := s.blobs.Put(ctx, mediaKey, media.Body, media.Size, media.ContentType)
		if err != nil {
			return nil, fmt.Errorf("error storing media: %w", err)
		}
		mediaURL = url
	}

	id := newID()
	ts := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, user_id, content, media_url, media_type, media_key, likes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, userID, content, mediaURL, mediaType, mediaKey, ts, ts)
	if err != nil {
		s.removeBlob(ctx, mediaKey)
		return nil, fmt.Errorf("error creating post: %w", err)
	}

	s.logger.Debug("post created", zap.String("post_id", id), zap.String("user_id", userID))
	return s.GetPostByID(ctx, id)
}

func (s *PostService) removeBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete media", zap.String("key", key), zap.Error(err))
	}
}

// GetPosts returns a page of the feed, newest first. When lastPostID names an
// existing post the page starts strictly after it; an unknown cursor is
// ignored. limit defaults to 10 and is capped at 50.
func (s *PostService) GetPosts(ctx context.Context, lastPostID string, limit int) ([]models.Post, error) {
	limit = clampLimit(limit, defaultFeedLimit, maxFeedLimit)

	query := postSelect
	var args []interface{}
	if lastPostID != "" {
		var seq int64
		err := s.db.GetContext(ctx, &seq, `SELECT seq FROM posts WHERE id = ?`, lastPostID)
		switch {
		case err == nil:
			query += ` WHERE p.seq < ?`
			args = append(args, seq)
		case errors.Is(err, sql.ErrNoRows):
		default:
			return nil, fmt.Errorf("error resolving feed cursor: %w", err)
		}
	}
	query += ` ORDER BY p.seq DESC LIMIT ?`
	args = append(args, limit)

	posts := []models.Post{}
	if err := s.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("error getting posts: %w", err)
	}
	if err := s.hydrate(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPostByID returns a single post with its likes and comments.
func (s *PostService) GetPostByID(ctx context.Context, postID string) (*models.Post, error) {
	posts := []models.Post{}
	if err := s.db.SelectContext(ctx, &posts, postSelect+` WHERE p.id = ?`, postID); err != nil {
		return nil, fmt.Errorf("error getting post: %w", err)
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if err := s.hydrate(ctx, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// GetUserPosts returns every post by userID, newest first.
func (s *PostService) GetUserPosts(ctx context.Context, userID string) ([]models.Post, error) {
	if _, err := getUser(ctx, s.db, userID); err != nil {
		return nil, err
	}

	posts := []models.Post{}
	if err := s.db.SelectContext(ctx, &posts, postSelect+` WHERE p.user_id = ? ORDER BY p.seq DESC`, userID); err != nil {
		return nil, fmt.Errorf("error getting user posts: %w", err)
	}
	if err := s.hydrate(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// hydrate fills LikedBy and Comments for posts in two batched queries.
func (s *PostService) hydrate(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	ids := make([]string, len(posts))
	index := make(map[string]int, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
		index[posts[i].ID] = i
		posts[i].LikedBy = []string{}
		posts[i].Comments = []models.Comment{}
	}

	query, args, err := sqlx.In(`SELECT post_id, user_id FROM post_likes WHERE post_id IN (?) ORDER BY rowid`, ids)
	if err != nil {
		return err
	}
	var likes []struct {
		PostID string `db:"post_id"`
		UserID string `db:"user_id"`
	}
	if err := s.db.SelectContext(ctx, &likes, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("error getting likes: %w", err)
	}
	for _, l := range likes {
		p := &posts[index[l.PostID]]
		p.LikedBy = append(p.LikedBy, l.UserID)
	}

	query, args, err = sqlx.In(`
		SELECT c.id, c.post_id, c.user_id, u.display_name, u.photo_url AS user_photo_url, c.content, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.post_id IN (?)
		ORDER BY c.seq`, ids)
	if err != nil {
		return err
	}
	var comments []models.Comment
	if err := s.db.SelectContext(ctx, &comments, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("error getting comments: %w", err)
	}
	for _, c := range comments {
		p := &posts[index[c.PostID]]
		p.Comments = append(p.Comments, c)
	}
	return nil
}

func postOwner(ctx context.Context, q sqlx.QueryerContext, postID string) (string, error) {
	var owner string
	err := sqlx.GetContext(ctx, q, &owner, `SELECT user_id FROM posts WHERE id = ?`, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("error getting post: %w", err)
	}
	return owner, nil
}

// UpdatePost replaces the content of the caller's own post.
func (s *PostService) UpdatePost(ctx context.Context, postID, userID, content string) (*models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("post content cannot be empty: %w", ErrInvalidInput)
	}

	err := database.WithTx(ctx, s.db, s.logger, "update post", func(tx *sqlx.Tx) error {
		owner, err := postOwner(ctx, tx, postID)
		if err != nil {
			return err
		}
		if owner != userID {
			return fmt.Errorf("post %s belongs to another user: %w", postID, ErrForbidden)
		}
		_, err = tx.ExecContext(ctx, `UPDATE posts SET content = ?, updated_at = ? WHERE id = ?`, content, now(), postID)
		if err != nil {
			return fmt.Errorf("error updating post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPostByID(ctx, postID)
}

// DeletePost removes the caller's own post along with its likes, comments and
// the like and comment notifications about it. Media removal is best effort.
func (s *PostService) DeletePost(ctx context.Context, postID, userID string) error {
	var mediaKey string
	var recipients []string

	err := database.WithTx(ctx, s.db, s.logger, "delete post", func(tx *sqlx.Tx) error {
		owner, err := postOwner(ctx, tx, postID)
		if err != nil {
			return err
		}
		if owner != userID {
			return fmt.Errorf("post %s belongs to another user: %w", postID, ErrForbidden)
		}

		if err := tx.GetContext(ctx, &mediaKey, `SELECT media_key FROM posts WHERE id = ?`, postID); err != nil {
			return fmt.Errorf("error getting post media: %w", err)
		}

		recipients, err = deleteForSource(ctx, tx, postID, models.NotificationLike, models.NotificationComment)
		if err != nil {
			return err
		}

		// post_likes and comments go with the post via ON DELETE CASCADE.
		if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, postID); err != nil {
			return fmt.Errorf("error deleting post: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.removeBlob(ctx, mediaKey)
	s.notifications.Refresh(ctx, recipients...)
	s.logger.Debug("post deleted", zap.String("post_id", postID))
	return nil
}

// LikePost records userID's like. Liking twice fails with ErrAlreadyLiked.
// The post owner is notified unless they liked their own post.
func (s *PostService) LikePost(ctx context.Context, postID, userID string) (*models.LikeResponse, error) {
	resp := &models.LikeResponse{PostID: postID, Liked: true}
	var owner string

	err := database.WithTx(ctx, s.db, s.logger, "like post", func(tx *sqlx.Tx) error {
		var err error
		if owner, err = postOwner(ctx, tx, postID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)`, postID, userID, now())
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("post %s: %w", postID, ErrAlreadyLiked)
		}
		if err != nil {
			return fmt.Errorf("error liking post: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE posts SET likes = likes + 1 WHERE id = ?`, postID); err != nil {
			return fmt.Errorf("error updating like count: %w", err)
		}
		return tx.GetContext(ctx, &resp.Likes, `SELECT likes FROM posts WHERE id = ?`, postID)
	})
	if err != nil {
		return nil, err
	}

	if owner != userID {
		actor, err := getUser(ctx, s.db, userID)
		if err != nil {
			s.logger.Error("failed to load liker for notification", zap.String("user_id", userID), zap.Error(err))
		} else {
			s.notifications.NotifyFrom(ctx, owner, models.NotificationLike, postID, actor)
		}
	}
	return resp, nil
}

// UnlikePost removes userID's like. Unliking a post that isn't liked fails
// with ErrNotLiked.
func (s *PostService) UnlikePost(ctx context.Context, postID, userID string) (*models.LikeResponse, error) {
	resp := &models.LikeResponse{PostID: postID, Liked: false}

	err := database.WithTx(ctx, s.db, s.logger, "unlike post", func(tx *sqlx.Tx) error {
		if _, err := postOwner(ctx, tx, postID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, userID)
		if err != nil {
			return fmt.Errorf("error unliking post: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("post %s: %w", postID, ErrNotLiked)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE posts SET likes = likes - 1 WHERE id = ?`, postID); err != nil {
			return fmt.Errorf("error updating like count: %w", err)
		}
		return tx.GetContext(ctx, &resp.Likes, `SELECT likes FROM posts WHERE id = ?`, postID)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// AddComment appends a comment to a post and notifies the post owner.
func (s *PostService) AddComment(ctx context.Context, postID, userID, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("comment cannot be empty: %w", ErrInvalidInput)
	}

	author, err := getUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ID:           newID(),
		PostID:       postID,
		UserID:       userID,
		DisplayName:  author.DisplayName,
		UserPhotoURL: author.PhotoURL,
		Content:      content,
		CreatedAt:    now(),
	}

	var owner string
	err = database.WithTx(ctx, s.db, s.logger, "add comment", func(tx *sqlx.Tx) error {
		var err error
		if owner, err = postOwner(ctx, tx, postID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO comments (id, post_id, user_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			comment.ID, postID, userID, content, comment.CreatedAt)
		if err != nil {
			return fmt.Errorf("error adding comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if owner != userID {
		s.notifications.NotifyFrom(ctx, owner, models.NotificationComment, postID, author)
	}
	return comment, nil
}
