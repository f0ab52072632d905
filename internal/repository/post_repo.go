package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-social/internal/db"
)

// PostRepository is the read/write side of posts, their views and comments.
type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(database *gorm.DB) *PostRepository {
	return &PostRepository{db: database}
}

func (r *PostRepository) WithTx(tx *gorm.DB) *PostRepository {
	return &PostRepository{db: tx}
}

// Get returns the post or nil when absent.
func (r *PostRepository) Get(ctx context.Context, id string) (*db.Post, error) {
	var p db.Post
	ok, err := found(r.db.WithContext(ctx).Take(&p, "id = ?", id).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (r *PostRepository) Create(ctx context.Context, p *db.Post) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PostRepository) Update(ctx context.Context, id string, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&db.Post{}).Where("id = ?", id).Updates(updates).Error
}

// FindOriginal returns the earliest completed post with the same content
// hash, excluding postID itself.
func (r *PostRepository) FindOriginal(ctx context.Context, contentHash, postID string) (*db.Post, error) {
	if contentHash == "" {
		return nil, nil
	}
	var p db.Post
	ok, err := found(r.db.WithContext(ctx).
		Where("content_hash = ? AND id <> ? AND status = ? AND original_post_id IS NULL", contentHash, postID, db.PostCompleted).
		Order("completed_at ASC, id ASC").
		Take(&p).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// IncrementViewedBy bumps a post's viewed-by counter.
func (r *PostRepository) IncrementViewedBy(ctx context.Context, postID string) error {
	return r.db.WithContext(ctx).Model(&db.Post{}).Where("id = ?", postID).
		UpdateColumn("viewed_by_count", gorm.Expr("viewed_by_count + 1")).Error
}

// InsertView creates the (post, viewer) record if absent. Returns true only
// for the first view.
func (r *PostRepository) InsertView(ctx context.Context, postID, viewerID, viewType string, at time.Time) (bool, error) {
	v := db.PostView{
		PostID:        postID,
		UserID:        viewerID,
		ViewCount:     1,
		FirstViewedAt: at,
		LastViewedAt:  at,
	}
	if viewType == db.ViewFocus {
		v.FocusViewCount = 1
	} else {
		v.ThumbnailViewCount = 1
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&v)
	return res.RowsAffected > 0, res.Error
}

// TouchView records a repeated view on an existing record.
func (r *PostRepository) TouchView(ctx context.Context, postID, viewerID, viewType string, at time.Time) error {
	col := "thumbnail_view_count"
	if viewType == db.ViewFocus {
		col = "focus_view_count"
	}
	return r.db.WithContext(ctx).Model(&db.PostView{}).
		Where("post_id = ? AND user_id = ?", postID, viewerID).
		Updates(map[string]any{
			"view_count":     gorm.Expr("view_count + 1"),
			col:              gorm.Expr(col + " + 1"),
			"last_viewed_at": at,
		}).Error
}

// HasViewed reports whether viewerID has a view record on postID.
func (r *PostRepository) HasViewed(ctx context.Context, postID, viewerID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.PostView{}).
		Where("post_id = ? AND user_id = ?", postID, viewerID).
		Count(&n).Error
	return n > 0, err
}

// HasViewedSince reports whether viewerID viewed postID at or after since.
func (r *PostRepository) HasViewedSince(ctx context.Context, postID, viewerID string, since time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.PostView{}).
		Where("post_id = ? AND user_id = ? AND last_viewed_at >= ?", postID, viewerID, since).
		Count(&n).Error
	return n > 0, err
}

// Viewers lists view records on postID excluding ownerID, latest first.
func (r *PostRepository) Viewers(ctx context.Context, postID, ownerID string) ([]db.PostView, error) {
	var views []db.PostView
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id <> ?", postID, ownerID).
		Order("last_viewed_at DESC, user_id ASC").
		Find(&views).Error
	return views, err
}

// GetComment returns the comment or nil.
func (r *PostRepository) GetComment(ctx context.Context, id string) (*db.Comment, error) {
	var c db.Comment
	ok, err := found(r.db.WithContext(ctx).Take(&c, "id = ?", id).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

func (r *PostRepository) CreateComment(ctx context.Context, c *db.Comment) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *PostRepository) DeleteComment(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&db.Comment{}).Error
}
