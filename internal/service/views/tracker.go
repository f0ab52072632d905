// Package views records who viewed what: idempotent post views with
// duplicate-post accounting, and chat read watermarks.
package views

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-social/internal/app"
	"github.com/oggyb/muzz-social/internal/db"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
	"github.com/oggyb/muzz-social/internal/metrics"
	"github.com/oggyb/muzz-social/internal/repository"
	"github.com/oggyb/muzz-social/internal/service/cards"
)

// ReportPostViewsRequest is a batch of post views by the caller.
type ReportPostViewsRequest struct {
	PostIDs  []string `json:"postIds" validate:"min=1,max=100,dive,required"`
	ViewType string   `json:"viewType" validate:"omitempty,oneof=THUMBNAIL FOCUS"`
}

// ReportPostViewsResult tells how many posts counted a new view.
type ReportPostViewsResult struct {
	Recorded int `json:"recorded"`
}

// Viewer is one entry of a post's viewer list.
type Viewer struct {
	UserID    string `json:"userId"`
	ViewCount int64  `json:"viewCount"`
}

// Tracker implements view recording.
type Tracker struct {
	appCtx *app.AppContext
	posts  *repository.PostRepository
	users  *repository.UserRepository
	chats  *repository.ChatRepository
	cards  *cards.Reconciler
}

func NewTracker(appCtx *app.AppContext, reconciler *cards.Reconciler) *Tracker {
	return &Tracker{
		appCtx: appCtx,
		posts:  repository.NewPostRepository(appCtx.DB),
		users:  repository.NewUserRepository(appCtx.DB),
		chats:  repository.NewChatRepository(appCtx.DB),
		cards:  reconciler,
	}
}

// ReportPostViews records the caller's views on a batch of posts.
//
// Behavior:
//   - 1..100 ids, else ValidationError.
//   - Idempotent per (viewer, post): only the first view moves counters.
//   - Non-COMPLETED and unknown posts are ignored entirely.
//   - Self-views never count.
//   - A view on a duplicate also counts once toward the original post,
//     unless the viewer owns the original.
//   - Cards tied to the viewed posts are re-evaluated for the viewer.
func (t *Tracker) ReportPostViews(ctx context.Context, viewerID string, req *ReportPostViewsRequest) (*ReportPostViewsResult, error) {
	t.appCtx.Logger.Debug("ReportPostViews called", "viewer", viewerID, "posts", len(req.PostIDs))

	if err := t.appCtx.Validate.Struct(req); err != nil {
		return nil, svcErr.FromValidator(err)
	}
	viewType := req.ViewType
	if viewType == "" {
		viewType = db.ViewThumbnail
	}

	res := &ReportPostViewsResult{}
	var viewed []string
	err := t.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posts := t.posts.WithTx(tx)
		users := t.users.WithTx(tx)
		seen := map[string]bool{}

		for _, id := range req.PostIDs {
			if seen[id] {
				continue
			}
			seen[id] = true

			post, err := posts.Get(ctx, id)
			if err != nil {
				return err
			}
			if post == nil || post.Status != db.PostCompleted {
				metrics.RecordPostView("ignored")
				continue
			}

			counted, err := t.view(ctx, posts, users, post, viewerID, viewType)
			if err != nil {
				return err
			}
			if counted {
				res.Recorded++
				if err := users.Increment(ctx, viewerID, "viewed_posts_count", 1); err != nil {
					return err
				}
			}
			viewed = append(viewed, post.ID)

			if post.OriginalPostID == nil || *post.OriginalPostID == post.ID {
				continue
			}
			original, err := posts.Get(ctx, *post.OriginalPostID)
			if err != nil {
				return err
			}
			if original != nil {
				if _, err := t.view(ctx, posts, users, original, viewerID, viewType); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.cards.SchedulePostViewed(viewerID, viewed...)
	return res, nil
}

// view records viewerID's view of post and reports whether it counted.
func (t *Tracker) view(ctx context.Context, posts *repository.PostRepository, users *repository.UserRepository, post *db.Post, viewerID, viewType string) (bool, error) {
	now := t.appCtx.DB.NowFunc()
	first, err := posts.InsertView(ctx, post.ID, viewerID, viewType, now)
	if err != nil {
		return false, err
	}
	if !first {
		metrics.RecordPostView("repeat")
		return false, posts.TouchView(ctx, post.ID, viewerID, viewType, now)
	}
	if post.UserID == viewerID {
		metrics.RecordPostView("self")
		return false, nil
	}
	if err := posts.IncrementViewedBy(ctx, post.ID); err != nil {
		return false, err
	}
	if err := users.Increment(ctx, post.UserID, "post_viewed_by_count", 1); err != nil {
		return false, err
	}
	metrics.RecordPostView("counted")
	return true, nil
}

// PostViewedBy lists who viewed the caller's post.
func (t *Tracker) PostViewedBy(ctx context.Context, callerID, postID string) ([]Viewer, error) {
	post, err := t.posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, svcErr.NotFound("Post not found")
	}
	if post.UserID != callerID {
		return nil, svcErr.Permission("Cannot list viewers of another user's post")
	}
	rows, err := t.posts.Viewers(ctx, postID, callerID)
	if err != nil {
		return nil, err
	}
	out := make([]Viewer, 0, len(rows))
	for _, v := range rows {
		out = append(out, Viewer{UserID: v.UserID, ViewCount: v.ViewCount})
	}
	return out, nil
}

// RecordChatView marks every message of chatID up to uptoSeq as viewed by
// viewerID. It runs inside the caller's transaction.
func (t *Tracker) RecordChatView(ctx context.Context, tx *gorm.DB, viewerID, chatID string, uptoSeq int64) error {
	return t.chats.WithTx(tx).SaveView(ctx, chatID, viewerID, uptoSeq, tx.NowFunc())
}
