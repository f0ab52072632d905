package social

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-social/internal/db"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
	"github.com/oggyb/muzz-social/internal/utils/mentions"
)

// AddPost registers an uploaded post as PENDING.
func (s *Service) AddPost(ctx context.Context, callerID string, req *AddPostRequest) (*Post, error) {
	s.appCtx.Logger.Debug("AddPost called", "caller", callerID, "post", req.PostID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	p := &db.Post{
		ID:           req.PostID,
		UserID:       callerID,
		Status:       db.PostPending,
		ContentHash:  req.ContentHash,
		TakenInReal:  req.TakenInReal,
		ImageURL:     req.ImageURL,
		ThumbnailURL: req.ThumbnailURL,
	}
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.active(ctx, tx, callerID, CodeUserNotActive); err != nil {
			return err
		}
		posts := s.posts.WithTx(tx)
		if existing, err := posts.Get(ctx, req.PostID); err != nil {
			return err
		} else if existing != nil {
			return svcErr.State("Post already exists")
		}
		return posts.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return toPost(p), nil
}

// ownPost loads postID and requires the caller to own it.
func (s *Service) ownPost(ctx context.Context, tx *gorm.DB, callerID, postID string) (*db.Post, error) {
	p, err := s.posts.WithTx(tx).Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, svcErr.NotFound("Post not found")
	}
	if p.UserID != callerID {
		return nil, svcErr.Permission("Cannot modify a post owned by another user")
	}
	return p, nil
}

// CompletePost marks a pending post as processed. A post whose content
// matches an earlier completed post is linked to it as a duplicate, and the
// earlier post's owner is told about the repost.
func (s *Service) CompletePost(ctx context.Context, callerID string, req *PostRequest) (*Post, error) {
	s.appCtx.Logger.Debug("CompletePost called", "caller", callerID, "post", req.PostID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	var (
		p        *db.Post
		original *db.Post
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posts := s.posts.WithTx(tx)
		var err error
		if p, err = s.ownPost(ctx, tx, callerID, req.PostID); err != nil {
			return err
		}
		if p.Status != db.PostPending {
			return svcErr.State("Only pending posts can be completed")
		}
		if original, err = posts.FindOriginal(ctx, p.ContentHash, p.ID); err != nil {
			return err
		}
		now := tx.NowFunc()
		updates := map[string]any{"status": db.PostCompleted, "completed_at": now}
		if original != nil {
			updates["original_post_id"] = original.ID
			p.OriginalPostID = &original.ID
		}
		if err := posts.Update(ctx, p.ID, updates); err != nil {
			return err
		}
		p.Status = db.PostCompleted
		p.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if original != nil && original.UserID != callerID {
		s.appCtx.Logger.Info("repost detected", "post", p.ID, "original", original.ID)
		s.cards.SchedulePostRepost(original.UserID, p.ID)
	}
	return toPost(p), nil
}

// ArchivePost hides a post. Cards pointing at it are re-rendered away.
func (s *Service) ArchivePost(ctx context.Context, callerID string, req *PostRequest) (*Post, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	var p *db.Post
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = s.ownPost(ctx, tx, callerID, req.PostID); err != nil {
			return err
		}
		if p.Status == db.PostArchived {
			return nil
		}
		p.Status = db.PostArchived
		return s.posts.WithTx(tx).Update(ctx, p.ID, map[string]any{"status": db.PostArchived})
	})
	if err != nil {
		return nil, err
	}

	if p.OriginalPostID != nil {
		if original, err := s.posts.Get(ctx, *p.OriginalPostID); err == nil && original != nil {
			s.cards.SchedulePostRepost(original.UserID, p.ID)
		}
	}
	return toPost(p), nil
}

// AddComment comments on a completed post. Dating pairs must be confirmed
// matches first. Banned content is refused and earns the author a strike.
func (s *Service) AddComment(ctx context.Context, callerID string, req *AddCommentRequest) (*Comment, error) {
	s.appCtx.Logger.Debug("AddComment called", "caller", callerID, "post", req.PostID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	if _, err := s.active(ctx, s.appCtx.DB, callerID, CodeUserNotActive); err != nil {
		return nil, err
	}
	post, err := s.posts.Get(ctx, req.PostID)
	if err != nil {
		return nil, err
	}
	if post == nil || post.Status != db.PostCompleted {
		return nil, svcErr.NotFound("Post not found")
	}
	if err := s.matches.CanComment(ctx, callerID, post.UserID); err != nil {
		return nil, err
	}
	if s.filter.IsBanned(ctx, req.Text) {
		if _, err := s.moderator.Strike(ctx, nil, callerID); err != nil {
			return nil, err
		}
		return nil, svcErr.Validation("Comment contains banned content")
	}

	var c *db.Comment
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posts := s.posts.WithTx(tx)
		post, err := posts.Get(ctx, req.PostID)
		if err != nil {
			return err
		}
		if post == nil || post.Status != db.PostCompleted {
			return svcErr.NotFound("Post not found")
		}
		blocked, err := s.users.WithTx(tx).EitherBlocks(ctx, callerID, post.UserID)
		if err != nil {
			return err
		}
		if blocked {
			return svcErr.Permission("Cannot comment on a post of a blocked user")
		}
		if existing, err := posts.GetComment(ctx, req.CommentID); err != nil {
			return err
		} else if existing != nil {
			return svcErr.State("Comment already exists")
		}
		tags, err := mentions.Resolve(req.Text, func(names []string) (map[string]string, error) {
			return s.users.WithTx(tx).IDsByUsername(ctx, names, nil)
		})
		if err != nil {
			return err
		}
		c = &db.Comment{
			ID:              req.CommentID,
			PostID:          post.ID,
			UserID:          callerID,
			Text:            req.Text,
			TextTaggedUsers: mentions.JSON(tags),
		}
		return posts.CreateComment(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleCommentMention(c.ID, mentions.UserIDs(mentions.FromJSON(c.TextTaggedUsers))...)
	return toComment(c), nil
}

// DeleteComment removes a comment. Its author and the post owner may.
func (s *Service) DeleteComment(ctx context.Context, callerID string, req *CommentRequest) (*CommentRequest, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	var c *db.Comment
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posts := s.posts.WithTx(tx)
		var err error
		if c, err = posts.GetComment(ctx, req.CommentID); err != nil {
			return err
		}
		if c == nil {
			return svcErr.NotFound("Comment not found")
		}
		if c.UserID != callerID {
			post, err := posts.Get(ctx, c.PostID)
			if err != nil {
				return err
			}
			if post == nil || post.UserID != callerID {
				return svcErr.Permission("Cannot delete a comment authored by another user")
			}
		}
		return posts.DeleteComment(ctx, c.ID)
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleCommentMention(c.ID, mentions.UserIDs(mentions.FromJSON(c.TextTaggedUsers))...)
	return req, nil
}
