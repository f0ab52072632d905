package cards

import (
	"context"
	"fmt"

	"github.com/oggyb/muzz-social/internal/app"
	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/repository"
	"github.com/oggyb/muzz-social/internal/utils/mentions"
)

// Deep links carried by cards.
const (
	ActionChat          = "https://real.app/chat/"
	ActionFollowRequest = "https://real.app/follow/requests"
	ActionProfilePhoto  = "https://real.app/settings/profile/photo"
	ActionSignup        = "https://real.app/signup/"
	ActionDiamond       = "https://real.app/diamond"
	actionPost          = "https://real.app/post/"
	actionUser          = "https://real.app/user/"
)

// Reconciler holds one render function per card type. Each is a pure
// function of stored state, so running it again (on retry or from a
// different trigger) converges on the same card.
type Reconciler struct {
	appCtx *app.AppContext
	engine *Engine
	users  *repository.UserRepository
	chats  *repository.ChatRepository
	posts  *repository.PostRepository
	cards  *repository.CardRepository
}

func NewReconciler(appCtx *app.AppContext, engine *Engine) *Reconciler {
	return &Reconciler{
		appCtx: appCtx,
		engine: engine,
		users:  repository.NewUserRepository(appCtx.DB),
		chats:  repository.NewChatRepository(appCtx.DB),
		posts:  repository.NewPostRepository(appCtx.DB),
		cards:  repository.NewCardRepository(appCtx.DB),
	}
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// ChatActivity keeps the unread-chats card in line with the number of chats
// holding unviewed messages, and publishes the count when it changes.
func (r *Reconciler) ChatActivity(ctx context.Context, userID string) error {
	var count int64
	_, err := r.engine.Upsert(ctx, userID, Key{Type: db.CardChatActivity}, func(ctx context.Context) (*Render, error) {
		var err error
		if count, err = r.chats.CountChatsWithUnviewed(ctx, userID); err != nil || count == 0 {
			return nil, err
		}
		return &Render{
			Title:  fmt.Sprintf("You have %d %s with new messages", count, plural(count, "chat", "chats")),
			Action: ActionChat,
		}, nil
	})
	if err != nil {
		return err
	}

	prev, known, err := r.appCtx.RedisCache.SwapUnviewedChats(ctx, userID, count)
	if err != nil {
		return fmt.Errorf("swap unviewed count: %w", err)
	}
	if (known && prev != count) || (!known && count != 0) {
		if err := r.appCtx.Publisher.PublishChatsUnviewedCount(ctx, userID, count); err != nil {
			r.appCtx.Logger.Warn("publish unviewed count failed", "user", userID, "err", err)
		}
	}
	return nil
}

// FollowRequests keeps the pending-follow-requests card in line.
func (r *Reconciler) FollowRequests(ctx context.Context, userID string) error {
	_, err := r.engine.Upsert(ctx, userID, Key{Type: db.CardRequestedFollowers}, func(ctx context.Context) (*Render, error) {
		n, err := r.users.CountFollowRequests(ctx, userID)
		if err != nil || n == 0 {
			return nil, err
		}
		return &Render{
			Title:  fmt.Sprintf("You have %d pending follow %s", n, plural(n, "request", "requests")),
			Action: ActionFollowRequest,
		}, nil
	})
	return err
}

// ProfilePhoto maintains the default card: ANONYMOUS_USER_UPSELL while the
// account is anonymous, ADD_PROFILE_PHOTO while an active account has no
// photo. At most one of them exists.
func (r *Reconciler) ProfilePhoto(ctx context.Context, userID string) error {
	u, err := r.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	anonymous := u != nil && u.Status == db.UserStatusAnonymous
	noPhoto := u != nil && u.Status == db.UserStatusActive && u.PhotoPostID == nil

	if _, err := r.engine.Upsert(ctx, userID, Key{Type: db.CardAnonymousUserUpsell}, func(context.Context) (*Render, error) {
		if !anonymous {
			return nil, nil
		}
		return &Render{Title: "Reserve your username & sign up!", Action: ActionSignup}, nil
	}); err != nil {
		return err
	}
	_, err = r.engine.Upsert(ctx, userID, Key{Type: db.CardAddProfilePhoto}, func(context.Context) (*Render, error) {
		if !noPhoto {
			return nil, nil
		}
		return &Render{Title: "Add a profile photo", Action: ActionProfilePhoto}, nil
	})
	return err
}

// SubscriptionLevel shows the welcome card while the user is DIAMOND.
func (r *Reconciler) SubscriptionLevel(ctx context.Context, userID string) error {
	_, err := r.engine.Upsert(ctx, userID, Key{Type: db.CardUserSubscription}, func(ctx context.Context) (*Render, error) {
		u, err := r.users.Get(ctx, userID)
		if err != nil || u == nil || u.SubscriptionLevel != db.SubscriptionDiamond {
			return nil, err
		}
		return &Render{Title: "Welcome to Diamond", Action: ActionDiamond}, nil
	})
	return err
}

// CommentMention shows a card for a comment that tags userID until the
// comment is deleted or userID views the post.
func (r *Reconciler) CommentMention(ctx context.Context, userID, commentID string) error {
	_, err := r.engine.Upsert(ctx, userID, Key{Type: db.CardCommentMention, RelatedID: commentID}, func(ctx context.Context) (*Render, error) {
		c, err := r.posts.GetComment(ctx, commentID)
		if err != nil || c == nil || c.UserID == userID {
			return nil, err
		}
		tagged := false
		for _, t := range mentions.FromJSON(c.TextTaggedUsers) {
			tagged = tagged || t.UserID == userID
		}
		if !tagged {
			return nil, nil
		}
		viewed, err := r.posts.HasViewedSince(ctx, c.PostID, userID, c.CreatedAt)
		if err != nil || viewed {
			return nil, err
		}
		author, err := r.users.Get(ctx, c.UserID)
		if err != nil || author == nil {
			return nil, err
		}
		post, err := r.posts.Get(ctx, c.PostID)
		if err != nil || post == nil {
			return nil, err
		}
		return &Render{
			Title:     "@" + author.Username + " mentioned you in a comment",
			Action:    actionPost + post.ID,
			Thumbnail: post.ThumbnailURL,
			PostID:    &post.ID,
		}, nil
	})
	return err
}

// PostRepost shows the original owner a card for a completed duplicate of
// their post until the duplicate is archived or they view it.
func (r *Reconciler) PostRepost(ctx context.Context, userID, repostID string) error {
	_, err := r.engine.Upsert(ctx, userID, Key{Type: db.CardPostRepost, RelatedID: repostID}, func(ctx context.Context) (*Render, error) {
		repost, err := r.posts.Get(ctx, repostID)
		if err != nil || repost == nil || repost.Status != db.PostCompleted || repost.OriginalPostID == nil || repost.UserID == userID {
			return nil, err
		}
		original, err := r.posts.Get(ctx, *repost.OriginalPostID)
		if err != nil || original == nil || original.UserID != userID {
			return nil, err
		}
		since := repost.CreatedAt
		if repost.CompletedAt != nil {
			since = *repost.CompletedAt
		}
		viewed, err := r.posts.HasViewedSince(ctx, repost.ID, userID, since)
		if err != nil || viewed {
			return nil, err
		}
		reposter, err := r.users.Get(ctx, repost.UserID)
		if err != nil || reposter == nil {
			return nil, err
		}
		return &Render{
			Title:     "@" + reposter.Username + " reposted one of your posts",
			Action:    actionPost + repost.ID,
			Thumbnail: repost.ThumbnailURL,
			PostID:    &repost.ID,
		}, nil
	})
	return err
}

// ContactJoined tells userID that one of their contacts signed up, until
// userID follows them.
func (r *Reconciler) ContactJoined(ctx context.Context, userID, joinedID string) error {
	_, err := r.engine.Upsert(ctx, userID, Key{Type: db.CardContactJoined, RelatedID: joinedID}, func(ctx context.Context) (*Render, error) {
		if userID == joinedID {
			return nil, nil
		}
		joined, err := r.users.Get(ctx, joinedID)
		if err != nil || joined == nil || joined.Status != db.UserStatusActive {
			return nil, err
		}
		if following, err := r.users.IsFollowing(ctx, userID, joinedID); err != nil || following {
			return nil, err
		}
		if blocked, err := r.users.EitherBlocks(ctx, userID, joinedID); err != nil || blocked {
			return nil, err
		}
		var thumb *string
		if joined.PhotoPostID != nil {
			if p, err := r.posts.Get(ctx, *joined.PhotoPostID); err == nil && p != nil {
				thumb = p.ThumbnailURL
			}
		}
		sub := "Tap to follow"
		return &Render{
			Title:     "@" + joined.Username + " joined",
			SubTitle:  &sub,
			Action:    actionUser + joined.ID,
			Thumbnail: thumb,
		}, nil
	})
	return err
}

// PostViewed re-renders the user's cards tied to postID after they viewed it.
func (r *Reconciler) PostViewed(ctx context.Context, userID, postID string) error {
	cards, err := r.cards.ByPost(ctx, userID, postID)
	if err != nil {
		return err
	}
	for _, c := range cards {
		if c.RelatedID == nil {
			continue
		}
		switch c.Type {
		case db.CardCommentMention:
			err = r.CommentMention(ctx, userID, *c.RelatedID)
		case db.CardPostRepost:
			err = r.PostRepost(ctx, userID, *c.RelatedID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
