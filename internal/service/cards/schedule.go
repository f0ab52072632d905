package cards

import "context"

// Schedule* helpers run reconcilers out-of-band on the dispatcher, keyed by
// the card owner so one user's card events stay ordered. Call them only
// after the triggering transaction committed.

func (r *Reconciler) schedule(userID, name string, fn func(ctx context.Context) error) {
	r.appCtx.Dispatcher.Enqueue(userID, name, fn)
}

func (r *Reconciler) ScheduleChatActivity(userIDs ...string) {
	for _, id := range userIDs {
		id := id
		r.schedule(id, "cards.chat_activity", func(ctx context.Context) error {
			return r.ChatActivity(ctx, id)
		})
	}
}

func (r *Reconciler) ScheduleFollowRequests(userIDs ...string) {
	for _, id := range userIDs {
		id := id
		r.schedule(id, "cards.follow_requests", func(ctx context.Context) error {
			return r.FollowRequests(ctx, id)
		})
	}
}

// ScheduleProfile refreshes the account-level cards: default card and
// subscription welcome.
func (r *Reconciler) ScheduleProfile(userID string) {
	r.schedule(userID, "cards.profile", func(ctx context.Context) error {
		if err := r.ProfilePhoto(ctx, userID); err != nil {
			return err
		}
		return r.SubscriptionLevel(ctx, userID)
	})
}

func (r *Reconciler) ScheduleCommentMention(commentID string, userIDs ...string) {
	for _, id := range userIDs {
		id := id
		r.schedule(id, "cards.comment_mention", func(ctx context.Context) error {
			return r.CommentMention(ctx, id, commentID)
		})
	}
}

func (r *Reconciler) SchedulePostRepost(ownerID, repostID string) {
	r.schedule(ownerID, "cards.post_repost", func(ctx context.Context) error {
		return r.PostRepost(ctx, ownerID, repostID)
	})
}

func (r *Reconciler) ScheduleContactJoined(joinedID string, userIDs ...string) {
	for _, id := range userIDs {
		id := id
		r.schedule(id, "cards.contact_joined", func(ctx context.Context) error {
			return r.ContactJoined(ctx, id, joinedID)
		})
	}
}

func (r *Reconciler) SchedulePostViewed(userID string, postIDs ...string) {
	for _, p := range postIDs {
		p := p
		r.schedule(userID, "cards.post_viewed", func(ctx context.Context) error {
			return r.PostViewed(ctx, userID, p)
		})
	}
}

// ScheduleClear drops every card of a user being reset.
func (r *Reconciler) ScheduleClear(userID string) {
	r.schedule(userID, "cards.clear", func(ctx context.Context) error {
		return r.engine.DeleteAll(ctx, userID)
	})
}
