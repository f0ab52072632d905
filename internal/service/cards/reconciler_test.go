package cards_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/notify"
	"github.com/oggyb/muzz-social/internal/repository"
	"github.com/oggyb/muzz-social/internal/service/cards"
	"github.com/oggyb/muzz-social/internal/testutil"
	"github.com/oggyb/muzz-social/internal/utils/mentions"
)

func setup(t *testing.T) (*testutil.Env, *cards.Engine, *cards.Reconciler) {
	t.Helper()
	env := testutil.NewEnv(t)
	engine := cards.NewEngine(env.App)
	return env, engine, cards.NewReconciler(env.App, engine)
}

func titles(t *testing.T, engine *cards.Engine, userID string) []string {
	t.Helper()
	list, _, err := engine.List(context.Background(), userID, nil, 50)
	require.NoError(t, err)
	var out []string
	for _, c := range list {
		out = append(out, c.Title)
	}
	return out
}

func TestFollowRequests_Pluralizes(t *testing.T) {
	ctx := context.Background()
	env, engine, rec := setup(t)
	database := env.App.DB

	require.NoError(t, database.Create(&db.Follow{FollowerID: "a", FollowedID: "u1", Status: db.FollowRequested}).Error)
	require.NoError(t, rec.FollowRequests(ctx, "u1"))
	assert.Equal(t, []string{"You have 1 pending follow request"}, titles(t, engine, "u1"))

	require.NoError(t, database.Create(&db.Follow{FollowerID: "b", FollowedID: "u1", Status: db.FollowRequested}).Error)
	require.NoError(t, rec.FollowRequests(ctx, "u1"))
	assert.Equal(t, []string{"You have 2 pending follow requests"}, titles(t, engine, "u1"))

	require.NoError(t, database.Where("followed_id = ?", "u1").Delete(&db.Follow{}).Error)
	require.NoError(t, rec.FollowRequests(ctx, "u1"))
	assert.Empty(t, titles(t, engine, "u1"))
}

func TestChatActivity_CardAndCountEvent(t *testing.T) {
	ctx := context.Background()
	env, engine, rec := setup(t)
	chats := repository.NewChatRepository(env.App.DB)

	for _, id := range []string{"c1", "c2"} {
		require.NoError(t, chats.Create(ctx, &db.Chat{ID: id, ChatType: db.ChatGroup, LastMessageActivityAt: time.Now(), Version: 1}, []string{"u1", "u2"}))
		author := "u2"
		require.NoError(t, chats.CreateMessage(ctx, &db.Message{ID: id + "m1", ChatID: id, Seq: 1, AuthorUserID: &author, Origin: db.OriginUser, Text: "hi", TextTaggedUsers: mentions.JSON(nil)}))
	}

	require.NoError(t, rec.ChatActivity(ctx, "u1"))
	assert.Equal(t, []string{"You have 2 chats with new messages"}, titles(t, engine, "u1"))

	// author sees nothing unread
	require.NoError(t, rec.ChatActivity(ctx, "u2"))
	assert.Empty(t, titles(t, engine, "u2"))

	require.NoError(t, chats.SaveView(ctx, "c1", "u1", 1, time.Now()))
	require.NoError(t, rec.ChatActivity(ctx, "u1"))
	assert.Equal(t, []string{"You have 1 chat with new messages"}, titles(t, engine, "u1"))

	// running again changes nothing and emits nothing
	before := len(env.Recorder.For("u1"))
	require.NoError(t, rec.ChatActivity(ctx, "u1"))
	assert.Len(t, env.Recorder.For("u1"), before)

	var counts []int64
	for _, n := range env.Recorder.For("u1") {
		if n.Type == notify.EventChatsUnviewedCountChanged {
			counts = append(counts, *n.UserChatsWithUnviewedMessagesCount)
		}
	}
	assert.Equal(t, []int64{2, 1}, counts)
}

func TestProfilePhoto_DefaultCardsAreExclusive(t *testing.T) {
	ctx := context.Background()
	env, engine, rec := setup(t)
	env.Seed(t, "u1", func(u *db.User) { u.Status = db.UserStatusAnonymous })

	require.NoError(t, rec.ProfilePhoto(ctx, "u1"))
	assert.Equal(t, []string{"Reserve your username & sign up!"}, titles(t, engine, "u1"))

	require.NoError(t, env.App.DB.Model(&db.User{}).Where("id = ?", "u1").Update("status", db.UserStatusActive).Error)
	require.NoError(t, rec.ProfilePhoto(ctx, "u1"))
	assert.Equal(t, []string{"Add a profile photo"}, titles(t, engine, "u1"))

	require.NoError(t, env.App.DB.Model(&db.User{}).Where("id = ?", "u1").Update("photo_post_id", "p1").Error)
	require.NoError(t, rec.ProfilePhoto(ctx, "u1"))
	assert.Empty(t, titles(t, engine, "u1"))
}

func TestSubscriptionLevel(t *testing.T) {
	ctx := context.Background()
	env, engine, rec := setup(t)
	env.Seed(t, "u1", func(u *db.User) { u.SubscriptionLevel = db.SubscriptionDiamond })

	require.NoError(t, rec.SubscriptionLevel(ctx, "u1"))
	assert.Equal(t, []string{"Welcome to Diamond"}, titles(t, engine, "u1"))
}

func TestCommentMention_ClearedByPostView(t *testing.T) {
	ctx := context.Background()
	env, engine, rec := setup(t)
	env.Seed(t, "bob")
	env.Seed(t, "u1")
	thumb := "https://cdn.real.app/p1.jpg"
	require.NoError(t, env.App.DB.Create(&db.Post{ID: "p1", UserID: "bob", Status: db.PostCompleted, ThumbnailURL: &thumb}).Error)
	require.NoError(t, env.App.DB.Create(&db.Comment{
		ID: "c1", PostID: "p1", UserID: "bob", Text: "hey @u1",
		TextTaggedUsers: mentions.JSON([]mentions.TaggedUser{{Tag: "@u1", UserID: "u1"}}),
	}).Error)

	require.NoError(t, rec.CommentMention(ctx, "u1", "c1"))
	list, _, err := engine.List(ctx, "u1", nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "@bob mentioned you in a comment", list[0].Title)
	assert.Equal(t, &thumb, list[0].Thumbnail)

	// the notification never carries the thumbnail
	n := env.Recorder.For("u1")
	require.Len(t, n, 1)
	assert.Nil(t, n[0].Card.Thumbnail)

	_, err = repository.NewPostRepository(env.App.DB).InsertView(ctx, "p1", "u1", db.ViewThumbnail, env.App.DB.NowFunc().Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, rec.PostViewed(ctx, "u1", "p1"))
	assert.Empty(t, titles(t, engine, "u1"))
}

func TestContactJoined_RemovedOnFollow(t *testing.T) {
	ctx := context.Background()
	env, engine, rec := setup(t)
	env.Seed(t, "u1")
	env.Seed(t, "newbie")

	require.NoError(t, rec.ContactJoined(ctx, "u1", "newbie"))
	list, _, err := engine.List(ctx, "u1", nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "@newbie joined", list[0].Title)
	require.NotNil(t, list[0].SubTitle)
	assert.Equal(t, "Tap to follow", *list[0].SubTitle)

	testutil.Follows(t, env.App.DB, [2]string{"u1", "newbie"})
	require.NoError(t, rec.ContactJoined(ctx, "u1", "newbie"))
	assert.Empty(t, titles(t, engine, "u1"))
}

func TestScheduledReconcilersSettle(t *testing.T) {
	env, engine, rec := setup(t)
	env.Seed(t, "u1", func(u *db.User) { u.SubscriptionLevel = db.SubscriptionDiamond })

	rec.ScheduleProfile("u1")
	env.Settle(t)

	assert.ElementsMatch(t, []string{"Add a profile photo", "Welcome to Diamond"}, titles(t, engine, "u1"))
}
