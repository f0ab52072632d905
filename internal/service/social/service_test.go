package social_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-social/internal/db"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
	"github.com/oggyb/muzz-social/internal/moderation"
	"github.com/oggyb/muzz-social/internal/service"
	"github.com/oggyb/muzz-social/internal/service/chat"
	"github.com/oggyb/muzz-social/internal/service/social"
	"github.com/oggyb/muzz-social/internal/service/views"
	"github.com/oggyb/muzz-social/internal/testutil"
)

func setup(t *testing.T) (*testutil.Env, *service.Services) {
	t.Helper()
	env := testutil.NewEnv(t)
	return env, service.New(env.App)
}

func signup(t *testing.T, svcs *service.Services, id string) {
	t.Helper()
	email := id + "@example.com"
	_, err := svcs.Social.CreateUser(context.Background(), id, &social.CreateUserRequest{Username: id, Email: &email})
	require.NoError(t, err)
}

// titles lists a user's card titles, newest first.
func titles(t *testing.T, env *testutil.Env, userID string) []string {
	t.Helper()
	env.Settle(t)
	var cards []db.Card
	require.NoError(t, env.App.DB.Where("user_id = ?", userID).Order("seq DESC").Find(&cards).Error)
	out := []string{}
	for _, c := range cards {
		out = append(out, c.Title)
	}
	return out
}

func post(t *testing.T, svcs *service.Services, owner, id, hash string) {
	t.Helper()
	ctx := context.Background()
	_, err := svcs.Social.AddPost(ctx, owner, &social.AddPostRequest{PostID: id, ContentHash: hash, TakenInReal: true})
	require.NoError(t, err)
	_, err = svcs.Social.CompletePost(ctx, owner, &social.PostRequest{PostID: id})
	require.NoError(t, err)
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)

	signup(t, svcs, "ann")
	assert.Equal(t, []string{"Add a profile photo"}, titles(t, env, "ann"))

	_, err := svcs.Social.CreateUser(ctx, "ann2", &social.CreateUserRequest{Username: "ann"})
	assert.True(t, svcErr.Is(err, svcErr.KindState))

	_, err = svcs.Social.CreateUser(ctx, "bad", &social.CreateUserRequest{Username: "no spaces!"})
	assert.True(t, svcErr.Is(err, svcErr.KindValidation))

	_, err = svcs.Social.CreateUser(ctx, "anon", &social.CreateUserRequest{Username: "anon", Anonymous: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Reserve your username & sign up!"}, titles(t, env, "anon"))
}

func TestCreateUser_BannedEmail(t *testing.T) {
	ctx := context.Background()
	_, svcs := setup(t)

	require.NoError(t, svcs.Moderator.BanEmail(ctx, nil, "troll@example.com"))
	email := "  Troll@Example.com "
	_, err := svcs.Social.CreateUser(ctx, "troll", &social.CreateUserRequest{Username: "troll", Email: &email})
	assert.True(t, svcErr.Is(err, svcErr.KindPrecondition))
	assert.Equal(t, []string{social.CodeEmailBanned}, svcErr.CodesOf(err))

	email = "Troll@Example.com"
	_, err = svcs.Social.CreateUser(ctx, "troll", &social.CreateUserRequest{Username: "troll", Email: &email})
	assert.Equal(t, []string{social.CodeEmailBanned}, svcErr.CodesOf(err))

	blank := "   "
	u, err := svcs.Social.CreateUser(ctx, "quiet", &social.CreateUserRequest{Username: "quiet", Email: &blank})
	require.NoError(t, err)
	assert.Equal(t, "quiet", u.Username)
}

func TestContactJoined(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)
	signup(t, svcs, "ann")

	found, err := svcs.Social.FindContacts(ctx, "ann", &social.FindContactsRequest{Contacts: []string{"Bob@Example.com"}})
	require.NoError(t, err)
	assert.Empty(t, found.Users)

	signup(t, svcs, "bob")
	assert.Contains(t, titles(t, env, "ann"), "@bob joined")

	found, err = svcs.Social.FindContacts(ctx, "ann", &social.FindContactsRequest{Contacts: []string{"bob@example.com"}})
	require.NoError(t, err)
	require.Len(t, found.Users, 1)
	assert.Equal(t, "bob", found.Users[0].UserID)

	_, err = svcs.Social.FollowUser(ctx, "ann", &social.UserRequest{UserID: "bob"})
	require.NoError(t, err)
	assert.NotContains(t, titles(t, env, "ann"), "@bob joined")
}

func TestFindContacts_Bounds(t *testing.T) {
	_, svcs := setup(t)
	contacts := make([]string, 101)
	for i := range contacts {
		contacts[i] = fmt.Sprintf("+4470000%05d", i)
	}
	_, err := svcs.Social.FindContacts(context.Background(), "ann", &social.FindContactsRequest{Contacts: contacts})
	assert.True(t, svcErr.Is(err, svcErr.KindValidation))
}

func TestFollowRequests(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)
	signup(t, svcs, "ann")
	signup(t, svcs, "bob")
	signup(t, svcs, "cat")

	_, err := svcs.Social.SetUserDetails(ctx, "bob", &social.SetUserDetailsRequest{PrivacyStatus: testutil.Ptr(db.PrivacyPrivate)})
	require.NoError(t, err)

	f, err := svcs.Social.FollowUser(ctx, "ann", &social.UserRequest{UserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, db.FollowRequested, f.Status)
	_, err = svcs.Social.FollowUser(ctx, "cat", &social.UserRequest{UserID: "bob"})
	require.NoError(t, err)
	assert.Contains(t, titles(t, env, "bob"), "You have 2 pending follow requests")

	f, err = svcs.Social.AcceptFollowerUser(ctx, "bob", &social.UserRequest{UserID: "ann"})
	require.NoError(t, err)
	assert.Equal(t, db.FollowFollowing, f.Status)
	assert.Contains(t, titles(t, env, "bob"), "You have 1 pending follow request")

	_, err = svcs.Social.DenyFollowerUser(ctx, "bob", &social.UserRequest{UserID: "cat"})
	require.NoError(t, err)
	assert.NotContains(t, titles(t, env, "bob"), "You have 1 pending follow request")

	_, err = svcs.Social.AcceptFollowerUser(ctx, "bob", &social.UserRequest{UserID: "cat"})
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))
}

func TestSetUserDetails_GoingPublicAcceptsRequests(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)
	signup(t, svcs, "ann")
	signup(t, svcs, "bob")

	_, err := svcs.Social.SetUserDetails(ctx, "bob", &social.SetUserDetailsRequest{PrivacyStatus: testutil.Ptr(db.PrivacyPrivate)})
	require.NoError(t, err)
	_, err = svcs.Social.FollowUser(ctx, "ann", &social.UserRequest{UserID: "bob"})
	require.NoError(t, err)

	_, err = svcs.Social.SetUserDetails(ctx, "bob", &social.SetUserDetailsRequest{PrivacyStatus: testutil.Ptr(db.PrivacyPublic)})
	require.NoError(t, err)
	env.Settle(t)

	var f db.Follow
	require.NoError(t, env.App.DB.First(&f, "follower_id = ? AND followed_id = ?", "ann", "bob").Error)
	assert.Equal(t, db.FollowFollowing, f.Status)
}

func TestBlockUser(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)
	signup(t, svcs, "ann")
	signup(t, svcs, "bob")

	_, err := svcs.Social.FollowUser(ctx, "ann", &social.UserRequest{UserID: "bob"})
	require.NoError(t, err)
	_, err = svcs.Social.BlockUser(ctx, "bob", &social.UserRequest{UserID: "ann"})
	require.NoError(t, err)

	var n int64
	require.NoError(t, env.App.DB.Model(&db.Follow{}).Count(&n).Error)
	assert.Zero(t, n)

	_, err = svcs.Social.FollowUser(ctx, "ann", &social.UserRequest{UserID: "bob"})
	assert.True(t, svcErr.Is(err, svcErr.KindPermission))

	_, err = svcs.Social.UnblockUser(ctx, "bob", &social.UserRequest{UserID: "ann"})
	require.NoError(t, err)
	_, err = svcs.Social.FollowUser(ctx, "ann", &social.UserRequest{UserID: "bob"})
	require.NoError(t, err)
	env.Settle(t)
}

func TestCompletePost_RepostCard(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)
	signup(t, svcs, "ann")
	signup(t, svcs, "bob")

	post(t, svcs, "ann", "p1", "hash-1")
	post(t, svcs, "bob", "p2", "hash-1")

	var p2 db.Post
	require.NoError(t, env.App.DB.First(&p2, "id = ?", "p2").Error)
	require.NotNil(t, p2.OriginalPostID)
	assert.Equal(t, "p1", *p2.OriginalPostID)
	assert.Contains(t, titles(t, env, "ann"), "@bob reposted one of your posts")

	_, err := svcs.Views.ReportPostViews(ctx, "ann", &views.ReportPostViewsRequest{PostIDs: []string{"p2"}})
	require.NoError(t, err)
	assert.NotContains(t, titles(t, env, "ann"), "@bob reposted one of your posts")

	_, err = svcs.Social.CompletePost(ctx, "bob", &social.PostRequest{PostID: "p2"})
	assert.True(t, svcErr.Is(err, svcErr.KindState))
	_, err = svcs.Social.ArchivePost(ctx, "ann", &social.PostRequest{PostID: "p2"})
	assert.True(t, svcErr.Is(err, svcErr.KindPermission))
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)
	for _, id := range []string{"ann", "bob", "cat"} {
		signup(t, svcs, id)
	}
	post(t, svcs, "ann", "p1", "")

	c, err := svcs.Social.AddComment(ctx, "bob", &social.AddCommentRequest{CommentID: "c1", PostID: "p1", Text: "nice one @cat"})
	require.NoError(t, err)
	require.Len(t, c.TextTaggedUsers, 1)
	assert.Equal(t, "cat", c.TextTaggedUsers[0].UserID)
	assert.Contains(t, titles(t, env, "cat"), "@bob mentioned you in a comment")

	_, err = svcs.Social.DeleteComment(ctx, "cat", &social.CommentRequest{CommentID: "c1"})
	assert.True(t, svcErr.Is(err, svcErr.KindPermission))

	// the post owner may remove comments
	_, err = svcs.Social.DeleteComment(ctx, "ann", &social.CommentRequest{CommentID: "c1"})
	require.NoError(t, err)
	assert.NotContains(t, titles(t, env, "cat"), "@bob mentioned you in a comment")

	_, err = svcs.Social.AddComment(ctx, "bob", &social.AddCommentRequest{CommentID: "c2", PostID: "p1", Text: "darn"})
	assert.True(t, svcErr.Is(err, svcErr.KindValidation))
	var bob db.User
	require.NoError(t, env.App.DB.First(&bob, "id = ?", "bob").Error)
	assert.Equal(t, 1, bob.ModerationStrikes)
}

func TestAddComment_RequiresConfirmedDatingMatch(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)
	signup(t, svcs, "ann")
	signup(t, svcs, "bob")
	post(t, svcs, "ann", "p1", "")

	require.NoError(t, env.App.DB.Create(&[]db.MatchDecision{
		{UserID: "ann", OtherUserID: "bob", Status: db.MatchPotential},
		{UserID: "bob", OtherUserID: "ann", Status: db.MatchApproved},
	}).Error)

	_, err := svcs.Social.AddComment(ctx, "bob", &social.AddCommentRequest{CommentID: "c1", PostID: "p1", Text: "hey"})
	require.Error(t, err)
	assert.True(t, svcErr.Is(err, svcErr.KindPermission))
	assert.Contains(t, err.Error(), "Cannot add comment unless it is a confirmed match on dating")
	env.Settle(t)
}

func TestResetUser(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)
	signup(t, svcs, "ann")
	signup(t, svcs, "bob")

	_, err := svcs.Social.FollowUser(ctx, "ann", &social.UserRequest{UserID: "bob"})
	require.NoError(t, err)
	_, err = svcs.Chat.CreateDirectChat(ctx, "ann", &chat.CreateDirectChatRequest{ChatID: "d1", UserID: "bob", MessageID: "m1", Text: "hi"})
	require.NoError(t, err)
	env.Settle(t)

	u, err := svcs.Social.ResetUser(ctx, "ann", nil)
	require.NoError(t, err)
	assert.Equal(t, db.UserStatusActive, u.Status)

	list, err := svcs.Chat.ListChats(ctx, "bob", &chat.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Chats)

	var follows int64
	require.NoError(t, env.App.DB.Model(&db.Follow{}).Count(&follows).Error)
	assert.Zero(t, follows)

	assert.Equal(t, []string{"Add a profile photo"}, titles(t, env, "ann"))
	assert.Equal(t, []string{"Add a profile photo"}, titles(t, env, "bob"))
}

// brokenChats fails every chat reset.
type brokenChats struct{}

func (brokenChats) ResetUserChats(context.Context, string) error {
	return errors.New("chat store unavailable")
}

func TestResetUser_FailureRestoresStatus(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)
	signup(t, svcs, "ann")
	a := env.App
	broken := social.NewService(a, svcs.Reconciler, svcs.Match, brokenChats{},
		moderation.NewFilter(nil, a.RedisCache, a.Logger), svcs.Moderator)

	_, err := broken.ResetUser(ctx, "ann", nil)
	require.Error(t, err)

	var u db.User
	require.NoError(t, a.DB.First(&u, "id = ?", "ann").Error)
	assert.Equal(t, db.UserStatusActive, u.Status)
	assert.Nil(t, u.ResetFrom)

	_, err = svcs.Social.SetUserStatus(ctx, "ann", &social.SetUserStatusRequest{Status: db.UserStatusDisabled})
	require.NoError(t, err)
}

func TestResetUser_ResumesInterruptedReset(t *testing.T) {
	ctx := context.Background()
	env, svcs := setup(t)
	signup(t, svcs, "ann")

	// a reset that died before it could roll back
	require.NoError(t, env.App.DB.Model(&db.User{}).Where("id = ?", "ann").
		Updates(map[string]any{"status": db.UserStatusResetting, "reset_from": db.UserStatusDisabled}).Error)

	u, err := svcs.Social.ResetUser(ctx, "ann", nil)
	require.NoError(t, err)
	assert.Equal(t, db.UserStatusDisabled, u.Status)

	var stored db.User
	require.NoError(t, env.App.DB.First(&stored, "id = ?", "ann").Error)
	assert.Equal(t, db.UserStatusDisabled, stored.Status)
	assert.Nil(t, stored.ResetFrom)
}
