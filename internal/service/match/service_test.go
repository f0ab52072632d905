package match_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/oggyb/muzz-social/internal/db"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
	"github.com/oggyb/muzz-social/internal/moderation"
	"github.com/oggyb/muzz-social/internal/repository"
	"github.com/oggyb/muzz-social/internal/service/cards"
	"github.com/oggyb/muzz-social/internal/service/chat"
	"github.com/oggyb/muzz-social/internal/service/match"
	"github.com/oggyb/muzz-social/internal/service/views"
	"github.com/oggyb/muzz-social/internal/testutil"
)

func setup(t *testing.T) (*testutil.Env, *match.Service) {
	t.Helper()
	return setupWith(t, nil)
}

// setupWith lets a test wrap the chat opener handed to the match service.
func setupWith(t *testing.T, wrap func(match.ChatOpener) match.ChatOpener) (*testutil.Env, *match.Service) {
	t.Helper()
	env := testutil.NewEnv(t)
	a := env.App
	rec := cards.NewReconciler(a, cards.NewEngine(a))
	chats := chat.NewService(a,
		views.NewTracker(a, rec),
		rec,
		moderation.NewFilter(nil, a.RedisCache, a.Logger),
		moderation.NewModerator(a.DB, a.Config.Moderation.StrikeLimit, a.Logger),
	)
	var opener match.ChatOpener = chats
	if wrap != nil {
		opener = wrap(opener)
	}
	return env, match.NewService(a, opener)
}

// flakyOpener fails the first n calls, then delegates.
type flakyOpener struct {
	next  match.ChatOpener
	n     int32
	calls atomic.Int32
}

func (f *flakyOpener) EnsureMatchChat(ctx context.Context, a, b string) (*db.Chat, error) {
	if f.calls.Add(1) <= f.n {
		return nil, errors.New("chat store unavailable")
	}
	return f.next.EnsureMatchChat(ctx, a, b)
}

// dater seeds a user with a complete dating profile in London.
func dater(t *testing.T, env *testutil.Env, id, gender string, wants string, opts ...testutil.UserOpt) *db.User {
	t.Helper()
	postID := "photo-" + id
	require.NoError(t, env.App.DB.Create(&db.Post{ID: postID, UserID: id, Status: db.PostCompleted, TakenInReal: true}).Error)
	genders, err := json.Marshal([]string{wants})
	require.NoError(t, err)

	base := func(u *db.User) {
		u.PhotoPostID = &postID
		u.FullName = testutil.Ptr(id + " Smith")
		u.DisplayName = testutil.Ptr(id)
		u.Gender = testutil.Ptr(gender)
		u.DateOfBirth = testutil.Ptr(time.Now().UTC().AddDate(-30, 0, 0))
		u.Height = testutil.Ptr(175)
		u.LocationLat = testutil.Ptr(51.5074)
		u.LocationLng = testutil.Ptr(-0.1278)
		u.MatchAgeMin = testutil.Ptr(18)
		u.MatchAgeMax = testutil.Ptr(60)
		u.MatchHeightMin = testutil.Ptr(150)
		u.MatchHeightMax = testutil.Ptr(200)
		u.MatchLocationRadius = testutil.Ptr(50)
		u.MatchGenders = datatypes.JSON(genders)
	}
	return env.Seed(t, id, append([]testutil.UserOpt{base}, opts...)...)
}

func enable(t *testing.T, svc *match.Service, id string) {
	t.Helper()
	_, err := svc.SetUserDatingStatus(context.Background(), id, &match.SetDatingStatusRequest{Status: db.DatingEnabled})
	require.NoError(t, err)
}

func status(t *testing.T, svc *match.Service, caller, other string) string {
	t.Helper()
	m, err := svc.MatchStatus(context.Background(), caller, &match.UserRequest{UserID: other})
	require.NoError(t, err)
	return m.Status
}

func TestSetUserDatingStatus_ReportsEveryMissingField(t *testing.T) {
	env, svc := setup(t)
	env.Seed(t, "u1")

	_, err := svc.SetUserDatingStatus(context.Background(), "u1", &match.SetDatingStatusRequest{Status: db.DatingEnabled})
	require.Error(t, err)
	assert.True(t, svcErr.Is(err, svcErr.KindPrecondition))
	assert.ElementsMatch(t, []string{
		"MISSING_GENDER", "MISSING_AGE", "MISSING_PHOTO_POST_ID", "MISSING_HEIGHT",
		"MISSING_MATCH_LOCATION_RADIUS", "MISSING_MATCH_HEIGHT_RANGE", "MISSING_FULL_NAME",
		"MISSING_LOCATION", "MISSING_MATCH_GENDERS", "MISSING_DISPLAY_NAME", "MISSING_MATCH_AGE_RANGE",
	}, svcErr.CodesOf(err))
}

func TestSetUserDatingStatus_AgeBoundsAndPhoto(t *testing.T) {
	env, svc := setup(t)
	dater(t, env, "kid", "MALE", "FEMALE", func(u *db.User) {
		u.DateOfBirth = testutil.Ptr(time.Now().UTC().AddDate(-15, 0, 0))
	})
	require.NoError(t, env.App.DB.Model(&db.Post{}).Where("id = ?", "photo-kid").Update("taken_in_real", false).Error)

	_, err := svc.SetUserDatingStatus(context.Background(), "kid", &match.SetDatingStatusRequest{Status: db.DatingEnabled})
	assert.ElementsMatch(t, []string{"WRONG_AGE_MIN", "WRONG_PHOTO_POST"}, svcErr.CodesOf(err))
}

func TestSetUserDatingStatus_DiamondExemptions(t *testing.T) {
	env, svc := setup(t)
	dater(t, env, "vip", "MALE", "FEMALE", func(u *db.User) {
		u.SubscriptionLevel = db.SubscriptionDiamond
		u.MatchLocationRadius = nil
	})
	require.NoError(t, env.App.DB.Model(&db.Post{}).Where("id = ?", "photo-vip").Update("taken_in_real", false).Error)

	enable(t, svc, "vip")
	env.Settle(t)
}

func TestSetUserDatingStatus_ReenableWindow(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)
	dater(t, env, "u1", "MALE", "FEMALE")

	enable(t, svc, "u1")
	_, err := svc.SetUserDatingStatus(ctx, "u1", &match.SetDatingStatusRequest{Status: db.DatingDisabled})
	require.NoError(t, err)

	_, err = svc.SetUserDatingStatus(ctx, "u1", &match.SetDatingStatusRequest{Status: db.DatingEnabled})
	assert.True(t, svcErr.Is(err, svcErr.KindRate))
	assert.Equal(t, []string{"WRONG_THREE_HOUR_PERIOD"}, svcErr.CodesOf(err))

	require.NoError(t, env.App.DB.Model(&db.User{}).Where("id = ?", "u1").
		Update("dating_disabled_at", time.Now().UTC().Add(-4*time.Hour)).Error)
	enable(t, svc, "u1")
	env.Settle(t)
}

func TestMatchTransitions(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)
	dater(t, env, "adam", "MALE", "FEMALE")
	dater(t, env, "eve", "FEMALE", "MALE")
	dater(t, env, "carl", "MALE", "MALE")
	for _, id := range []string{"adam", "eve", "carl"} {
		enable(t, svc, id)
	}
	env.Settle(t)

	assert.Equal(t, db.MatchPotential, status(t, svc, "adam", "eve"))
	assert.Equal(t, db.MatchPotential, status(t, svc, "eve", "adam"))
	assert.Equal(t, db.MatchNone, status(t, svc, "adam", "carl"))

	_, err := svc.ApproveMatch(ctx, "adam", &match.UserRequest{UserID: "carl"})
	assert.True(t, svcErr.Is(err, svcErr.KindState))
	assert.Contains(t, err.Error(), "Match does not exist")

	m, err := svc.ApproveMatch(ctx, "adam", &match.UserRequest{UserID: "eve"})
	require.NoError(t, err)
	assert.Equal(t, db.MatchApproved, m.Status)

	for _, decide := range []func(context.Context, string, *match.UserRequest) (*match.Match, error){svc.ApproveMatch, svc.RejectMatch} {
		_, err = decide(ctx, "adam", &match.UserRequest{UserID: "eve"})
		assert.True(t, svcErr.Is(err, svcErr.KindState))
		assert.Contains(t, err.Error(), "Invalid match transition")
	}

	m, err = svc.ApproveMatch(ctx, "eve", &match.UserRequest{UserID: "adam"})
	require.NoError(t, err)
	assert.Equal(t, db.MatchConfirmed, m.Status)
	assert.Equal(t, db.MatchConfirmed, status(t, svc, "adam", "eve"))
	env.Settle(t)

	var n int64
	require.NoError(t, env.App.DB.Model(&db.Chat{}).Where("direct_key = ?", repository.DirectKey("adam", "eve")).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	list, err := svc.ListMatchedUsers(ctx, "adam", &match.ListRequest{Status: db.MatchConfirmed})
	require.NoError(t, err)
	require.Len(t, list.Matches, 1)
	assert.Equal(t, "eve", list.Matches[0].UserID)
}

func TestCanComment(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)
	dater(t, env, "adam", "MALE", "FEMALE")
	dater(t, env, "eve", "FEMALE", "MALE")
	env.Seed(t, "stranger")

	assert.NoError(t, svc.CanComment(ctx, "stranger", "eve"))

	enable(t, svc, "adam")
	enable(t, svc, "eve")
	env.Settle(t)

	err := svc.CanComment(ctx, "adam", "eve")
	assert.True(t, svcErr.Is(err, svcErr.KindPermission))
	assert.True(t, svcErr.Is(svc.CanComment(ctx, "eve", "adam"), svcErr.KindPermission))

	_, err = svc.ApproveMatch(ctx, "adam", &match.UserRequest{UserID: "eve"})
	require.NoError(t, err)
	_, err = svc.ApproveMatch(ctx, "eve", &match.UserRequest{UserID: "adam"})
	require.NoError(t, err)
	env.Settle(t)

	assert.NoError(t, svc.CanComment(ctx, "adam", "eve"))
	assert.NoError(t, svc.CanComment(ctx, "eve", "adam"))
}

func TestSwipedRightUsers_DiamondOnly(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)
	dater(t, env, "adam", "MALE", "FEMALE")
	dater(t, env, "eve", "FEMALE", "MALE", func(u *db.User) { u.SubscriptionLevel = db.SubscriptionDiamond })
	enable(t, svc, "adam")
	enable(t, svc, "eve")
	env.Settle(t)

	_, err := svc.SwipedRightUsers(ctx, "adam", nil)
	assert.True(t, svcErr.Is(err, svcErr.KindPrecondition))
	assert.Equal(t, []string{"WRONG_SUBSCRIPTION_LEVEL"}, svcErr.CodesOf(err))

	got, err := svc.SwipedRightUsers(ctx, "eve", nil)
	require.NoError(t, err)
	assert.Empty(t, got.UserIDs)

	_, err = svc.ApproveMatch(ctx, "eve", &match.UserRequest{UserID: "adam"})
	require.NoError(t, err)
	got, err = svc.SwipedRightUsers(ctx, "eve", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"adam"}, got.UserIDs)
}

func TestDisableDropsPotentialMatches(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)
	dater(t, env, "adam", "MALE", "FEMALE")
	dater(t, env, "eve", "FEMALE", "MALE")
	enable(t, svc, "adam")
	enable(t, svc, "eve")
	env.Settle(t)
	require.Equal(t, db.MatchPotential, status(t, svc, "adam", "eve"))

	_, err := svc.SetUserDatingStatus(ctx, "eve", &match.SetDatingStatusRequest{Status: db.DatingDisabled})
	require.NoError(t, err)
	assert.Equal(t, db.MatchNone, status(t, svc, "adam", "eve"))
}

func TestReconcile_RespectsDistance(t *testing.T) {
	env, svc := setup(t)
	dater(t, env, "adam", "MALE", "FEMALE")
	dater(t, env, "eve", "FEMALE", "MALE", func(u *db.User) {
		// Paris
		u.LocationLat = testutil.Ptr(48.8566)
		u.LocationLng = testutil.Ptr(2.3522)
	})
	enable(t, svc, "adam")
	enable(t, svc, "eve")
	env.Settle(t)

	assert.Equal(t, db.MatchNone, status(t, svc, "adam", "eve"))
}

func TestDistanceAndAge(t *testing.T) {
	assert.InDelta(t, 344, match.DistanceKm(51.5074, -0.1278, 48.8566, 2.3522), 5)
	assert.Zero(t, match.DistanceKm(1, 1, 1, 1))

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 23, match.Age(time.Date(2000, 3, 2, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 24, match.Age(time.Date(2000, 3, 1, 0, 0, 0, 0, time.UTC), now))
}

func TestApproveMatch_ChatOpenedAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	var opener *flakyOpener
	env, svc := setupWith(t, func(next match.ChatOpener) match.ChatOpener {
		opener = &flakyOpener{next: next, n: 2}
		return opener
	})
	dater(t, env, "bo", "MALE", "FEMALE")
	dater(t, env, "al", "FEMALE", "MALE")
	enable(t, svc, "bo")
	enable(t, svc, "al")
	env.Settle(t)

	_, err := svc.ApproveMatch(ctx, "bo", &match.UserRequest{UserID: "al"})
	require.NoError(t, err)
	m, err := svc.ApproveMatch(ctx, "al", &match.UserRequest{UserID: "bo"})
	require.NoError(t, err)
	assert.Equal(t, db.MatchConfirmed, m.Status)
	env.Settle(t)

	var n int64
	require.NoError(t, env.App.DB.Model(&db.Chat{}).Where("direct_key = ?", repository.DirectKey("al", "bo")).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int32(3), opener.calls.Load())
}

func TestSearchBox(t *testing.T) {
	london := &db.User{LocationLat: testutil.Ptr(51.5074), LocationLng: testutil.Ptr(-0.1278), MatchLocationRadius: testutil.Ptr(50)}
	box := match.SearchBox(london)
	require.NotNil(t, box)
	assert.InDelta(t, 51.0577, box.MinLat, 0.01)
	assert.InDelta(t, 51.9571, box.MaxLat, 0.01)
	require.NotNil(t, box.MinLng)
	require.NotNil(t, box.MaxLng)

	// a point just inside the radius due east stays inside the box
	eastLng := -0.1278 + 0.7
	require.Less(t, match.DistanceKm(51.5074, -0.1278, 51.5074, eastLng), 50.0)
	assert.Less(t, eastLng, *box.MaxLng)

	london.MatchLocationRadius = nil
	assert.Nil(t, match.SearchBox(london))

	pole := &db.User{LocationLat: testutil.Ptr(89.9), LocationLng: testutil.Ptr(10.0), MatchLocationRadius: testutil.Ptr(100)}
	box = match.SearchBox(pole)
	require.NotNil(t, box)
	assert.Nil(t, box.MinLng)
}

func TestDatingCandidates_FiltersByBox(t *testing.T) {
	env, svc := setup(t)
	adam := dater(t, env, "adam", "MALE", "FEMALE")
	dater(t, env, "eve", "FEMALE", "MALE")
	dater(t, env, "amelie", "FEMALE", "MALE", func(u *db.User) {
		u.LocationLat = testutil.Ptr(48.8566)
		u.LocationLng = testutil.Ptr(2.3522)
	})
	for _, id := range []string{"adam", "eve", "amelie"} {
		enable(t, svc, id)
	}
	env.Settle(t)

	now := time.Now().UTC()
	users := repository.NewUserRepository(env.App.DB)
	found, err := users.DatingCandidates(context.Background(), "adam", []string{"FEMALE"},
		now.AddDate(-61, 0, 0), now.AddDate(-18, 0, 0), 150, 200, match.SearchBox(adam))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "eve", found[0].ID)

	found, err = users.DatingCandidates(context.Background(), "adam", []string{"FEMALE"},
		now.AddDate(-61, 0, 0), now.AddDate(-18, 0, 0), 150, 200, nil)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
