package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/testutil"
)

func TestSeedTestData_ResetsAndSeeds(t *testing.T) {
	database := testutil.NewDB(t)

	ids, err := db.SeedTestData(database)
	require.NoError(t, err)
	assert.Len(t, ids, 20)

	// a second run starts from scratch
	require.NoError(t, database.Create(&db.Card{ID: "user1:CHAT_ACTIVITY", UserID: "user1", Type: db.CardChatActivity, Title: "x", Action: "x", Version: 1}).Error)
	ids, err = db.SeedTestData(database)
	require.NoError(t, err)
	assert.Len(t, ids, 20)

	var users, posts int64
	require.NoError(t, database.Model(&db.User{}).Count(&users).Error)
	require.NoError(t, database.Model(&db.Post{}).Count(&posts).Error)
	assert.Equal(t, int64(20), users)
	assert.Equal(t, int64(20), posts)

	var u db.User
	require.NoError(t, database.First(&u, "id = ?", "user1").Error)
	assert.Equal(t, db.DatingEnabled, u.DatingStatus)
	require.NotNil(t, u.PhotoPostID)
	assert.Equal(t, "user1-photo", *u.PhotoPostID)

	var cards int64
	require.NoError(t, database.Model(&db.Card{}).Count(&cards).Error)
	assert.Zero(t, cards)

	var selfFollows int64
	require.NoError(t, database.Model(&db.Follow{}).Where("follower_id = followed_id").Count(&selfFollows).Error)
	assert.Zero(t, selfFollows)
}
