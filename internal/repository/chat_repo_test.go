package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/repository"
	"github.com/oggyb/muzz-social/internal/testutil"
	"github.com/oggyb/muzz-social/internal/utils/mentions"
)

func addMessage(t *testing.T, repo *repository.ChatRepository, chatID, id string, seq int64, author, actor *string) {
	t.Helper()
	origin := db.OriginUser
	if author == nil {
		origin = db.OriginSystem
	}
	require.NoError(t, repo.CreateMessage(context.Background(), &db.Message{
		ID: id, ChatID: chatID, Seq: seq, AuthorUserID: author, ActorUserID: actor,
		Origin: origin, Text: id, TextTaggedUsers: mentions.JSON(nil),
	}))
}

func TestChatRepository_UnviewedCounting(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChatRepository(testutil.NewDB(t))

	chat := &db.Chat{ID: "c1", ChatType: db.ChatGroup, LastMessageActivityAt: time.Now()}
	require.NoError(t, repo.Create(ctx, chat, []string{"a", "b"}))

	a, b := "a", "b"
	addMessage(t, repo, "c1", "m1", 1, nil, &a) // system, actor a
	addMessage(t, repo, "c1", "m2", 2, &a, nil)
	addMessage(t, repo, "c1", "m3", 3, &b, nil)

	n, err := repo.UnviewedCount(ctx, "c1", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a authored m2 and acted m1")

	n, err = repo.UnviewedCount(ctx, "c1", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	chats, err := repo.CountChatsWithUnviewed(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), chats)

	require.NoError(t, repo.SaveView(ctx, "c1", "b", 3, time.Now()))
	n, err = repo.UnviewedCount(ctx, "c1", "b")
	require.NoError(t, err)
	assert.Zero(t, n)

	// watermark never moves back
	require.NoError(t, repo.SaveView(ctx, "c1", "b", 1, time.Now()))
	v, err := repo.View(ctx, "c1", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.LastSeq)
	assert.Equal(t, int64(2), v.ViewCount)

	chats, err = repo.CountChatsWithUnviewed(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, chats)

	// hidden messages are never unviewed
	addMessage(t, repo, "c1", "m4", 4, &a, nil)
	require.NoError(t, repo.HideMessage(ctx, "m4"))
	chats, err = repo.CountChatsWithUnviewed(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, chats)
}

func TestChatRepository_UpdateIfVersion(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChatRepository(testutil.NewDB(t))

	chat := &db.Chat{ID: "c1", ChatType: db.ChatDirect, DirectKey: testutil.Ptr(repository.DirectKey("b", "a")), LastMessageActivityAt: time.Now(), Version: 1}
	require.NoError(t, repo.Create(ctx, chat, []string{"a", "b"}))

	stale := *chat
	require.NoError(t, repo.UpdateIfVersion(ctx, chat, map[string]any{"messages_count": 1}))
	assert.Equal(t, int64(2), chat.Version)

	err := repo.UpdateIfVersion(ctx, &stale, map[string]any{"messages_count": 5})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	got, err := repo.FindDirect(ctx, "a", "b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.MessagesCount)
	assert.Equal(t, 2, got.MemberCount)
}

func TestChatRepository_ClearAuthorAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChatRepository(testutil.NewDB(t))

	require.NoError(t, repo.Create(ctx, &db.Chat{ID: "c1", ChatType: db.ChatGroup, LastMessageActivityAt: time.Now()}, []string{"a", "b"}))
	a := "a"
	addMessage(t, repo, "c1", "m1", 1, &a, nil)

	require.NoError(t, repo.ClearAuthor(ctx, "c1", "a"))
	m, err := repo.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, m.AuthorUserID)
	assert.Equal(t, "m1", m.Text)

	require.NoError(t, repo.Delete(ctx, "c1"))
	c, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, c)
	ids, err := repo.ChatIDsFor(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
