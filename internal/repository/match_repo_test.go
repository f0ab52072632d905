package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/repository"
	"github.com/oggyb/muzz-social/internal/testutil"
)

func TestCreatePotential_BothDirectionsOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMatchRepository(testutil.NewDB(t))

	created, err := repo.CreatePotential(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, created)

	ab, ba, err := repo.Pair(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, db.MatchPotential, ab)
	assert.Equal(t, db.MatchPotential, ba)

	// approve one side, re-run: nothing is overwritten
	ok, err := repo.Transition(ctx, "a", "b", db.MatchPotential, db.MatchApproved)
	require.NoError(t, err)
	assert.True(t, ok)

	created, err = repo.CreatePotential(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, created)

	ab, _, err = repo.Pair(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, db.MatchApproved, ab)
}

func TestTransition_OnlyFromExpectedStatus(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMatchRepository(testutil.NewDB(t))

	ok, err := repo.Transition(ctx, "a", "b", db.MatchPotential, db.MatchApproved)
	require.NoError(t, err)
	assert.False(t, ok, "no record yet")

	_, err = repo.CreatePotential(ctx, "a", "b")
	require.NoError(t, err)

	ok, err = repo.Transition(ctx, "a", "b", db.MatchPotential, db.MatchRejected)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(ctx, "a", "b", db.MatchPotential, db.MatchApproved)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList_ByOverallStatus(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMatchRepository(testutil.NewDB(t))

	// a↔b confirmed, a→c approved only, a→d potential
	for _, other := range []string{"b", "c", "d"} {
		_, err := repo.CreatePotential(ctx, "a", other)
		require.NoError(t, err)
	}
	_, _ = repo.Transition(ctx, "a", "b", db.MatchPotential, db.MatchApproved)
	_, _ = repo.Transition(ctx, "b", "a", db.MatchPotential, db.MatchApproved)
	_, _ = repo.Transition(ctx, "a", "c", db.MatchPotential, db.MatchApproved)

	ids := func(status string) []string {
		rows, next, err := repo.List(ctx, "a", status, nil, 10)
		require.NoError(t, err)
		assert.Nil(t, next)
		var out []string
		for _, r := range rows {
			out = append(out, r.OtherUserID)
		}
		return out
	}

	assert.Equal(t, []string{"b"}, ids(db.MatchConfirmed))
	assert.Equal(t, []string{"c"}, ids(db.MatchApproved))
	assert.Equal(t, []string{"d"}, ids(db.MatchPotential))
	assert.Empty(t, ids(db.MatchRejected))

	swiped, err := repo.SwipedRight(ctx, "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, swiped)
}

func TestDeletePotential_KeepsDecisions(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMatchRepository(testutil.NewDB(t))

	_, _ = repo.CreatePotential(ctx, "a", "b")
	_, _ = repo.Transition(ctx, "b", "a", db.MatchPotential, db.MatchApproved)

	require.NoError(t, repo.DeletePotential(ctx, "a"))

	ab, ba, err := repo.Pair(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, db.MatchNone, ab)
	assert.Equal(t, db.MatchApproved, ba)
}

func TestLockPair_ReadsBothDirectionsInTx(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	repo := repository.NewMatchRepository(database)

	_, err := repo.CreatePotential(ctx, "a", "b")
	require.NoError(t, err)
	_, err = repo.Transition(ctx, "b", "a", db.MatchPotential, db.MatchApproved)
	require.NoError(t, err)

	err = database.Transaction(func(tx *gorm.DB) error {
		ab, ba, err := repo.WithTx(tx).LockPair(ctx, "a", "b")
		require.NoError(t, err)
		assert.Equal(t, db.MatchPotential, ab)
		assert.Equal(t, db.MatchApproved, ba)

		ab, ba, err = repo.WithTx(tx).LockPair(ctx, "a", "nobody")
		require.NoError(t, err)
		assert.Equal(t, db.MatchNone, ab)
		assert.Equal(t, db.MatchNone, ba)
		return nil
	})
	require.NoError(t, err)
}
