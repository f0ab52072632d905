// Package testutil spins up isolated SQLite + miniredis backed app contexts
// for package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/muzz-social/internal/app"
	"github.com/oggyb/muzz-social/internal/cache"
	"github.com/oggyb/muzz-social/internal/config"
	"github.com/oggyb/muzz-social/internal/db"
	applog "github.com/oggyb/muzz-social/internal/logger"
	"github.com/oggyb/muzz-social/internal/notify"
)

// NewDB opens a migrated in-memory SQLite database private to t.
//
// A single connection is used so every goroutine sees the same memory
// database; callers must not run non-tx queries inside a transaction.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// NewRedis starts a miniredis and returns a cache bound to it.
func NewRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

// Env is a fully wired app context plus the in-memory publisher that
// records every notification.
type Env struct {
	App      *app.AppContext
	Recorder *notify.Recorder
	Redis    *miniredis.Miniredis
}

// NewEnv builds an app context with a started dispatcher. The dispatcher is
// stopped on cleanup.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	cfg := config.New()
	cfg.Events.Workers = 4
	cfg.Events.RetryBackoff = time.Millisecond
	cfg.Moderation.BadWords = []string{"darn"}

	rc, mr := NewRedis(t)
	rec := notify.NewRecorder()
	appCtx := app.New(cfg, NewDB(t), rc, rec, applog.Discard())
	appCtx.Dispatcher.Start()
	t.Cleanup(appCtx.Dispatcher.Stop)

	return &Env{App: appCtx, Recorder: rec, Redis: mr}
}

// Settle waits for all background derivation to finish.
func (e *Env) Settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.App.Dispatcher.Flush(ctx))
}

// UserOpt customizes a seeded user.
type UserOpt func(u *db.User)

// Seed inserts an ACTIVE BASIC user whose username equals id.
func (e *Env) Seed(t *testing.T, id string, opts ...UserOpt) *db.User {
	t.Helper()
	return SeedUser(t, e.App.DB, id, opts...)
}

// SeedUser inserts an ACTIVE BASIC user whose username equals id.
func SeedUser(t *testing.T, database *gorm.DB, id string, opts ...UserOpt) *db.User {
	t.Helper()
	u := &db.User{
		ID:                id,
		Username:          id,
		Status:            db.UserStatusActive,
		SubscriptionLevel: db.SubscriptionBasic,
		PrivacyStatus:     db.PrivacyPublic,
		DatingStatus:      db.DatingDisabled,
	}
	for _, o := range opts {
		o(u)
	}
	require.NoError(t, database.Create(u).Error)
	return u
}

// Follows inserts FOLLOWING edges a→b for every pair given.
func Follows(t *testing.T, database *gorm.DB, pairs ...[2]string) {
	t.Helper()
	for _, p := range pairs {
		require.NoError(t, database.Create(&db.Follow{FollowerID: p[0], FollowedID: p[1], Status: db.FollowFollowing}).Error)
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
