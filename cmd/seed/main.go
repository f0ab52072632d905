package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oggyb/muzz-social/internal/app"
	"github.com/oggyb/muzz-social/internal/cache"
	"github.com/oggyb/muzz-social/internal/config"
	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/logger"
	"github.com/oggyb/muzz-social/internal/notify"
	"github.com/oggyb/muzz-social/internal/service"
)

func main() {
	var derive bool
	var badWords []string

	root := &cobra.Command{
		Use:   "seed",
		Short: "Reset the database and load demo data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), derive, badWords)
		},
	}
	root.Flags().BoolVar(&derive, "derive", true, "build cards and potential matches for seeded users (needs Redis)")
	root.Flags().StringSliceVar(&badWords, "bad-words", nil, "words to add to the moderation set")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, derive bool, badWords []string) error {
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.Service(logger.L(), "seed")

	database, err := db.NewDB(cfg)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}

	ids, err := db.SeedTestData(database)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	log.Info("seeded users", "count", len(ids))

	if !derive && len(badWords) == 0 {
		return nil
	}

	redisCache := cache.NewRedisCache(cfg)
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if len(badWords) > 0 {
		if err := redisCache.AddBadWords(ctx, badWords...); err != nil {
			return fmt.Errorf("add bad words: %w", err)
		}
		log.Info("added bad words", "count", len(badWords))
	}
	if !derive {
		return nil
	}

	appCtx := app.New(cfg, database, redisCache, notify.NewRedisPublisher(redisCache), log)
	appCtx.Dispatcher.Start()
	defer appCtx.Dispatcher.Stop()

	svcs := service.New(appCtx)
	for _, id := range ids {
		svcs.Reconciler.ScheduleProfile(id)
		svcs.Match.ScheduleReconcile(id)
	}

	flushCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := appCtx.Dispatcher.Flush(flushCtx); err != nil {
		return fmt.Errorf("derive: %w", err)
	}
	log.Info("derived cards and matches")
	return nil
}
