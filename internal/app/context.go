package app

import (
	"log/slog"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-social/internal/cache"
	"github.com/oggyb/muzz-social/internal/config"
	"github.com/oggyb/muzz-social/internal/events"
	"github.com/oggyb/muzz-social/internal/notify"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Dispatcher *events.Dispatcher
	Publisher  notify.Publisher
	Validate   *validator.Validate
}

// New creates a new AppContext. The dispatcher is built from cfg.Events but
// not started; callers start it once wiring is complete.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, publisher notify.Publisher, logger *slog.Logger) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Dispatcher: events.NewDispatcher(cfg.Events.Workers, cfg.Events.MaxRetries, cfg.Events.RetryBackoff, logger),
		Publisher:  publisher,
		Validate:   newValidator(),
	}
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// newValidator registers the custom tags used by request structs.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}
