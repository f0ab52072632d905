// Package service wires the engines together over one app context.
package service

import (
	"github.com/oggyb/muzz-social/internal/app"
	"github.com/oggyb/muzz-social/internal/moderation"
	"github.com/oggyb/muzz-social/internal/server"
	"github.com/oggyb/muzz-social/internal/service/cards"
	"github.com/oggyb/muzz-social/internal/service/chat"
	"github.com/oggyb/muzz-social/internal/service/match"
	"github.com/oggyb/muzz-social/internal/service/social"
	"github.com/oggyb/muzz-social/internal/service/views"
)

// Services holds every engine built over one app context.
type Services struct {
	Cards      *cards.Engine
	Reconciler *cards.Reconciler
	Views      *views.Tracker
	Chat       *chat.Service
	Match      *match.Service
	Social     *social.Service
	Moderator  *moderation.Moderator
}

func New(appCtx *app.AppContext) *Services {
	cfg := appCtx.Config
	engine := cards.NewEngine(appCtx)
	reconciler := cards.NewReconciler(appCtx, engine)
	filter := moderation.NewFilter(cfg.Moderation.BadWords, appCtx.RedisCache, appCtx.Logger)
	moderator := moderation.NewModerator(appCtx.DB, cfg.Moderation.StrikeLimit, appCtx.Logger)

	tracker := views.NewTracker(appCtx, reconciler)
	chats := chat.NewService(appCtx, tracker, reconciler, filter, moderator)
	matches := match.NewService(appCtx, chats)

	return &Services{
		Cards:      engine,
		Reconciler: reconciler,
		Views:      tracker,
		Chat:       chats,
		Match:      matches,
		Social:     social.NewService(appCtx, reconciler, matches, chats, filter, moderator),
		Moderator:  moderator,
	}
}

// Registrars returns the gRPC registrars of every service.
func (s *Services) Registrars() []server.Registrar {
	return []server.Registrar{
		cards.NewRegistrar(s.Cards),
		views.NewRegistrar(s.Views),
		chat.NewRegistrar(s.Chat),
		match.NewRegistrar(s.Match),
		social.NewRegistrar(s.Social),
	}
}
