// Package social holds the social graph around the engines: accounts,
// follows and blocks, posts, comments and contact discovery. Every mutation
// schedules the card reconcilers it affects once it has committed.
package social

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-social/internal/app"
	"github.com/oggyb/muzz-social/internal/db"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
	"github.com/oggyb/muzz-social/internal/moderation"
	"github.com/oggyb/muzz-social/internal/repository"
	"github.com/oggyb/muzz-social/internal/service/cards"
)

// Precondition codes raised by this package.
const (
	CodeEmailBanned     = "EMAIL_BANNED"
	CodeUserNotActive   = "USER_NOT_ACTIVE"
	CodeTargetNotActive = "TARGET_NOT_ACTIVE"
)

// Matcher is the part of the match engine the social graph depends on.
type Matcher interface {
	CanComment(ctx context.Context, commenterID, ownerID string) error
	ScheduleReconcile(userID string)
	ResetUserMatches(ctx context.Context, userID string) error
}

// ChatResetter removes a user from every chat.
type ChatResetter interface {
	ResetUserChats(ctx context.Context, userID string) error
}

// Service implements the social graph operations.
type Service struct {
	appCtx    *app.AppContext
	users     *repository.UserRepository
	posts     *repository.PostRepository
	cards     *cards.Reconciler
	matches   Matcher
	chats     ChatResetter
	filter    *moderation.Filter
	moderator *moderation.Moderator
}

func NewService(
	appCtx *app.AppContext,
	reconciler *cards.Reconciler,
	matches Matcher,
	chats ChatResetter,
	filter *moderation.Filter,
	moderator *moderation.Moderator,
) *Service {
	return &Service{
		appCtx:    appCtx,
		users:     repository.NewUserRepository(appCtx.DB),
		posts:     repository.NewPostRepository(appCtx.DB),
		cards:     reconciler,
		matches:   matches,
		chats:     chats,
		filter:    filter,
		moderator: moderator,
	}
}

func (s *Service) validate(req any) error {
	if err := s.appCtx.Validate.Struct(req); err != nil {
		return svcErr.FromValidator(err)
	}
	return nil
}

// user loads userID or fails with NotFound.
func (s *Service) user(ctx context.Context, tx *gorm.DB, userID string) (*db.User, error) {
	u, err := s.users.WithTx(tx).Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, svcErr.NotFound("User not found")
	}
	return u, nil
}

// active loads userID and requires it to be ACTIVE, reporting code otherwise.
func (s *Service) active(ctx context.Context, tx *gorm.DB, userID, code string) (*db.User, error) {
	u, err := s.user(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if u.Status != db.UserStatusActive {
		return nil, svcErr.Precondition("User is not active", code)
	}
	return u, nil
}
