// Package match implements the dating match state machine: eligibility,
// background pair formation and per-direction approve/reject decisions.
package match

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-social/internal/app"
	"github.com/oggyb/muzz-social/internal/db"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
	"github.com/oggyb/muzz-social/internal/metrics"
	"github.com/oggyb/muzz-social/internal/repository"
	"github.com/oggyb/muzz-social/internal/utils/pagination"
)

// ChatOpener opens the direct chat of a confirmed pair.
type ChatOpener interface {
	EnsureMatchChat(ctx context.Context, a, b string) (*db.Chat, error)
}

// Service implements the match state machine.
type Service struct {
	appCtx  *app.AppContext
	users   *repository.UserRepository
	posts   *repository.PostRepository
	matches *repository.MatchRepository
	chats   ChatOpener
}

func NewService(appCtx *app.AppContext, chats ChatOpener) *Service {
	return &Service{
		appCtx:  appCtx,
		users:   repository.NewUserRepository(appCtx.DB),
		posts:   repository.NewPostRepository(appCtx.DB),
		matches: repository.NewMatchRepository(appCtx.DB),
		chats:   chats,
	}
}

// Overall combines both directions into the status shown to the caller.
func Overall(mine, theirs string) string {
	if mine == db.MatchApproved && theirs == db.MatchApproved {
		return db.MatchConfirmed
	}
	return mine
}

func (s *Service) activeUser(ctx context.Context, users *repository.UserRepository, userID string) (*db.User, error) {
	u, err := users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, svcErr.NotFound("User not found")
	}
	if u.Status != db.UserStatusActive {
		return nil, svcErr.Precondition("User is not active", CodeUserNotActive)
	}
	return u, nil
}

// SetUserDatingStatus enables or disables dating for the caller.
//
// Enabling reports every unmet eligibility requirement at once. Re-enabling
// too soon after disabling fails with WRONG_THREE_HOUR_PERIOD, as a rate
// error when that is the only reason.
func (s *Service) SetUserDatingStatus(ctx context.Context, callerID string, req *SetDatingStatusRequest) (*DatingStatus, error) {
	s.appCtx.Logger.Debug("SetUserDatingStatus called", "caller", callerID, "status", req.Status)

	if err := s.appCtx.Validate.Struct(req); err != nil {
		return nil, svcErr.FromValidator(err)
	}

	var changed bool
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		u, err := s.activeUser(ctx, users, callerID)
		if err != nil {
			return err
		}
		if u.DatingStatus == req.Status {
			return nil
		}
		now := tx.NowFunc()

		if req.Status == db.DatingDisabled {
			changed = true
			if err := users.Update(ctx, callerID, map[string]any{
				"dating_status":      db.DatingDisabled,
				"dating_disabled_at": now,
			}); err != nil {
				return err
			}
			return s.matches.WithTx(tx).DeletePotential(ctx, callerID)
		}

		codes, err := s.eligibility(ctx, s.posts.WithTx(tx), u, now)
		if err != nil {
			return err
		}
		window := s.appCtx.Config.Dating.ReenableWindow
		if u.DatingDisabledAt != nil && now.Sub(*u.DatingDisabledAt) < window {
			if len(codes) == 0 {
				return svcErr.WithCodes(svcErr.KindRate, "Dating was disabled too recently", CodeWrongThreeHourPeriod)
			}
			codes = append(codes, CodeWrongThreeHourPeriod)
		}
		if len(codes) > 0 {
			return svcErr.Precondition("User cannot enable dating", codes...)
		}
		changed = true
		return users.Update(ctx, callerID, map[string]any{"dating_status": db.DatingEnabled})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.appCtx.Logger.Info("dating status changed", "user", callerID, "status", req.Status)
		if req.Status == db.DatingEnabled {
			s.ScheduleReconcile(callerID)
		}
	}
	return &DatingStatus{UserID: callerID, Status: req.Status}, nil
}

// ApproveMatch records the caller's approval of another user.
func (s *Service) ApproveMatch(ctx context.Context, callerID string, req *UserRequest) (*Match, error) {
	return s.decide(ctx, callerID, req, db.MatchApproved)
}

// RejectMatch records the caller's rejection of another user.
func (s *Service) RejectMatch(ctx context.Context, callerID string, req *UserRequest) (*Match, error) {
	return s.decide(ctx, callerID, req, db.MatchRejected)
}

// decide moves caller→other from POTENTIAL to status. Any other starting
// state is an invalid transition. When both directions end APPROVED the
// match is confirmed and the pair's direct chat is opened.
func (s *Service) decide(ctx context.Context, callerID string, req *UserRequest, status string) (*Match, error) {
	s.appCtx.Logger.Debug("match decision", "caller", callerID, "other", req.UserID, "to", status)

	if err := s.appCtx.Validate.Struct(req); err != nil {
		return nil, svcErr.FromValidator(err)
	}

	var theirs string
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		matches := s.matches.WithTx(tx)
		if _, err := s.activeUser(ctx, s.users.WithTx(tx), callerID); err != nil {
			return err
		}
		// both rows stay locked until commit so two mutual approvals
		// cannot each miss the other
		mine, other, err := matches.LockPair(ctx, callerID, req.UserID)
		if err != nil {
			return err
		}
		if mine == db.MatchNone {
			return svcErr.State("Match does not exist")
		}
		if mine != db.MatchPotential {
			return svcErr.State("Invalid match transition")
		}
		ok, err := matches.Transition(ctx, callerID, req.UserID, db.MatchPotential, status)
		if err != nil {
			return err
		}
		if !ok {
			return svcErr.State("Invalid match transition")
		}
		theirs = other
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordMatchTransition(status)
	overall := Overall(status, theirs)
	if overall == db.MatchConfirmed {
		metrics.RecordMatchTransition(db.MatchConfirmed)
		s.appCtx.Logger.Info("match confirmed", "a", callerID, "b", req.UserID)
		s.openChat(ctx, callerID, req.UserID)
	}
	return &Match{UserID: req.UserID, Status: overall}, nil
}

// openChat opens the confirmed pair's direct chat. The confirmation is
// already committed, so a failure is handed to the dispatcher to retry
// rather than returned to the caller.
func (s *Service) openChat(ctx context.Context, a, b string) {
	_, err := s.chats.EnsureMatchChat(ctx, a, b)
	if err == nil {
		return
	}
	s.appCtx.Logger.Warn("match chat not opened, retrying in background", "a", a, "b", b, "err", err)
	s.appCtx.Dispatcher.Enqueue(repository.DirectKey(a, b), "match.chat", func(ctx context.Context) error {
		_, err := s.chats.EnsureMatchChat(ctx, a, b)
		return err
	})
}

// MatchStatus returns the caller's overall status with another user.
func (s *Service) MatchStatus(ctx context.Context, callerID string, req *UserRequest) (*Match, error) {
	if err := s.appCtx.Validate.Struct(req); err != nil {
		return nil, svcErr.FromValidator(err)
	}
	mine, theirs, err := s.matches.Pair(ctx, callerID, req.UserID)
	if err != nil {
		return nil, err
	}
	return &Match{UserID: req.UserID, Status: Overall(mine, theirs)}, nil
}

// ListMatchedUsers lists the caller's matches in one overall status.
func (s *Service) ListMatchedUsers(ctx context.Context, callerID string, req *ListRequest) (*MatchList, error) {
	if err := s.appCtx.Validate.Struct(req); err != nil {
		return nil, svcErr.FromValidator(err)
	}
	decisions, next, err := s.matches.List(ctx, callerID, req.Status, req.PaginationToken, pagination.Limit(req.Limit, 20, 100))
	if err != nil {
		return nil, svcErr.Validation("%s", err.Error())
	}
	out := &MatchList{Matches: make([]Match, 0, len(decisions)), NextPaginationToken: next}
	for _, d := range decisions {
		out.Matches = append(out.Matches, Match{UserID: d.OtherUserID, Status: req.Status})
	}
	return out, nil
}

// SwipedRightUsers lists everyone the caller approved. DIAMOND only.
func (s *Service) SwipedRightUsers(ctx context.Context, callerID string, _ *struct{}) (*UserIDs, error) {
	u, err := s.users.Get(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, svcErr.NotFound("User not found")
	}
	if u.SubscriptionLevel != db.SubscriptionDiamond {
		return nil, svcErr.Precondition("Requires a DIAMOND subscription", CodeWrongSubscriptionLevel)
	}
	ids, err := s.matches.SwipedRight(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return &UserIDs{UserIDs: ids}, nil
}

// CanComment reports whether commenterID may comment on a post owned by
// ownerID: dating pairs must be confirmed first.
func (s *Service) CanComment(ctx context.Context, commenterID, ownerID string) error {
	if commenterID == ownerID {
		return nil
	}
	a, b, err := s.matches.Pair(ctx, commenterID, ownerID)
	if err != nil {
		return err
	}
	if a == db.MatchNone && b == db.MatchNone {
		return nil
	}
	if Overall(a, b) == db.MatchConfirmed {
		return nil
	}
	return svcErr.Permission("Cannot add comment unless it is a confirmed match on dating")
}

// ScheduleReconcile runs Reconcile for userID in the background.
func (s *Service) ScheduleReconcile(userID string) {
	s.appCtx.Dispatcher.Enqueue(userID, "match.reconcile", func(ctx context.Context) error {
		return s.Reconcile(ctx, userID)
	})
}

// Reconcile creates POTENTIAL matches between userID and every dating user
// whose preferences and userID's accept each other. Existing decisions are
// left alone.
func (s *Service) Reconcile(ctx context.Context, userID string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil || u.Status != db.UserStatusActive || u.DatingStatus != db.DatingEnabled {
		return nil
	}
	if u.MatchAgeMin == nil || u.MatchAgeMax == nil || u.MatchHeightMin == nil || u.MatchHeightMax == nil {
		return nil
	}
	genders := Genders(u.MatchGenders)
	if len(genders) == 0 {
		return nil
	}

	now := s.appCtx.DB.NowFunc()
	bornAfter := now.AddDate(-(*u.MatchAgeMax + 1), 0, 0)
	bornBefore := now.AddDate(-*u.MatchAgeMin, 0, 0)
	candidates, err := s.users.DatingCandidates(ctx, userID, genders, bornAfter, bornBefore, *u.MatchHeightMin, *u.MatchHeightMax, SearchBox(u))
	if err != nil {
		return err
	}

	created := 0
	for i := range candidates {
		c := &candidates[i]
		if !wants(u, c, now) || !wants(c, u, now) {
			continue
		}
		ok, err := s.matches.CreatePotential(ctx, userID, c.ID)
		if err != nil {
			return err
		}
		if ok {
			created++
			metrics.RecordMatchTransition(db.MatchPotential)
		}
	}
	s.appCtx.Logger.Debug("match reconcile done", "user", userID, "candidates", len(candidates), "created", created)
	return nil
}

// ResetUserMatches drops every match record of userID.
func (s *Service) ResetUserMatches(ctx context.Context, userID string) error {
	return s.matches.DeleteAll(ctx, userID)
}
