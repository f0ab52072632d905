package social

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-social/internal/db"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
)

// CreateUser registers the caller's account. Users who earlier looked up
// the new account's email or phone get a CONTACT_JOINED card.
func (s *Service) CreateUser(ctx context.Context, callerID string, req *CreateUserRequest) (*User, error) {
	s.appCtx.Logger.Debug("CreateUser called", "caller", callerID, "username", req.Username)

	// addresses are stored trimmed and lower-cased; validate that form
	req.Email = normalizeEmail(req.Email)
	if req.Email != nil && *req.Email == "" {
		req.Email = nil
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if callerID == "" {
		return nil, svcErr.Validation("Missing caller identity")
	}

	u := &db.User{
		ID:                callerID,
		Username:          req.Username,
		Email:             req.Email,
		Phone:             req.Phone,
		Status:            db.UserStatusActive,
		SubscriptionLevel: db.SubscriptionBasic,
		PrivacyStatus:     db.PrivacyPublic,
		DatingStatus:      db.DatingDisabled,
	}
	if req.Anonymous {
		u.Status = db.UserStatusAnonymous
	}

	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		if u.Email != nil {
			banned, err := s.moderator.IsEmailBanned(ctx, tx, *u.Email)
			if err != nil {
				return err
			}
			if banned {
				return svcErr.Precondition("Email is banned", CodeEmailBanned)
			}
		}
		if existing, err := users.Get(ctx, callerID); err != nil {
			return err
		} else if existing != nil {
			return svcErr.State("User already exists")
		}
		taken, err := users.IDsByUsername(ctx, []string{req.Username}, nil)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return svcErr.State("Username already taken")
		}
		return users.Create(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	s.appCtx.Logger.Info("user created", "user", u.ID, "status", u.Status)
	s.cards.ScheduleProfile(u.ID)
	if err := s.notifyContacts(ctx, u); err != nil {
		// cards are derived; the account exists regardless
		s.appCtx.Logger.Warn("contact joined lookup failed", "user", u.ID, "err", err)
	}
	return toUser(u), nil
}

func (s *Service) notifyContacts(ctx context.Context, u *db.User) error {
	var contacts []string
	if u.Email != nil {
		contacts = append(contacts, *u.Email)
	}
	if u.Phone != nil {
		contacts = append(contacts, *u.Phone)
	}
	interested, err := s.users.InterestedIn(ctx, contacts)
	if err != nil {
		return err
	}
	s.cards.ScheduleContactJoined(u.ID, interested...)
	return nil
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	e := strings.ToLower(strings.TrimSpace(*email))
	return &e
}

// GetUser returns any user's public view.
func (s *Service) GetUser(ctx context.Context, _ string, req *UserRequest) (*User, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	u, err := s.user(ctx, s.appCtx.DB, req.UserID)
	if err != nil {
		return nil, err
	}
	return toUser(u), nil
}

// SetUserDetails updates profile and dating fields of the caller.
//
// Behavior:
//   - The photo must be a post owned by the caller.
//   - Going PUBLIC accepts every pending follow request.
//   - Profile cards are re-rendered; dating users are re-matched.
func (s *Service) SetUserDetails(ctx context.Context, callerID string, req *SetUserDetailsRequest) (*User, error) {
	s.appCtx.Logger.Debug("SetUserDetails called", "caller", callerID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	if req.MatchAgeMin != nil && req.MatchAgeMax != nil && *req.MatchAgeMin > *req.MatchAgeMax {
		return nil, svcErr.Validation("matchAgeMin must not exceed matchAgeMax")
	}
	if req.MatchHeightMin != nil && req.MatchHeightMax != nil && *req.MatchHeightMin > *req.MatchHeightMax {
		return nil, svcErr.Validation("matchHeightMin must not exceed matchHeightMax")
	}

	var (
		u        *db.User
		accepted []string
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		var err error
		if u, err = s.user(ctx, tx, callerID); err != nil {
			return err
		}
		if req.PhotoPostID != nil {
			p, err := s.posts.WithTx(tx).Get(ctx, *req.PhotoPostID)
			if err != nil {
				return err
			}
			if p == nil {
				return svcErr.NotFound("Post not found")
			}
			if p.UserID != callerID {
				return svcErr.Permission("Cannot use a post owned by another user as profile photo")
			}
		}

		updates, err := detailUpdates(req)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := users.Update(ctx, callerID, updates); err != nil {
			return err
		}
		if req.PrivacyStatus != nil && *req.PrivacyStatus == db.PrivacyPublic && u.PrivacyStatus == db.PrivacyPrivate {
			if accepted, err = users.AcceptAllRequests(ctx, callerID); err != nil {
				return err
			}
		}
		u, err = users.Get(ctx, callerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleProfile(callerID)
	if len(accepted) > 0 {
		s.cards.ScheduleFollowRequests(callerID)
		for _, follower := range accepted {
			s.cards.ScheduleContactJoined(callerID, follower)
		}
	}
	if u.DatingStatus == db.DatingEnabled {
		s.matches.ScheduleReconcile(callerID)
	}
	return toUser(u), nil
}

func detailUpdates(req *SetUserDetailsRequest) (map[string]any, error) {
	updates := map[string]any{}
	set := func(column string, v any, ok bool) {
		if ok {
			updates[column] = v
		}
	}
	set("full_name", req.FullName, req.FullName != nil)
	set("display_name", req.DisplayName, req.DisplayName != nil)
	set("photo_post_id", req.PhotoPostID, req.PhotoPostID != nil)
	set("privacy_status", deref(req.PrivacyStatus), req.PrivacyStatus != nil)
	set("subscription_level", deref(req.SubscriptionLevel), req.SubscriptionLevel != nil)
	set("gender", req.Gender, req.Gender != nil)
	set("date_of_birth", req.DateOfBirth, req.DateOfBirth != nil)
	set("height", req.Height, req.Height != nil)
	set("location_lat", req.LocationLat, req.LocationLat != nil)
	set("location_lng", req.LocationLng, req.LocationLng != nil)
	set("match_age_min", req.MatchAgeMin, req.MatchAgeMin != nil)
	set("match_age_max", req.MatchAgeMax, req.MatchAgeMax != nil)
	set("match_height_min", req.MatchHeightMin, req.MatchHeightMin != nil)
	set("match_height_max", req.MatchHeightMax, req.MatchHeightMax != nil)
	set("match_location_radius", req.MatchLocationRadius, req.MatchLocationRadius != nil)
	if req.MatchGenders != nil {
		b, err := json.Marshal(req.MatchGenders)
		if err != nil {
			return nil, err
		}
		updates["match_genders"] = b
	}
	return updates, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SetUserStatus lets the caller deactivate or reactivate their account.
// Accounts whose email was banned cannot come back.
func (s *Service) SetUserStatus(ctx context.Context, callerID string, req *SetUserStatusRequest) (*User, error) {
	s.appCtx.Logger.Debug("SetUserStatus called", "caller", callerID, "status", req.Status)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	var u *db.User
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		var err error
		if u, err = s.user(ctx, tx, callerID); err != nil {
			return err
		}
		if u.Status == req.Status {
			return nil
		}
		if u.Status == db.UserStatusDeleting || u.Status == db.UserStatusResetting {
			return svcErr.State("Cannot change status while %s", strings.ToLower(u.Status))
		}
		if req.Status == db.UserStatusActive && u.Email != nil {
			banned, err := s.moderator.IsEmailBanned(ctx, tx, *u.Email)
			if err != nil {
				return err
			}
			if banned {
				return svcErr.Precondition("Email is banned", CodeEmailBanned)
			}
		}
		updates := map[string]any{"status": req.Status}
		if req.Status == db.UserStatusDisabled && u.DatingStatus == db.DatingEnabled {
			updates["dating_status"] = db.DatingDisabled
			updates["dating_disabled_at"] = tx.NowFunc()
		}
		if err := users.Update(ctx, callerID, updates); err != nil {
			return err
		}
		u, err = users.Get(ctx, callerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cards.ScheduleProfile(callerID)
	return toUser(u), nil
}

// ResetUser wipes the caller's social state: chats, follows, matches and
// cards. The account itself survives.
//
// The pre-reset status is stored alongside RESETTING, so a reset that fails
// part way is rolled back to it, and a reset interrupted before it could
// roll back resumes from it when called again.
func (s *Service) ResetUser(ctx context.Context, callerID string, _ *struct{}) (*User, error) {
	s.appCtx.Logger.Info("ResetUser called", "caller", callerID)

	u, err := s.user(ctx, s.appCtx.DB, callerID)
	if err != nil {
		return nil, err
	}
	prev := u.Status
	if u.Status == db.UserStatusResetting && u.ResetFrom != nil {
		prev = *u.ResetFrom
	}
	if err := s.users.Update(ctx, callerID, map[string]any{
		"status":     db.UserStatusResetting,
		"reset_from": prev,
	}); err != nil {
		return nil, err
	}

	requested, err := s.reset(ctx, callerID, prev)
	if err != nil {
		restore := map[string]any{"status": prev, "reset_from": nil}
		if rerr := s.users.Update(context.WithoutCancel(ctx), callerID, restore); rerr != nil {
			s.appCtx.Logger.Error("reset rollback failed", "user", callerID, "err", rerr)
		}
		return nil, err
	}

	s.cards.ScheduleClear(callerID)
	s.cards.ScheduleProfile(callerID)
	s.cards.ScheduleFollowRequests(requested...)
	u.Status = prev
	u.ResetFrom = nil
	u.DatingStatus = db.DatingDisabled
	return toUser(u), nil
}

// reset does the destructive part of ResetUser and restores prev as the
// final write. It returns the users whose follow requests were dropped.
func (s *Service) reset(ctx context.Context, userID, prev string) ([]string, error) {
	if err := s.chats.ResetUserChats(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.matches.ResetUserMatches(ctx, userID); err != nil {
		return nil, err
	}

	var requested []string
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		var err error
		if requested, err = users.DeleteFollowsOf(ctx, userID); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&db.ContactInterest{}).Error; err != nil {
			return err
		}
		return users.Update(ctx, userID, map[string]any{
			"status":        prev,
			"reset_from":    nil,
			"dating_status": db.DatingDisabled,
		})
	})
	return requested, err
}
