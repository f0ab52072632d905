package social

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-social/internal/db"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
)

// FollowUser follows another user. Private accounts get a request instead.
func (s *Service) FollowUser(ctx context.Context, callerID string, req *UserRequest) (*Follow, error) {
	s.appCtx.Logger.Debug("FollowUser called", "caller", callerID, "target", req.UserID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	if req.UserID == callerID {
		return nil, svcErr.Validation("Cannot follow yourself")
	}

	out := &Follow{FollowerID: callerID, FollowedID: req.UserID}
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		if _, err := s.active(ctx, tx, callerID, CodeUserNotActive); err != nil {
			return err
		}
		target, err := s.active(ctx, tx, req.UserID, CodeTargetNotActive)
		if err != nil {
			return err
		}
		blocked, err := users.EitherBlocks(ctx, callerID, req.UserID)
		if err != nil {
			return err
		}
		if blocked {
			return svcErr.Permission("Cannot follow a blocked user")
		}
		existing, err := users.Follow(ctx, callerID, req.UserID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != db.FollowDenied {
			out.Status = existing.Status
			return nil
		}
		out.Status = db.FollowFollowing
		if target.PrivacyStatus == db.PrivacyPrivate {
			out.Status = db.FollowRequested
		}
		return users.SetFollow(ctx, callerID, req.UserID, out.Status)
	})
	if err != nil {
		return nil, err
	}

	if out.Status == db.FollowRequested {
		s.cards.ScheduleFollowRequests(req.UserID)
	} else {
		s.cards.ScheduleContactJoined(req.UserID, callerID)
	}
	return out, nil
}

// UnfollowUser removes the caller's follow or pending request.
func (s *Service) UnfollowUser(ctx context.Context, callerID string, req *UserRequest) (*Follow, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	removed, err := s.users.DeleteFollow(ctx, callerID, req.UserID)
	if err != nil {
		return nil, err
	}
	if removed {
		s.cards.ScheduleFollowRequests(req.UserID)
	}
	return &Follow{FollowerID: callerID, FollowedID: req.UserID}, nil
}

// answerRequest moves a pending request from follower to the caller.
func (s *Service) answerRequest(ctx context.Context, callerID, followerID, status string) (*Follow, error) {
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		f, err := users.Follow(ctx, followerID, callerID)
		if err != nil {
			return err
		}
		if f == nil || f.Status != db.FollowRequested {
			return svcErr.NotFound("Follow request not found")
		}
		return users.SetFollow(ctx, followerID, callerID, status)
	})
	if err != nil {
		return nil, err
	}
	s.cards.ScheduleFollowRequests(callerID)
	return &Follow{FollowerID: followerID, FollowedID: callerID, Status: status}, nil
}

// AcceptFollowerUser accepts a pending follow request.
func (s *Service) AcceptFollowerUser(ctx context.Context, callerID string, req *UserRequest) (*Follow, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	f, err := s.answerRequest(ctx, callerID, req.UserID, db.FollowFollowing)
	if err != nil {
		return nil, err
	}
	s.cards.ScheduleContactJoined(callerID, req.UserID)
	return f, nil
}

// DenyFollowerUser denies a pending follow request.
func (s *Service) DenyFollowerUser(ctx context.Context, callerID string, req *UserRequest) (*Follow, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	return s.answerRequest(ctx, callerID, req.UserID, db.FollowDenied)
}

// BlockUser blocks another user and drops follows in both directions.
func (s *Service) BlockUser(ctx context.Context, callerID string, req *UserRequest) (*UserRequest, error) {
	s.appCtx.Logger.Debug("BlockUser called", "caller", callerID, "target", req.UserID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	if req.UserID == callerID {
		return nil, svcErr.Validation("Cannot block yourself")
	}
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		if _, err := s.user(ctx, tx, req.UserID); err != nil {
			return err
		}
		if err := users.Block(ctx, callerID, req.UserID); err != nil {
			return err
		}
		if _, err := users.DeleteFollow(ctx, callerID, req.UserID); err != nil {
			return err
		}
		_, err := users.DeleteFollow(ctx, req.UserID, callerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleFollowRequests(callerID, req.UserID)
	s.cards.ScheduleContactJoined(req.UserID, callerID)
	s.cards.ScheduleContactJoined(callerID, req.UserID)
	return req, nil
}

// UnblockUser lifts the caller's block.
func (s *Service) UnblockUser(ctx context.Context, callerID string, req *UserRequest) (*UserRequest, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.users.Unblock(ctx, callerID, req.UserID); err != nil {
		return nil, err
	}
	return req, nil
}

// FindContacts returns registered users matching the caller's contacts and
// remembers the rest, so the caller hears when they join.
func (s *Service) FindContacts(ctx context.Context, callerID string, req *FindContactsRequest) (*ContactList, error) {
	s.appCtx.Logger.Debug("FindContacts called", "caller", callerID, "contacts", len(req.Contacts))

	if err := s.validate(req); err != nil {
		return nil, err
	}
	contacts := make([]string, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		if n := normalizeEmail(&c); strings.Contains(*n, "@") {
			contacts = append(contacts, *n)
		} else {
			contacts = append(contacts, c)
		}
	}

	users, err := s.users.ByContacts(ctx, contacts)
	if err != nil {
		return nil, err
	}
	known := map[string]bool{}
	out := &ContactList{Users: make([]Contact, 0, len(users))}
	for _, u := range users {
		if u.Email != nil {
			known[*u.Email] = true
		}
		if u.Phone != nil {
			known[*u.Phone] = true
		}
		if u.ID == callerID || u.Status != db.UserStatusActive {
			continue
		}
		out.Users = append(out.Users, Contact{UserID: u.ID, Username: u.Username})
	}

	var unknown []string
	for _, c := range contacts {
		if !known[c] {
			unknown = append(unknown, c)
		}
	}
	if err := s.users.RecordContactInterest(ctx, callerID, unknown); err != nil {
		return nil, err
	}
	return out, nil
}
