// Package chat implements direct and group chats: membership, messages,
// moderation, flagging and per-viewer unread tracking.
//
// The chat row is a versioned aggregate. Every write to its counters is a
// conditional update on Version; a lost race restarts the whole transaction.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-social/internal/app"
	"github.com/oggyb/muzz-social/internal/db"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
	"github.com/oggyb/muzz-social/internal/metrics"
	"github.com/oggyb/muzz-social/internal/moderation"
	"github.com/oggyb/muzz-social/internal/repository"
	"github.com/oggyb/muzz-social/internal/service/cards"
	"github.com/oggyb/muzz-social/internal/service/views"
	"github.com/oggyb/muzz-social/internal/utils/mentions"
	"github.com/oggyb/muzz-social/internal/utils/pagination"
)

const maxAttempts = 5

// MatchSeedText opens the chat created when a match is confirmed.
const MatchSeedText = "You matched! Say hi 👋"

// Service implements the chat engine.
type Service struct {
	appCtx    *app.AppContext
	chats     *repository.ChatRepository
	users     *repository.UserRepository
	views     *views.Tracker
	cards     *cards.Reconciler
	filter    *moderation.Filter
	moderator *moderation.Moderator
}

func NewService(
	appCtx *app.AppContext,
	tracker *views.Tracker,
	reconciler *cards.Reconciler,
	filter *moderation.Filter,
	moderator *moderation.Moderator,
) *Service {
	return &Service{
		appCtx:    appCtx,
		chats:     repository.NewChatRepository(appCtx.DB),
		users:     repository.NewUserRepository(appCtx.DB),
		views:     tracker,
		cards:     reconciler,
		filter:    filter,
		moderator: moderator,
	}
}

// inChat runs fn in a transaction, restarting it when a conditional chat
// write lost a race.
func (s *Service) inChat(ctx context.Context, fn func(tx *gorm.DB) error) error {
	for attempt := 1; ; attempt++ {
		err := s.appCtx.DB.WithContext(ctx).Transaction(fn)
		if !errors.Is(err, repository.ErrVersionConflict) || attempt >= maxAttempts {
			return err
		}
		s.appCtx.Logger.Debug("chat version conflict, retrying", "attempt", attempt)
	}
}

func (s *Service) validate(req any) error {
	if err := s.appCtx.Validate.Struct(req); err != nil {
		return svcErr.FromValidator(err)
	}
	return nil
}

// active loads userID and requires the account to be ACTIVE.
func (s *Service) active(ctx context.Context, tx *gorm.DB, userID, code string) (*db.User, error) {
	u, err := s.users.WithTx(tx).Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, svcErr.NotFound("User not found")
	}
	if u.Status != db.UserStatusActive {
		return nil, svcErr.Precondition("User is not active", code)
	}
	return u, nil
}

// memberChat loads chatID and requires userID to be a member.
func (s *Service) memberChat(ctx context.Context, tx *gorm.DB, chatID, userID string) (*db.Chat, error) {
	chats := s.chats.WithTx(tx)
	chat, err := chats.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, svcErr.NotFound("Chat not found")
	}
	ok, err := chats.IsMember(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, svcErr.Permission("User is not a member of the chat")
	}
	return chat, nil
}

// appendMessage gives msg the chat's next sequence and stores it. Only
// visible messages count and move the chat's activity.
func (s *Service) appendMessage(ctx context.Context, tx *gorm.DB, chat *db.Chat, msg *db.Message, visible bool) error {
	chats := s.chats.WithTx(tx)
	now := tx.NowFunc()
	seq := chat.LastMessageSeq + 1

	updates := map[string]any{"last_message_seq": seq}
	var activity int64
	if visible {
		var err error
		if activity, err = s.appCtx.RedisCache.NextActivitySeq(ctx); err != nil {
			return err
		}
		updates["messages_count"] = chat.MessagesCount + 1
		updates["last_message_activity_at"] = now
		updates["activity_seq"] = activity
	}
	if err := chats.UpdateIfVersion(ctx, chat, updates); err != nil {
		return err
	}
	chat.LastMessageSeq = seq
	if visible {
		chat.MessagesCount++
		chat.LastMessageActivityAt = now
		chat.ActivitySeq = activity
	}

	msg.ChatID = chat.ID
	msg.Seq = seq
	msg.CreatedAt = now
	if msg.TextTaggedUsers == nil {
		msg.TextTaggedUsers = mentions.JSON(nil)
	}
	if err := chats.CreateMessage(ctx, msg); err != nil {
		return err
	}
	if !visible {
		if err := chats.HideMessage(ctx, msg.ID); err != nil {
			return err
		}
		msg.DeletedAt = gorm.DeletedAt{Time: now, Valid: true}
	}
	return nil
}

func systemMessage(actorID *string, text string, tagged []*db.User) *db.Message {
	tags := make([]mentions.TaggedUser, 0, len(tagged))
	for _, u := range tagged {
		tags = append(tags, mentions.TaggedUser{Tag: "@" + u.Username, UserID: u.ID})
	}
	return &db.Message{
		ID:              uuid.NewString(),
		ActorUserID:     actorID,
		Origin:          db.OriginSystem,
		Text:            text,
		TextTaggedUsers: mentions.JSON(tags),
	}
}

// visible applies moderation: text with a banned term stays visible only if
// the author and every recipient follow each other.
func (s *Service) visible(ctx context.Context, tx *gorm.DB, authorID string, memberIDs []string, text string) (bool, error) {
	if !s.filter.IsBanned(ctx, text) {
		return true, nil
	}
	recipients := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != authorID {
			recipients = append(recipients, id)
		}
	}
	mutual, err := s.users.WithTx(tx).MutualWithAll(ctx, authorID, recipients)
	if err != nil || mutual {
		return mutual, err
	}
	if _, err := s.moderator.Strike(ctx, tx, authorID); err != nil {
		return false, err
	}
	return false, nil
}

// tags resolves @mentions in text to chat members.
func (s *Service) tags(ctx context.Context, tx *gorm.DB, text string, memberIDs []string) ([]mentions.TaggedUser, error) {
	return mentions.Resolve(text, func(names []string) (map[string]string, error) {
		return s.users.WithTx(tx).IDsByUsername(ctx, names, memberIDs)
	})
}

// addUserMessage stores a user message in chat, resolving mentions against
// members and applying moderation.
func (s *Service) addUserMessage(ctx context.Context, tx *gorm.DB, chat *db.Chat, memberIDs []string, authorID, messageID, text string) (*db.Message, error) {
	tags, err := s.tags(ctx, tx, text, memberIDs)
	if err != nil {
		return nil, err
	}
	ok, err := s.visible(ctx, tx, authorID, memberIDs, text)
	if err != nil {
		return nil, err
	}
	author := authorID
	msg := &db.Message{
		ID:              messageID,
		AuthorUserID:    &author,
		Origin:          db.OriginUser,
		Text:            text,
		TextTaggedUsers: mentions.JSON(tags),
	}
	if err := s.appendMessage(ctx, tx, chat, msg, ok); err != nil {
		return nil, err
	}
	if ok {
		metrics.RecordChatMessage("created")
	} else {
		metrics.RecordChatMessage("moderated")
	}
	return msg, nil
}

// CreateDirectChat opens a chat between the caller and another user with a
// first message.
func (s *Service) CreateDirectChat(ctx context.Context, callerID string, req *CreateDirectChatRequest) (*Chat, error) {
	s.appCtx.Logger.Debug("CreateDirectChat called", "caller", callerID, "other", req.UserID, "chat", req.ChatID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	if req.UserID == callerID {
		return nil, svcErr.Validation("Cannot create a direct chat with yourself")
	}

	members := []string{callerID, req.UserID}
	err := s.inChat(ctx, func(tx *gorm.DB) error {
		chats := s.chats.WithTx(tx)
		if _, err := s.active(ctx, tx, callerID, "CALLER_NOT_ACTIVE"); err != nil {
			return err
		}
		if _, err := s.active(ctx, tx, req.UserID, "TARGET_NOT_ACTIVE"); err != nil {
			return err
		}
		blocked, err := s.users.WithTx(tx).EitherBlocks(ctx, callerID, req.UserID)
		if err != nil {
			return err
		}
		if blocked {
			return svcErr.Permission("Cannot create a chat with a blocked user")
		}
		if existing, err := chats.FindDirect(ctx, callerID, req.UserID); err != nil {
			return err
		} else if existing != nil {
			return svcErr.State("Direct chat already exists")
		}
		if err := s.ensureNewIDs(ctx, tx, req.ChatID, req.MessageID); err != nil {
			return err
		}

		key := repository.DirectKey(callerID, req.UserID)
		creator := callerID
		chat := &db.Chat{
			ID:                    req.ChatID,
			ChatType:              db.ChatDirect,
			DirectKey:             &key,
			CreatedByUserID:       &creator,
			LastMessageActivityAt: tx.NowFunc(),
			Version:               1,
		}
		if err := chats.Create(ctx, chat, members); err != nil {
			return err
		}
		_, err = s.addUserMessage(ctx, tx, chat, members, callerID, req.MessageID, req.Text)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleChatActivity(members...)
	return s.GetChat(ctx, callerID, req.ChatID)
}

func (s *Service) ensureNewIDs(ctx context.Context, tx *gorm.DB, chatID, messageID string) error {
	chats := s.chats.WithTx(tx)
	if chatID != "" {
		if c, err := chats.Get(ctx, chatID); err != nil {
			return err
		} else if c != nil {
			return svcErr.State("Chat already exists")
		}
	}
	if m, err := chats.GetMessageUnscoped(ctx, messageID); err != nil {
		return err
	} else if m != nil {
		return svcErr.State("Message already exists")
	}
	return nil
}

// CreateGroupChat creates a group with the caller and memberIDs.
//
// Messages, in order:
//   - system "created" message tagging the creator;
//   - system "added" message tagging the added members (only if any);
//   - the caller's initial message.
func (s *Service) CreateGroupChat(ctx context.Context, callerID string, req *CreateGroupChatRequest) (*Chat, error) {
	s.appCtx.Logger.Debug("CreateGroupChat called", "caller", callerID, "chat", req.ChatID, "members", len(req.MemberIDs))

	if err := s.validate(req); err != nil {
		return nil, err
	}

	var members []string
	err := s.inChat(ctx, func(tx *gorm.DB) error {
		chats := s.chats.WithTx(tx)
		creator, err := s.active(ctx, tx, callerID, "CALLER_NOT_ACTIVE")
		if err != nil {
			return err
		}
		added, err := s.loadNewMembers(ctx, tx, callerID, req.MemberIDs, nil)
		if err != nil {
			return err
		}
		if err := s.ensureNewIDs(ctx, tx, req.ChatID, req.MessageID); err != nil {
			return err
		}

		members = []string{callerID}
		for _, u := range added {
			members = append(members, u.ID)
		}
		chat := &db.Chat{
			ID:                    req.ChatID,
			ChatType:              db.ChatGroup,
			Name:                  req.Name,
			CreatedByUserID:       &creator.ID,
			LastMessageActivityAt: tx.NowFunc(),
			Version:               1,
		}
		if err := chats.Create(ctx, chat, members); err != nil {
			return err
		}

		created := systemMessage(&creator.ID, "@"+creator.Username+" created the group", []*db.User{creator})
		if err := s.appendMessage(ctx, tx, chat, created, true); err != nil {
			return err
		}
		if len(added) > 0 {
			if err := s.appendMessage(ctx, tx, chat, addedMessage(creator, added), true); err != nil {
				return err
			}
		}
		_, err = s.addUserMessage(ctx, tx, chat, members, callerID, req.MessageID, req.Text)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleChatActivity(members...)
	return s.GetChat(ctx, callerID, req.ChatID)
}

func addedMessage(actor *db.User, added []*db.User) *db.Message {
	names := make([]string, 0, len(added))
	for _, u := range added {
		names = append(names, "@"+u.Username)
	}
	return systemMessage(&actor.ID, "@"+actor.Username+" added "+strings.Join(names, ", "), added)
}

// loadNewMembers resolves ids to ACTIVE, unblocked users not already in
// existing, skipping the caller and duplicates.
func (s *Service) loadNewMembers(ctx context.Context, tx *gorm.DB, callerID string, ids []string, existing map[string]bool) ([]*db.User, error) {
	users := s.users.WithTx(tx)
	seen := map[string]bool{callerID: true}
	var out []*db.User
	for _, id := range ids {
		if seen[id] || existing[id] {
			continue
		}
		seen[id] = true
		u, err := s.active(ctx, tx, id, "TARGET_NOT_ACTIVE")
		if err != nil {
			return nil, err
		}
		blocked, err := users.EitherBlocks(ctx, callerID, id)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, svcErr.Permission("Cannot add a blocked user to a chat")
		}
		out = append(out, u)
	}
	return out, nil
}

// AddToGroupChat adds members to a group the caller belongs to.
func (s *Service) AddToGroupChat(ctx context.Context, callerID string, req *AddToGroupChatRequest) (*Chat, error) {
	s.appCtx.Logger.Debug("AddToGroupChat called", "caller", callerID, "chat", req.ChatID)

	if err := s.validate(req); err != nil {
		return nil, err
	}

	var members []string
	err := s.inChat(ctx, func(tx *gorm.DB) error {
		chats := s.chats.WithTx(tx)
		actor, err := s.active(ctx, tx, callerID, "CALLER_NOT_ACTIVE")
		if err != nil {
			return err
		}
		chat, err := s.memberChat(ctx, tx, req.ChatID, callerID)
		if err != nil {
			return err
		}
		if chat.ChatType != db.ChatGroup {
			return svcErr.State("Members can only be added to group chats")
		}
		if members, err = chats.MemberIDs(ctx, chat.ID); err != nil {
			return err
		}
		existing := map[string]bool{}
		for _, id := range members {
			existing[id] = true
		}
		added, err := s.loadNewMembers(ctx, tx, callerID, req.MemberIDs, existing)
		if err != nil || len(added) == 0 {
			return err
		}

		ids := make([]string, 0, len(added))
		for _, u := range added {
			ids = append(ids, u.ID)
		}
		if err := chats.AddMembers(ctx, chat.ID, ids); err != nil {
			return err
		}
		if err := chats.UpdateIfVersion(ctx, chat, map[string]any{"member_count": chat.MemberCount + len(ids)}); err != nil {
			return err
		}
		chat.MemberCount += len(ids)
		members = append(members, ids...)
		return s.appendMessage(ctx, tx, chat, addedMessage(actor, added), true)
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleChatActivity(members...)
	return s.GetChat(ctx, callerID, req.ChatID)
}

// EditGroupChatName renames a group chat.
func (s *Service) EditGroupChatName(ctx context.Context, callerID string, req *EditGroupChatNameRequest) (*Chat, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	err := s.inChat(ctx, func(tx *gorm.DB) error {
		if _, err := s.active(ctx, tx, callerID, "CALLER_NOT_ACTIVE"); err != nil {
			return err
		}
		chat, err := s.memberChat(ctx, tx, req.ChatID, callerID)
		if err != nil {
			return err
		}
		if chat.ChatType != db.ChatGroup {
			return svcErr.State("Only group chats have a name")
		}
		return s.chats.WithTx(tx).UpdateIfVersion(ctx, chat, map[string]any{"name": req.Name})
	})
	if err != nil {
		return nil, err
	}
	return s.GetChat(ctx, callerID, req.ChatID)
}

// LeaveGroupChat removes the caller from a group chat.
func (s *Service) LeaveGroupChat(ctx context.Context, callerID string, req *ChatRequest) (*ChatRequest, error) {
	s.appCtx.Logger.Debug("LeaveGroupChat called", "caller", callerID, "chat", req.ChatID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	var remaining []string
	err := s.inChat(ctx, func(tx *gorm.DB) error {
		u, err := s.users.WithTx(tx).Get(ctx, callerID)
		if err != nil {
			return err
		}
		if u == nil {
			return svcErr.NotFound("User not found")
		}
		chat, err := s.memberChat(ctx, tx, req.ChatID, callerID)
		if err != nil {
			return err
		}
		if chat.ChatType != db.ChatGroup {
			return svcErr.State("Cannot leave a direct chat")
		}
		remaining, err = s.leave(ctx, tx, chat, u)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleChatActivity(append(remaining, callerID)...)
	return &ChatRequest{ChatID: req.ChatID}, nil
}

// leave removes u from chat: their messages lose the author but keep their
// text, and a system message announces it. The last member leaving deletes
// the chat. Returns the remaining member ids.
func (s *Service) leave(ctx context.Context, tx *gorm.DB, chat *db.Chat, u *db.User) ([]string, error) {
	chats := s.chats.WithTx(tx)
	if err := chats.RemoveMember(ctx, chat.ID, u.ID); err != nil {
		return nil, err
	}
	if err := chats.ClearAuthor(ctx, chat.ID, u.ID); err != nil {
		return nil, err
	}
	remaining, err := chats.MemberIDs(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		metrics.RecordChatDeleted("empty")
		return nil, chats.Delete(ctx, chat.ID)
	}
	if err := chats.UpdateIfVersion(ctx, chat, map[string]any{"member_count": len(remaining)}); err != nil {
		return nil, err
	}
	chat.MemberCount = len(remaining)
	left := systemMessage(&u.ID, "@"+u.Username+" left the group", []*db.User{u})
	return remaining, s.appendMessage(ctx, tx, chat, left, true)
}

// ResetUserChats removes a user being reset from all chats: they leave
// every group and their direct chats are deleted.
func (s *Service) ResetUserChats(ctx context.Context, userID string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return svcErr.NotFound("User not found")
	}
	ids, err := s.chats.ChatIDsFor(ctx, userID)
	if err != nil {
		return err
	}

	affected := map[string]bool{userID: true}
	for _, id := range ids {
		err := s.inChat(ctx, func(tx *gorm.DB) error {
			chats := s.chats.WithTx(tx)
			chat, err := chats.Get(ctx, id)
			if err != nil || chat == nil {
				return err
			}
			var members []string
			if chat.ChatType == db.ChatDirect {
				if members, err = chats.MemberIDs(ctx, id); err != nil {
					return err
				}
				metrics.RecordChatDeleted("reset")
				err = chats.Delete(ctx, id)
			} else {
				members, err = s.leave(ctx, tx, chat, u)
			}
			for _, m := range members {
				affected[m] = true
			}
			return err
		})
		if err != nil {
			return err
		}
	}

	for id := range affected {
		s.cards.ScheduleChatActivity(id)
	}
	return nil
}

// AddChatMessage posts a message from the caller.
func (s *Service) AddChatMessage(ctx context.Context, callerID string, req *AddChatMessageRequest) (*Message, error) {
	s.appCtx.Logger.Debug("AddChatMessage called", "caller", callerID, "chat", req.ChatID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	var (
		msg     *db.Message
		members []string
	)
	err := s.inChat(ctx, func(tx *gorm.DB) error {
		if _, err := s.active(ctx, tx, callerID, "CALLER_NOT_ACTIVE"); err != nil {
			return err
		}
		chat, err := s.memberChat(ctx, tx, req.ChatID, callerID)
		if err != nil {
			return err
		}
		if err := s.ensureNewIDs(ctx, tx, "", req.MessageID); err != nil {
			return err
		}
		if members, err = s.chats.WithTx(tx).MemberIDs(ctx, chat.ID); err != nil {
			return err
		}
		msg, err = s.addUserMessage(ctx, tx, chat, members, callerID, req.MessageID, req.Text)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleChatActivity(members...)
	m := toMessage(msg, callerID, 0)
	return &m, nil
}

// authored loads a visible message and requires the caller to be its author.
func (s *Service) authored(ctx context.Context, tx *gorm.DB, messageID, callerID, action string) (*db.Message, error) {
	msg, err := s.chats.WithTx(tx).GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, svcErr.NotFound("Message not found")
	}
	if !is(msg.AuthorUserID, callerID) {
		return nil, svcErr.Permission("Cannot %s a message authored by another user", action)
	}
	return msg, nil
}

// EditChatMessage rewrites the caller's own message. Tags are resolved and
// moderation applied again; the chat's activity never moves.
func (s *Service) EditChatMessage(ctx context.Context, callerID string, req *EditChatMessageRequest) (*Message, error) {
	s.appCtx.Logger.Debug("EditChatMessage called", "caller", callerID, "message", req.MessageID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	var (
		msg     *db.Message
		members []string
	)
	err := s.inChat(ctx, func(tx *gorm.DB) error {
		chats := s.chats.WithTx(tx)
		if _, err := s.active(ctx, tx, callerID, "CALLER_NOT_ACTIVE"); err != nil {
			return err
		}
		var err error
		if msg, err = s.authored(ctx, tx, req.MessageID, callerID, "edit"); err != nil {
			return err
		}
		chat, err := s.memberChat(ctx, tx, msg.ChatID, callerID)
		if err != nil {
			return err
		}
		if members, err = chats.MemberIDs(ctx, chat.ID); err != nil {
			return err
		}
		tags, err := s.tags(ctx, tx, req.Text, members)
		if err != nil {
			return err
		}
		now := tx.NowFunc()
		msg.Text = req.Text
		msg.TextTaggedUsers = mentions.JSON(tags)
		msg.LastEditedAt = &now
		if err := chats.SaveMessageText(ctx, msg); err != nil {
			return err
		}

		ok, err := s.visible(ctx, tx, callerID, members, req.Text)
		if err != nil || ok {
			metrics.RecordChatMessage("edited")
			return err
		}
		metrics.RecordChatMessage("moderated")
		if err := chats.HideMessage(ctx, msg.ID); err != nil {
			return err
		}
		msg.DeletedAt = gorm.DeletedAt{Time: now, Valid: true}
		return chats.UpdateIfVersion(ctx, chat, map[string]any{"messages_count": chat.MessagesCount - 1})
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleChatActivity(members...)
	m := toMessage(msg, callerID, 0)
	return &m, nil
}

// DeleteChatMessage removes the caller's own message. System messages have
// no author and cannot be deleted.
func (s *Service) DeleteChatMessage(ctx context.Context, callerID string, req *MessageRequest) (*MessageRequest, error) {
	s.appCtx.Logger.Debug("DeleteChatMessage called", "caller", callerID, "message", req.MessageID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	var members []string
	err := s.inChat(ctx, func(tx *gorm.DB) error {
		chats := s.chats.WithTx(tx)
		if _, err := s.active(ctx, tx, callerID, "CALLER_NOT_ACTIVE"); err != nil {
			return err
		}
		msg, err := s.authored(ctx, tx, req.MessageID, callerID, "delete")
		if err != nil {
			return err
		}
		chat, err := chats.Get(ctx, msg.ChatID)
		if err != nil {
			return err
		}
		if chat == nil {
			return svcErr.NotFound("Chat not found")
		}
		if members, err = chats.MemberIDs(ctx, chat.ID); err != nil {
			return err
		}
		if err := chats.HideMessage(ctx, msg.ID); err != nil {
			return err
		}
		metrics.RecordChatMessage("deleted")
		return chats.UpdateIfVersion(ctx, chat, map[string]any{"messages_count": chat.MessagesCount - 1})
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleChatActivity(members...)
	return &MessageRequest{MessageID: req.MessageID}, nil
}

// ReportChatViews marks every message in the given chats as viewed by the
// caller. Chats the caller is not a member of are skipped.
func (s *Service) ReportChatViews(ctx context.Context, callerID string, req *ReportChatViewsRequest) (*ChatList, error) {
	s.appCtx.Logger.Debug("ReportChatViews called", "caller", callerID, "chats", len(req.ChatIDs))

	if err := s.validate(req); err != nil {
		return nil, err
	}
	var viewed []string
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chats := s.chats.WithTx(tx)
		for _, id := range req.ChatIDs {
			chat, err := chats.Get(ctx, id)
			if err != nil {
				return err
			}
			if chat == nil {
				continue
			}
			member, err := chats.IsMember(ctx, id, callerID)
			if err != nil {
				return err
			}
			if !member {
				continue
			}
			if err := s.views.RecordChatView(ctx, tx, callerID, id, chat.LastMessageSeq); err != nil {
				return err
			}
			viewed = append(viewed, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cards.ScheduleChatActivity(callerID)
	out := &ChatList{Chats: make([]Chat, 0, len(viewed))}
	for _, id := range viewed {
		c, err := s.GetChat(ctx, callerID, id)
		if err != nil {
			return nil, err
		}
		out.Chats = append(out.Chats, *c)
	}
	return out, nil
}

// FlagChat records the caller's flag. Once enough distinct members flagged
// the chat it is deleted for everyone.
func (s *Service) FlagChat(ctx context.Context, callerID string, req *ChatRequest) (*FlagResult, error) {
	s.appCtx.Logger.Debug("FlagChat called", "caller", callerID, "chat", req.ChatID)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	cfg := s.appCtx.Config.Chat
	var (
		deleted bool
		members []string
	)
	err := s.inChat(ctx, func(tx *gorm.DB) error {
		chats := s.chats.WithTx(tx)
		deleted = false
		if _, err := s.active(ctx, tx, callerID, "CALLER_NOT_ACTIVE"); err != nil {
			return err
		}
		chat, err := s.memberChat(ctx, tx, req.ChatID, callerID)
		if err != nil {
			return err
		}
		fresh, err := chats.Flag(ctx, chat.ID, callerID)
		if err != nil || !fresh {
			return err
		}
		flags := chat.FlagCount + 1
		if err := chats.UpdateIfVersion(ctx, chat, map[string]any{"flag_count": flags}); err != nil {
			return err
		}
		if flags < cfg.FlagMinCount || float64(flags)/float64(chat.MemberCount) <= cfg.FlagThreshold {
			return nil
		}
		if members, err = chats.MemberIDs(ctx, chat.ID); err != nil {
			return err
		}
		deleted = true
		return chats.Delete(ctx, chat.ID)
	})
	if err != nil {
		return nil, err
	}

	if deleted {
		metrics.RecordChatDeleted("flagged")
		s.appCtx.Logger.Info("chat deleted after flagging", "chat", req.ChatID)
		s.cards.ScheduleChatActivity(members...)
	}
	return &FlagResult{ChatID: req.ChatID, Deleted: deleted}, nil
}

// EnsureMatchChat returns the direct chat between a and b, creating it with
// a system seed message when absent. Both users then have it unread.
func (s *Service) EnsureMatchChat(ctx context.Context, a, b string) (*db.Chat, error) {
	var chat *db.Chat
	err := s.inChat(ctx, func(tx *gorm.DB) error {
		chats := s.chats.WithTx(tx)
		existing, err := chats.FindDirect(ctx, a, b)
		if err != nil || existing != nil {
			chat = existing
			return err
		}
		key := repository.DirectKey(a, b)
		chat = &db.Chat{
			ID:                    uuid.NewString(),
			ChatType:              db.ChatDirect,
			DirectKey:             &key,
			LastMessageActivityAt: tx.NowFunc(),
			Version:               1,
		}
		if err := chats.Create(ctx, chat, []string{a, b}); err != nil {
			return err
		}
		return s.appendMessage(ctx, tx, chat, systemMessage(nil, MatchSeedText, nil), true)
	})
	if err != nil {
		// a concurrent confirmation may have created it first
		if existing, findErr := s.chats.FindDirect(ctx, a, b); findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	s.cards.ScheduleChatActivity(a, b)
	return chat, nil
}

// GetChat returns a chat with the caller's view counts.
func (s *Service) GetChat(ctx context.Context, callerID, chatID string) (*Chat, error) {
	chat, err := s.memberChat(ctx, s.appCtx.DB, chatID, callerID)
	if err != nil {
		return nil, err
	}
	return s.toChat(ctx, chat, callerID)
}

func (s *Service) toChat(ctx context.Context, chat *db.Chat, viewerID string) (*Chat, error) {
	members, err := s.chats.MemberIDs(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	unviewed, err := s.chats.UnviewedCount(ctx, chat.ID, viewerID)
	if err != nil {
		return nil, err
	}
	return &Chat{
		ChatID:                chat.ID,
		ChatType:              chat.ChatType,
		Name:                  chat.Name,
		CreatedByUserID:       chat.CreatedByUserID,
		MemberIDs:             members,
		MessagesCount:         chat.MessagesCount,
		MessagesViewedCount:   chat.MessagesCount - unviewed,
		MessagesUnviewedCount: unviewed,
		LastMessageActivityAt: chat.LastMessageActivityAt,
	}, nil
}

// ListChats returns the caller's chats, most recent message first.
func (s *Service) ListChats(ctx context.Context, callerID string, req *ListRequest) (*ChatList, error) {
	chats, next, err := s.chats.ListForUser(ctx, callerID, req.PaginationToken, pagination.Limit(req.Limit, 20, 100))
	if err != nil {
		return nil, svcErr.Validation("%s", err.Error())
	}
	out := &ChatList{Chats: make([]Chat, 0, len(chats)), NextPaginationToken: next}
	for i := range chats {
		c, err := s.toChat(ctx, &chats[i], callerID)
		if err != nil {
			return nil, err
		}
		out.Chats = append(out.Chats, *c)
	}
	return out, nil
}

// ListMessages returns a chat's visible messages in order, each flagged
// viewed or not for the caller.
func (s *Service) ListMessages(ctx context.Context, callerID string, req *ListRequest) (*MessageList, error) {
	if err := s.validate(&ChatRequest{ChatID: req.ChatID}); err != nil {
		return nil, err
	}
	if _, err := s.memberChat(ctx, s.appCtx.DB, req.ChatID, callerID); err != nil {
		return nil, err
	}
	msgs, next, err := s.chats.ListMessages(ctx, req.ChatID, req.PaginationToken, pagination.Limit(req.Limit, 50, 200))
	if err != nil {
		return nil, svcErr.Validation("%s", err.Error())
	}
	var lastSeq int64
	if v, err := s.chats.View(ctx, req.ChatID, callerID); err != nil {
		return nil, err
	} else if v != nil {
		lastSeq = v.LastSeq
	}
	out := &MessageList{Messages: make([]Message, 0, len(msgs)), NextPaginationToken: next}
	for i := range msgs {
		out.Messages = append(out.Messages, toMessage(&msgs[i], callerID, lastSeq))
	}
	return out, nil
}

// ChatsWithUnviewedMessagesCount counts the caller's chats with unviewed
// messages.
func (s *Service) ChatsWithUnviewedMessagesCount(ctx context.Context, callerID string, _ *struct{}) (*UnviewedCount, error) {
	n, err := s.chats.CountChatsWithUnviewed(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return &UnviewedCount{Count: n}, nil
}
