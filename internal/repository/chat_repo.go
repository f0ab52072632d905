package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/utils/pagination"
)

// ErrVersionConflict is returned when a conditional chat write lost a race.
var ErrVersionConflict = errors.New("chat version conflict")

// ChatRepository covers the chat aggregate: chats, members, messages,
// flags and per-viewer watermarks.
type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(database *gorm.DB) *ChatRepository {
	return &ChatRepository{db: database}
}

func (r *ChatRepository) WithTx(tx *gorm.DB) *ChatRepository {
	return &ChatRepository{db: tx}
}

// DirectKey is the unordered-pair key of a direct chat.
func DirectKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// Get returns the chat or nil when absent.
func (r *ChatRepository) Get(ctx context.Context, id string) (*db.Chat, error) {
	var c db.Chat
	ok, err := found(r.db.WithContext(ctx).Take(&c, "id = ?", id).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

// FindDirect returns the direct chat between a and b, or nil.
func (r *ChatRepository) FindDirect(ctx context.Context, a, b string) (*db.Chat, error) {
	var c db.Chat
	ok, err := found(r.db.WithContext(ctx).Take(&c, "direct_key = ?", DirectKey(a, b)).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

// Create inserts a chat with its members.
func (r *ChatRepository) Create(ctx context.Context, chat *db.Chat, memberIDs []string) error {
	chat.MemberCount = len(memberIDs)
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		return err
	}
	return r.AddMembers(ctx, chat.ID, memberIDs)
}

// AddMembers inserts membership rows, ignoring existing ones.
func (r *ChatRepository) AddMembers(ctx context.Context, chatID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]db.ChatMember, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, db.ChatMember{ChatID: chatID, UserID: id})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// RemoveMember deletes a membership row and the member's watermark.
func (r *ChatRepository) RemoveMember(ctx context.Context, chatID, userID string) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("chat_id = ? AND user_id = ?", chatID, userID).Delete(&db.ChatView{}).Error; err != nil {
		return err
	}
	return tx.Where("chat_id = ? AND user_id = ?", chatID, userID).Delete(&db.ChatMember{}).Error
}

func (r *ChatRepository) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&n).Error
	return n > 0, err
}

// MemberIDs returns the chat's members in join order.
func (r *ChatRepository) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&db.ChatMember{}).
		Where("chat_id = ?", chatID).
		Order("joined_at ASC, user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// ChatIDsFor returns every chat userID belongs to.
func (r *ChatRepository) ChatIDsFor(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&db.ChatMember{}).
		Where("user_id = ?", userID).
		Pluck("chat_id", &ids).Error
	return ids, err
}

// UpdateIfVersion applies updates to the chat only if its version is still
// version, bumping it. Returns ErrVersionConflict otherwise.
func (r *ChatRepository) UpdateIfVersion(ctx context.Context, chat *db.Chat, updates map[string]any) error {
	updates["version"] = chat.Version + 1
	res := r.db.WithContext(ctx).Model(&db.Chat{}).
		Where("id = ? AND version = ?", chat.ID, chat.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	chat.Version++
	return nil
}

// Delete removes a chat and everything hanging off it.
func (r *ChatRepository) Delete(ctx context.Context, chatID string) error {
	tx := r.db.WithContext(ctx)
	for _, model := range []any{&db.ChatView{}, &db.ChatFlag{}, &db.ChatMember{}} {
		if err := tx.Where("chat_id = ?", chatID).Delete(model).Error; err != nil {
			return err
		}
	}
	if err := tx.Unscoped().Where("chat_id = ?", chatID).Delete(&db.Message{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", chatID).Delete(&db.Chat{}).Error
}

// ListForUser returns userID's chats, most recent message activity first.
func (r *ChatRepository) ListForUser(
	ctx context.Context,
	userID string,
	paginationToken *string,
	limit int,
) ([]db.Chat, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Table("chats c").
		Select("c.*").
		Joins("JOIN chat_members cm ON cm.chat_id = c.id AND cm.user_id = ?", userID).
		Order("c.activity_seq DESC, c.id DESC").
		Limit(limit + 1)
	if !cursor.Empty() {
		query = query.Where(
			"(c.activity_seq < ? OR (c.activity_seq = ? AND c.id < ?))",
			cursor.Position, cursor.Position, cursor.ID,
		)
	}

	var chats []db.Chat
	if err := query.Find(&chats).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(chats) > limit {
		last := chats[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{ID: last.ID, Position: last.ActivitySeq})
		nextToken = &token
		chats = chats[:limit]
	}
	return chats, nextToken, nil
}

// Flag records userID as a flagger. Returns false if already flagged.
func (r *ChatRepository) Flag(ctx context.Context, chatID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.ChatFlag{ChatID: chatID, UserID: userID})
	return res.RowsAffected > 0, res.Error
}

// CreateMessage inserts a message.
func (r *ChatRepository) CreateMessage(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// GetMessage returns a visible message or nil.
func (r *ChatRepository) GetMessage(ctx context.Context, id string) (*db.Message, error) {
	var m db.Message
	ok, err := found(r.db.WithContext(ctx).Take(&m, "id = ?", id).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

// GetMessageUnscoped returns a message even if it was soft-deleted.
func (r *ChatRepository) GetMessageUnscoped(ctx context.Context, id string) (*db.Message, error) {
	var m db.Message
	ok, err := found(r.db.WithContext(ctx).Unscoped().Take(&m, "id = ?", id).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

// SaveMessageText rewrites text and tags of a message.
func (r *ChatRepository) SaveMessageText(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Model(&db.Message{}).
		Where("id = ?", m.ID).
		Updates(map[string]any{
			"text":              m.Text,
			"text_tagged_users": m.TextTaggedUsers,
			"last_edited_at":    m.LastEditedAt,
		}).Error
}

// HideMessage soft-deletes a message.
func (r *ChatRepository) HideMessage(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&db.Message{}).Error
}

// ClearAuthor detaches userID from their messages in chatID, keeping text.
func (r *ChatRepository) ClearAuthor(ctx context.Context, chatID, userID string) error {
	return r.db.WithContext(ctx).Unscoped().Model(&db.Message{}).
		Where("chat_id = ? AND author_user_id = ?", chatID, userID).
		Update("author_user_id", nil).Error
}

// ListMessages returns visible messages in sequence order.
func (r *ChatRepository) ListMessages(
	ctx context.Context,
	chatID string,
	paginationToken *string,
	limit int,
) ([]db.Message, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("seq ASC").
		Limit(limit + 1)
	if !cursor.Empty() {
		query = query.Where("seq > ?", cursor.Position)
	}

	var msgs []db.Message
	if err := query.Find(&msgs).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(msgs) > limit {
		last := msgs[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{ID: last.ID, Position: last.Seq})
		nextToken = &token
		msgs = msgs[:limit]
	}
	return msgs, nextToken, nil
}

// View returns viewerID's watermark in chatID, or nil.
func (r *ChatRepository) View(ctx context.Context, chatID, viewerID string) (*db.ChatView, error) {
	var v db.ChatView
	ok, err := found(r.db.WithContext(ctx).Take(&v, "chat_id = ? AND user_id = ?", chatID, viewerID).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// SaveView raises viewerID's watermark to uptoSeq (never lowers it).
func (r *ChatRepository) SaveView(ctx context.Context, chatID, viewerID string, uptoSeq int64, at time.Time) error {
	v, err := r.View(ctx, chatID, viewerID)
	if err != nil {
		return err
	}
	if v == nil {
		return r.db.WithContext(ctx).Create(&db.ChatView{
			ChatID:       chatID,
			UserID:       viewerID,
			LastSeq:      uptoSeq,
			ViewCount:    1,
			LastViewedAt: at,
		}).Error
	}
	updates := map[string]any{
		"view_count":     gorm.Expr("view_count + 1"),
		"last_viewed_at": at,
	}
	if uptoSeq > v.LastSeq {
		updates["last_seq"] = uptoSeq
	}
	return r.db.WithContext(ctx).Model(&db.ChatView{}).
		Where("chat_id = ? AND user_id = ?", chatID, viewerID).
		Updates(updates).Error
}

// unviewed scopes visible messages in chat that viewerID has not seen.
// Authors and system-message actors have implicitly seen their own messages.
func unviewed(q *gorm.DB, viewerID string) *gorm.DB {
	return q.
		Where("m.deleted_at IS NULL").
		Where("(m.author_user_id IS NULL OR m.author_user_id <> ?)", viewerID).
		Where("(m.actor_user_id IS NULL OR m.actor_user_id <> ?)", viewerID)
}

// UnviewedCount counts messages of chatID viewerID has not seen.
func (r *ChatRepository) UnviewedCount(ctx context.Context, chatID, viewerID string) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).
		Table("messages m").
		Joins("LEFT JOIN chat_views cv ON cv.chat_id = m.chat_id AND cv.user_id = ?", viewerID).
		Where("m.chat_id = ?", chatID).
		Where("m.seq > COALESCE(cv.last_seq, 0)")
	err := unviewed(q, viewerID).Count(&n).Error
	return n, err
}

// CountChatsWithUnviewed counts userID's chats holding at least one message
// userID has not seen.
func (r *ChatRepository) CountChatsWithUnviewed(ctx context.Context, userID string) (int64, error) {
	sub := unviewed(r.db.
		Table("messages m").
		Select("1").
		Joins("LEFT JOIN chat_views cv ON cv.chat_id = m.chat_id AND cv.user_id = ?", userID).
		Where("m.chat_id = cm.chat_id").
		Where("m.seq > COALESCE(cv.last_seq, 0)"), userID)

	var n int64
	err := r.db.WithContext(ctx).
		Table("chat_members cm").
		Where("cm.user_id = ?", userID).
		Where("EXISTS (?)", sub).
		Count(&n).Error
	return n, err
}
