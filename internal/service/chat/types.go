package chat

import (
	"time"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/utils/mentions"
)

type CreateDirectChatRequest struct {
	ChatID    string `json:"chatId" validate:"required,max=64"`
	UserID    string `json:"userId" validate:"required"`
	MessageID string `json:"messageId" validate:"required,max=64"`
	Text      string `json:"text" validate:"required"`
}

type CreateGroupChatRequest struct {
	ChatID    string   `json:"chatId" validate:"required,max=64"`
	Name      *string  `json:"name,omitempty" validate:"omitempty,max=128"`
	MemberIDs []string `json:"memberIds" validate:"max=100,dive,required"`
	MessageID string   `json:"messageId" validate:"required,max=64"`
	Text      string   `json:"text" validate:"required"`
}

type AddToGroupChatRequest struct {
	ChatID    string   `json:"chatId" validate:"required"`
	MemberIDs []string `json:"memberIds" validate:"min=1,max=100,dive,required"`
}

type EditGroupChatNameRequest struct {
	ChatID string `json:"chatId" validate:"required"`
	Name   string `json:"name" validate:"required,max=128"`
}

type ChatRequest struct {
	ChatID string `json:"chatId" validate:"required"`
}

type AddChatMessageRequest struct {
	ChatID    string `json:"chatId" validate:"required"`
	MessageID string `json:"messageId" validate:"required,max=64"`
	Text      string `json:"text" validate:"required"`
}

type EditChatMessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	Text      string `json:"text" validate:"required"`
}

type MessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type ReportChatViewsRequest struct {
	ChatIDs []string `json:"chatIds" validate:"min=1,max=100,dive,required"`
}

type ListRequest struct {
	ChatID          string  `json:"chatId,omitempty"`
	PaginationToken *string `json:"paginationToken,omitempty"`
	Limit           int     `json:"limit,omitempty"`
}

// Chat is a chat as seen by one member.
type Chat struct {
	ChatID                string    `json:"chatId"`
	ChatType              string    `json:"chatType"`
	Name                  *string   `json:"name"`
	CreatedByUserID       *string   `json:"createdByUserId"`
	MemberIDs             []string  `json:"memberIds"`
	MessagesCount         int64     `json:"messagesCount"`
	MessagesViewedCount   int64     `json:"messagesViewedCount"`
	MessagesUnviewedCount int64     `json:"messagesUnviewedCount"`
	LastMessageActivityAt time.Time `json:"lastMessageActivityAt"`
}

// Message is a chat message as seen by one member.
type Message struct {
	MessageID       string                `json:"messageId"`
	ChatID          string                `json:"chatId"`
	AuthorUserID    *string               `json:"authorUserId"`
	Text            string                `json:"text"`
	TextTaggedUsers []mentions.TaggedUser `json:"textTaggedUsers"`
	IsSystem        bool                  `json:"isSystem"`
	Hidden          bool                  `json:"hidden"`
	Viewed          bool                  `json:"viewed"`
	CreatedAt       time.Time             `json:"createdAt"`
	LastEditedAt    *time.Time            `json:"lastEditedAt"`
}

type ChatList struct {
	Chats               []Chat  `json:"chats"`
	NextPaginationToken *string `json:"nextPaginationToken,omitempty"`
}

type MessageList struct {
	Messages            []Message `json:"messages"`
	NextPaginationToken *string   `json:"nextPaginationToken,omitempty"`
}

type FlagResult struct {
	ChatID  string `json:"chatId"`
	Deleted bool   `json:"deleted"`
}

type UnviewedCount struct {
	Count int64 `json:"userChatsWithUnviewedMessagesCount"`
}

func toMessage(m *db.Message, viewerID string, lastSeq int64) Message {
	return Message{
		MessageID:       m.ID,
		ChatID:          m.ChatID,
		AuthorUserID:    m.AuthorUserID,
		Text:            m.Text,
		TextTaggedUsers: mentions.FromJSON(m.TextTaggedUsers),
		IsSystem:        m.Origin == db.OriginSystem,
		Hidden:          m.DeletedAt.Valid,
		Viewed:          m.Seq <= lastSeq || is(m.AuthorUserID, viewerID) || is(m.ActorUserID, viewerID),
		CreatedAt:       m.CreatedAt,
		LastEditedAt:    m.LastEditedAt,
	}
}

func is(p *string, v string) bool { return p != nil && *p == v }
