// Package notify carries per-user subscription events over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oggyb/muzz-social/internal/cache"
	"github.com/oggyb/muzz-social/internal/db"
)

// Event types pushed to subscribers.
const (
	EventAdded   = "ADDED"
	EventEdited  = "EDITED"
	EventDeleted = "DELETED"

	EventChatsUnviewedCountChanged = "USER_CHATS_WITH_UNVIEWED_MESSAGES_COUNT_CHANGED"
)

// CardPayload is the card as delivered in a notification. Thumbnail is
// always nil on the wire.
type CardPayload struct {
	CardID    string  `json:"cardId"`
	Type      string  `json:"cardType"`
	Title     string  `json:"title"`
	SubTitle  *string `json:"subTitle"`
	Action    string  `json:"action"`
	Thumbnail *string `json:"thumbnail"`
}

// Notification is one event on a user's channel.
type Notification struct {
	UserID string       `json:"userId"`
	Type   string       `json:"type"`
	Card   *CardPayload `json:"card,omitempty"`

	UserChatsWithUnviewedMessagesCount *int64 `json:"userChatsWithUnviewedMessagesCount,omitempty"`
}

// Publisher is the outbound side used by the card engine.
type Publisher interface {
	PublishCard(ctx context.Context, userID, eventType string, card *db.Card) error
	PublishChatsUnviewedCount(ctx context.Context, userID string, count int64) error
}

// RedisPublisher publishes JSON notifications on notifications:{userID}.
type RedisPublisher struct {
	cache *cache.RedisCache
}

func NewRedisPublisher(c *cache.RedisCache) *RedisPublisher {
	return &RedisPublisher{cache: c}
}

func (p *RedisPublisher) PublishCard(ctx context.Context, userID, eventType string, card *db.Card) error {
	return p.publish(ctx, Notification{
		UserID: userID,
		Type:   eventType,
		Card: &CardPayload{
			CardID:   card.ID,
			Type:     card.Type,
			Title:    card.Title,
			SubTitle: card.SubTitle,
			Action:   card.Action,
		},
	})
}

func (p *RedisPublisher) PublishChatsUnviewedCount(ctx context.Context, userID string, count int64) error {
	return p.publish(ctx, Notification{
		UserID:                             userID,
		Type:                               EventChatsUnviewedCountChanged,
		UserChatsWithUnviewedMessagesCount: &count,
	})
}

func (p *RedisPublisher) publish(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return p.cache.Publish(ctx, n.UserID, b)
}

// Subscriber opens per-user notification streams.
type Subscriber struct {
	cache  *cache.RedisCache
	logger *slog.Logger
}

func NewSubscriber(c *cache.RedisCache, logger *slog.Logger) *Subscriber {
	return &Subscriber{cache: c, logger: logger}
}

// Subscribe returns a channel of the user's notifications in publish order.
// The channel is closed when ctx is done or the returned stop func is called.
func (s *Subscriber) Subscribe(ctx context.Context, userID string) (<-chan Notification, func(), error) {
	ps, err := s.cache.Subscribe(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", userID, err)
	}

	out := make(chan Notification, 64)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		defer ps.Close()
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					s.logger.Warn("dropping malformed notification", "user", userID, "err", err)
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, cancel, nil
}

// Recorder is an in-memory Publisher that keeps every notification in
// order. It backs local tooling and tests where Redis fan-out is not needed.
type Recorder struct {
	mu     sync.Mutex
	events []Notification
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) PublishCard(_ context.Context, userID, eventType string, card *db.Card) error {
	r.append(Notification{
		UserID: userID,
		Type:   eventType,
		Card: &CardPayload{
			CardID:   card.ID,
			Type:     card.Type,
			Title:    card.Title,
			SubTitle: card.SubTitle,
			Action:   card.Action,
		},
	})
	return nil
}

func (r *Recorder) PublishChatsUnviewedCount(_ context.Context, userID string, count int64) error {
	r.append(Notification{UserID: userID, Type: EventChatsUnviewedCountChanged, UserChatsWithUnviewedMessagesCount: &count})
	return nil
}

func (r *Recorder) append(n Notification) {
	r.mu.Lock()
	r.events = append(r.events, n)
	r.mu.Unlock()
}

// For returns the notifications recorded for userID, oldest first.
func (r *Recorder) For(userID string) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.events {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
