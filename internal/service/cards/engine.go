// Package cards derives and stores per-user notification cards.
//
// Every card is owned by one user and identified by a deterministic id:
// "{userId}:{TYPE}" for singleton types and "{userId}:{TYPE}:{relatedId}" for
// per-relation types. Cards are created, edited in place and deleted by
// Upsert, which compares a freshly rendered payload against the stored one
// and publishes ADDED, EDITED or DELETED accordingly.
package cards

import (
	"context"
	"fmt"

	"github.com/oggyb/muzz-social/internal/app"
	"github.com/oggyb/muzz-social/internal/db"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
	"github.com/oggyb/muzz-social/internal/metrics"
	"github.com/oggyb/muzz-social/internal/notify"
	"github.com/oggyb/muzz-social/internal/repository"
)

const maxAttempts = 5

// Key identifies a card within a user's set. RelatedID is empty for
// singleton types.
type Key struct {
	Type      string
	RelatedID string
}

// CardID builds the deterministic id of the user's card for key.
func CardID(userID string, key Key) string {
	if key.RelatedID == "" {
		return userID + ":" + key.Type
	}
	return userID + ":" + key.Type + ":" + key.RelatedID
}

// Render is the display payload of a card.
type Render struct {
	Title     string
	SubTitle  *string
	Action    string
	Thumbnail *string
	PostID    *string
}

// RenderFunc computes the current payload from stored state. It returns
// nil when the card's condition does not hold.
type RenderFunc func(ctx context.Context) (*Render, error)

// Engine owns the card lifecycle.
type Engine struct {
	appCtx *app.AppContext
	repo   *repository.CardRepository
}

func NewEngine(appCtx *app.AppContext) *Engine {
	return &Engine{appCtx: appCtx, repo: repository.NewCardRepository(appCtx.DB)}
}

// Upsert reconciles the user's card for key with render.
//
// Behavior:
//   - condition false and no card: no-op.
//   - condition false and card present: delete, publish DELETED.
//   - condition true and no card: create with a fresh sequence, publish ADDED.
//   - rendered fields differ: edit in place (same id, same sequence), publish EDITED.
//   - rendered fields equal: no-op.
//
// Every write is conditional; a lost race re-renders and retries.
// Returns the published event type, or "" for a no-op.
func (e *Engine) Upsert(ctx context.Context, userID string, key Key, render RenderFunc) (string, error) {
	id := CardID(userID, key)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		existing, err := e.repo.Get(ctx, id)
		if err != nil {
			return "", err
		}
		// rendered after the read so a retry sees state at least as new
		// as the version it writes against
		r, err := render(ctx)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", id, err)
		}

		switch {
		case r == nil && existing == nil:
			return "", nil

		case r == nil:
			ok, err := e.repo.DeleteIfVersion(ctx, id, existing.Version)
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
			e.publish(ctx, userID, notify.EventDeleted, existing)
			return notify.EventDeleted, nil

		case existing == nil:
			seq, err := e.appCtx.RedisCache.NextCardSeq(ctx)
			if err != nil {
				return "", fmt.Errorf("allocate card seq: %w", err)
			}
			card := &db.Card{ID: id, UserID: userID, Type: key.Type, Seq: seq, Version: 1}
			if key.RelatedID != "" {
				related := key.RelatedID
				card.RelatedID = &related
			}
			apply(card, r)
			ok, err := e.repo.Create(ctx, card)
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
			e.publish(ctx, userID, notify.EventAdded, card)
			return notify.EventAdded, nil

		case same(existing, r):
			return "", nil

		default:
			card := *existing
			apply(&card, r)
			ok, err := e.repo.UpdateIfVersion(ctx, &card, existing.Version)
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
			e.publish(ctx, userID, notify.EventEdited, &card)
			return notify.EventEdited, nil
		}
	}
	return "", fmt.Errorf("card %s: too many concurrent writers", id)
}

// Delete dismisses a card on behalf of its owner.
func (e *Engine) Delete(ctx context.Context, callerID, cardID string) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		card, err := e.Get(ctx, callerID, cardID)
		if err != nil {
			return err
		}
		ok, err := e.repo.DeleteIfVersion(ctx, card.ID, card.Version)
		if err != nil {
			return err
		}
		if ok {
			e.publish(ctx, card.UserID, notify.EventDeleted, card)
			return nil
		}
	}
	return fmt.Errorf("card %s: too many concurrent writers", cardID)
}

// Get returns the caller's card.
func (e *Engine) Get(ctx context.Context, callerID, cardID string) (*db.Card, error) {
	card, err := e.repo.Get(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, svcErr.NotFound("Card not found")
	}
	if card.UserID != callerID {
		return nil, svcErr.Permission("Cannot access a card owned by another user")
	}
	return card, nil
}

// List returns the user's cards, newest first. Edits never reorder.
func (e *Engine) List(ctx context.Context, userID string, token *string, limit int) ([]db.Card, *string, error) {
	return e.repo.List(ctx, userID, token, limit)
}

// DeleteAll removes every card of userID, publishing DELETED for each.
func (e *Engine) DeleteAll(ctx context.Context, userID string) error {
	cards, err := e.repo.DeleteAllFor(ctx, userID)
	if err != nil {
		return err
	}
	for i := range cards {
		e.publish(ctx, userID, notify.EventDeleted, &cards[i])
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, userID, event string, card *db.Card) {
	metrics.RecordCardEvent(event, card.Type)
	if err := e.appCtx.Publisher.PublishCard(ctx, userID, event, card); err != nil {
		e.appCtx.Logger.Warn("publish card event failed", "user", userID, "card", card.ID, "event", event, "err", err)
	}
}

func apply(card *db.Card, r *Render) {
	card.Title = r.Title
	card.SubTitle = r.SubTitle
	card.Action = r.Action
	card.Thumbnail = r.Thumbnail
	card.PostID = r.PostID
}

func same(card *db.Card, r *Render) bool {
	return card.Title == r.Title &&
		card.Action == r.Action &&
		eq(card.SubTitle, r.SubTitle) &&
		eq(card.Thumbnail, r.Thumbnail) &&
		eq(card.PostID, r.PostID)
}

func eq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
