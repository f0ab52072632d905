package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/utils/pagination"
)

// CardRepository stores notification cards. Writes are conditional on
// Version so concurrent reconcilers never lose an update.
type CardRepository struct {
	db *gorm.DB
}

func NewCardRepository(database *gorm.DB) *CardRepository {
	return &CardRepository{db: database}
}

func (r *CardRepository) WithTx(tx *gorm.DB) *CardRepository {
	return &CardRepository{db: tx}
}

// Get returns the card or nil when absent.
func (r *CardRepository) Get(ctx context.Context, id string) (*db.Card, error) {
	var c db.Card
	ok, err := found(r.db.WithContext(ctx).Take(&c, "id = ?", id).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

// Create inserts card unless its id is taken. Returns false on conflict.
func (r *CardRepository) Create(ctx context.Context, card *db.Card) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(card)
	return res.RowsAffected > 0, res.Error
}

// UpdateIfVersion rewrites the display fields of card if the stored version
// still equals version. Seq is never touched.
func (r *CardRepository) UpdateIfVersion(ctx context.Context, card *db.Card, version int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db.Card{}).
		Where("id = ? AND version = ?", card.ID, version).
		Updates(map[string]any{
			"title":     card.Title,
			"sub_title": card.SubTitle,
			"action":    card.Action,
			"thumbnail": card.Thumbnail,
			"post_id":   card.PostID,
			"version":   version + 1,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		card.Version = version + 1
	}
	return res.RowsAffected > 0, nil
}

// DeleteIfVersion removes the card if the stored version equals version.
func (r *CardRepository) DeleteIfVersion(ctx context.Context, id string, version int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND version = ?", id, version).
		Delete(&db.Card{})
	return res.RowsAffected > 0, res.Error
}

// List returns a user's cards, newest sequence first.
func (r *CardRepository) List(
	ctx context.Context,
	userID string,
	paginationToken *string,
	limit int,
) ([]db.Card, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq DESC").
		Limit(limit + 1)
	if !cursor.Empty() {
		query = query.Where("seq < ?", cursor.Position)
	}

	var cards []db.Card
	if err := query.Find(&cards).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(cards) > limit {
		last := cards[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{ID: last.ID, Position: last.Seq})
		nextToken = &token
		cards = cards[:limit]
	}
	return cards, nextToken, nil
}

// ByPost returns the user's cards tied to postID.
func (r *CardRepository) ByPost(ctx context.Context, userID, postID string) ([]db.Card, error) {
	var cards []db.Card
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Find(&cards).Error
	return cards, err
}

// DeleteAllFor removes every card owned by userID and returns them.
func (r *CardRepository) DeleteAllFor(ctx context.Context, userID string) ([]db.Card, error) {
	var cards []db.Card
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&cards).Error; err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, nil
	}
	return cards, r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&db.Card{}).Error
}
