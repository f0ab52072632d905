package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/utils/pagination"
)

// MatchRepository provides data access for directional match records.
// A pair of users is two rows, one per direction.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// Status returns userID's directional status toward otherID, or NONE.
func (r *MatchRepository) Status(ctx context.Context, userID, otherID string) (string, error) {
	var d db.MatchDecision
	ok, err := found(r.db.WithContext(ctx).
		Where("user_id = ? AND other_user_id = ?", userID, otherID).
		Take(&d).Error)
	if err != nil || !ok {
		return db.MatchNone, err
	}
	return d.Status, nil
}

// Pair returns both directional statuses of the pair (a→b, b→a).
func (r *MatchRepository) Pair(ctx context.Context, a, b string) (ab, ba string, err error) {
	if ab, err = r.Status(ctx, a, b); err != nil {
		return "", "", err
	}
	ba, err = r.Status(ctx, b, a)
	return ab, ba, err
}

// LockPair reads both directions of the pair with row locks held until the
// surrounding transaction ends, so concurrent decisions on the same pair
// serialize. Rows are locked in key order.
func (r *MatchRepository) LockPair(ctx context.Context, a, b string) (ab, ba string, err error) {
	var rows []db.MatchDecision
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("(user_id = ? AND other_user_id = ?) OR (user_id = ? AND other_user_id = ?)", a, b, b, a).
		Order("user_id").
		Find(&rows).Error
	if err != nil {
		return "", "", err
	}
	ab, ba = db.MatchNone, db.MatchNone
	for _, row := range rows {
		if row.UserID == a {
			ab = row.Status
		} else {
			ba = row.Status
		}
	}
	return ab, ba, nil
}

// CreatePotential inserts POTENTIAL in every direction that has no record.
//
// Behavior:
//   - Existing directions (APPROVED, REJECTED, ...) are left untouched.
//   - Returns true if at least one row was inserted.
func (r *MatchRepository) CreatePotential(ctx context.Context, a, b string) (bool, error) {
	rows := []db.MatchDecision{
		{UserID: a, OtherUserID: b, Status: db.MatchPotential},
		{UserID: b, OtherUserID: a, Status: db.MatchPotential},
	}
	var created bool
	for i := range rows {
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&rows[i])
		if res.Error != nil {
			return false, res.Error
		}
		created = created || res.RowsAffected > 0
	}
	return created, nil
}

// Transition moves userID→otherID from one status to another only if the
// row still holds from. Returns false when another writer got there first.
func (r *MatchRepository) Transition(ctx context.Context, userID, otherID, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db.MatchDecision{}).
		Where("user_id = ? AND other_user_id = ? AND status = ?", userID, otherID, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

// DeletePotential drops every still-undecided direction involving userID.
func (r *MatchRepository) DeletePotential(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).
		Where("(user_id = ? OR other_user_id = ?) AND status = ?", userID, userID, db.MatchPotential).
		Delete(&db.MatchDecision{}).Error
}

// DeleteAll drops every record involving userID.
func (r *MatchRepository) DeleteAll(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? OR other_user_id = ?", userID, userID).
		Delete(&db.MatchDecision{}).Error
}

// List returns the caller's match records filtered by overall status.
//
// Behavior:
//   - CONFIRMED: caller APPROVED and other side APPROVED.
//   - APPROVED: caller APPROVED, other side not (yet) APPROVED.
//   - POTENTIAL / REJECTED: caller's own direction.
//   - Ordered by updated_at DESC, other_user_id DESC with cursor pagination.
func (r *MatchRepository) List(
	ctx context.Context,
	userID, status string,
	paginationToken *string,
	limit int,
) ([]db.MatchDecision, *string, error) {
	var decisions []db.MatchDecision

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	confirmed := r.db.
		Table("match_decisions m2").
		Select("1").
		Where("m2.user_id = m.other_user_id AND m2.other_user_id = m.user_id AND m2.status = ?", db.MatchApproved)

	query := r.db.WithContext(ctx).
		Table("match_decisions m").
		Where("m.user_id = ?", userID).
		Order("m.updated_at DESC, m.other_user_id DESC").
		Limit(limit + 1)

	switch status {
	case db.MatchConfirmed:
		query = query.Where("m.status = ? AND EXISTS (?)", db.MatchApproved, confirmed)
	case db.MatchApproved:
		query = query.Where("m.status = ? AND NOT EXISTS (?)", db.MatchApproved, confirmed)
	default:
		query = query.Where("m.status = ?", status)
	}

	// apply cursor
	if !cursor.Empty() {
		ts := time.UnixMilli(cursor.Position).UTC()
		query = query.Where(
			"(m.updated_at < ? OR (m.updated_at = ? AND m.other_user_id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&decisions).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(decisions) > limit {
		last := decisions[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:       last.OtherUserID,
			Position: last.UpdatedAt.UnixMilli(),
		})
		nextToken = &token
		decisions = decisions[:limit]
	}

	return decisions, nextToken, nil
}

// SwipedRight returns ids of everyone userID approved, confirmed or not.
func (r *MatchRepository) SwipedRight(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&db.MatchDecision{}).
		Where("user_id = ? AND status = ?", userID, db.MatchApproved).
		Order("updated_at DESC").
		Pluck("other_user_id", &ids).Error
	return ids, err
}
