package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-social/internal/db"
)

// UserRepository covers users and their social edges: follows, blocks and
// contact interest.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// Get returns the user or nil when absent.
func (r *UserRepository) Get(ctx context.Context, id string) (*db.User, error) {
	var u db.User
	ok, err := found(r.db.WithContext(ctx).Take(&u, "id = ?", id).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

// GetMany returns the users with the given ids keyed by id.
func (r *UserRepository) GetMany(ctx context.Context, ids []string) (map[string]*db.User, error) {
	out := make(map[string]*db.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []db.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (r *UserRepository) Create(ctx context.Context, u *db.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

// Update applies column updates to the user.
func (r *UserRepository) Update(ctx context.Context, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Updates(updates).Error
}

// Increment adds delta to a counter column.
func (r *UserRepository) Increment(ctx context.Context, id, column string, delta int64) error {
	return r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
}

// IDsByUsername resolves usernames to ids. When within is non-empty only
// those user ids are considered.
func (r *UserRepository) IDsByUsername(ctx context.Context, usernames, within []string) (map[string]string, error) {
	out := map[string]string{}
	if len(usernames) == 0 {
		return out, nil
	}
	q := r.db.WithContext(ctx).Where("username IN ?", usernames)
	if len(within) > 0 {
		q = q.Where("id IN ?", within)
	}
	var users []db.User
	if err := q.Select("id", "username").Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.Username] = u.ID
	}
	return out, nil
}

// ByContacts returns users whose email or phone is in contacts.
func (r *UserRepository) ByContacts(ctx context.Context, contacts []string) ([]db.User, error) {
	var users []db.User
	err := r.db.WithContext(ctx).
		Where("email IN ? OR phone IN ?", contacts, contacts).
		Order("username ASC").
		Find(&users).Error
	return users, err
}

// GeoBox is a lat/lng bounding box. Lng bounds are optional: a box that
// wraps the antimeridian or reaches a pole filters on latitude only.
type GeoBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng *float64
}

// DatingCandidates returns ENABLED users other than u whose gender is one of
// genders and whose birth date and height fall inside the bounds and, when
// box is set, whose location falls inside it. The box is a coarse prefilter;
// exact distance and symmetric criteria are checked by the caller.
func (r *UserRepository) DatingCandidates(
	ctx context.Context,
	userID string,
	genders []string,
	bornAfter, bornBefore time.Time,
	heightMin, heightMax int,
	box *GeoBox,
) ([]db.User, error) {
	var users []db.User
	q := r.db.WithContext(ctx).
		Where("dating_status = ? AND id <> ? AND status = ?", db.DatingEnabled, userID, db.UserStatusActive).
		Where("gender IN ?", genders).
		Where("date_of_birth > ? AND date_of_birth <= ?", bornAfter, bornBefore).
		Where("height BETWEEN ? AND ?", heightMin, heightMax)
	if box != nil {
		q = q.Where("location_lat BETWEEN ? AND ?", box.MinLat, box.MaxLat)
		if box.MinLng != nil && box.MaxLng != nil {
			q = q.Where("location_lng BETWEEN ? AND ?", *box.MinLng, *box.MaxLng)
		}
	}
	err := q.Where(`NOT EXISTS (
			SELECT 1 FROM blocks b
			WHERE (b.blocker_id = ? AND b.blocked_id = users.id)
			   OR (b.blocker_id = users.id AND b.blocked_id = ?)
		)`, userID, userID).
		Find(&users).Error
	return users, err
}

// Follow returns the follower→followed edge or nil.
func (r *UserRepository) Follow(ctx context.Context, followerID, followedID string) (*db.Follow, error) {
	var f db.Follow
	ok, err := found(r.db.WithContext(ctx).Take(&f, "follower_id = ? AND followed_id = ?", followerID, followedID).Error)
	if err != nil || !ok {
		return nil, err
	}
	return &f, nil
}

// SetFollow upserts the follower→followed edge with status.
func (r *UserRepository) SetFollow(ctx context.Context, followerID, followedID, status string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "follower_id"}, {Name: "followed_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
		}).
		Create(&db.Follow{FollowerID: followerID, FollowedID: followedID, Status: status}).Error
}

// DeleteFollow removes the edge. Returns false if none existed.
func (r *UserRepository) DeleteFollow(ctx context.Context, followerID, followedID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&db.Follow{})
	return res.RowsAffected > 0, res.Error
}

// DeleteFollowsOf removes every edge touching userID and returns the ids of
// users who had pending requests from userID.
func (r *UserRepository) DeleteFollowsOf(ctx context.Context, userID string) ([]string, error) {
	var requested []string
	if err := r.db.WithContext(ctx).Model(&db.Follow{}).
		Where("follower_id = ? AND status = ?", userID, db.FollowRequested).
		Pluck("followed_id", &requested).Error; err != nil {
		return nil, err
	}
	err := r.db.WithContext(ctx).
		Where("follower_id = ? OR followed_id = ?", userID, userID).
		Delete(&db.Follow{}).Error
	return requested, err
}

// CountFollowRequests counts pending requests addressed to userID.
func (r *UserRepository) CountFollowRequests(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Follow{}).
		Where("followed_id = ? AND status = ?", userID, db.FollowRequested).
		Count(&n).Error
	return n, err
}

// IsFollowing reports whether follower actively follows followed.
func (r *UserRepository) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Follow{}).
		Where("follower_id = ? AND followed_id = ? AND status = ?", followerID, followedID, db.FollowFollowing).
		Count(&n).Error
	return n > 0, err
}

// MutualWithAll reports whether userID and every one of others follow each
// other both ways.
func (r *UserRepository) MutualWithAll(ctx context.Context, userID string, others []string) (bool, error) {
	if len(others) == 0 {
		return true, nil
	}
	var n int64
	err := r.db.WithContext(ctx).
		Table("follows f1").
		Joins("JOIN follows f2 ON f2.follower_id = f1.followed_id AND f2.followed_id = f1.follower_id AND f2.status = ?", db.FollowFollowing).
		Where("f1.follower_id = ? AND f1.followed_id IN ? AND f1.status = ?", userID, others, db.FollowFollowing).
		Count(&n).Error
	return n == int64(len(others)), err
}

// Block inserts the blocker→blocked edge.
func (r *UserRepository) Block(ctx context.Context, blockerID, blockedID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.Block{BlockerID: blockerID, BlockedID: blockedID}).Error
}

func (r *UserRepository) Unblock(ctx context.Context, blockerID, blockedID string) error {
	return r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&db.Block{}).Error
}

// EitherBlocks reports whether a blocks b or b blocks a.
func (r *UserRepository) EitherBlocks(ctx context.Context, a, b string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// RecordContactInterest remembers that userID looked for contacts.
func (r *UserRepository) RecordContactInterest(ctx context.Context, userID string, contacts []string) error {
	if len(contacts) == 0 {
		return nil
	}
	rows := make([]db.ContactInterest, 0, len(contacts))
	for _, c := range contacts {
		rows = append(rows, db.ContactInterest{UserID: userID, Contact: c})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// InterestedIn returns ids of users who looked for any of contacts.
func (r *UserRepository) InterestedIn(ctx context.Context, contacts []string) ([]string, error) {
	var ids []string
	if len(contacts) == 0 {
		return ids, nil
	}
	err := r.db.WithContext(ctx).Model(&db.ContactInterest{}).
		Distinct("user_id").
		Where("contact IN ?", contacts).
		Pluck("user_id", &ids).Error
	return ids, err
}

// AcceptAllRequests turns every pending request to userID into FOLLOWING
// and returns the followers affected.
func (r *UserRepository) AcceptAllRequests(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&db.Follow{}).
		Where("followed_id = ? AND status = ?", userID, db.FollowRequested).
		Pluck("follower_id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}
	err := r.db.WithContext(ctx).Model(&db.Follow{}).
		Where("followed_id = ? AND status = ?", userID, db.FollowRequested).
		Update("status", db.FollowFollowing).Error
	return ids, err
}
