package social

import (
	"time"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/utils/mentions"
)

type CreateUserRequest struct {
	Username  string  `json:"username" validate:"required,min=3,max=30,username"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,e164"`
	Anonymous bool    `json:"anonymous,omitempty"`
}

// SetUserDetailsRequest updates only the fields that are set.
type SetUserDetailsRequest struct {
	FullName          *string `json:"fullName,omitempty" validate:"omitempty,max=128"`
	DisplayName       *string `json:"displayName,omitempty" validate:"omitempty,max=128"`
	PhotoPostID       *string `json:"photoPostId,omitempty"`
	PrivacyStatus     *string `json:"privacyStatus,omitempty" validate:"omitempty,oneof=PUBLIC PRIVATE"`
	SubscriptionLevel *string `json:"subscriptionLevel,omitempty" validate:"omitempty,oneof=BASIC DIAMOND"`

	Gender              *string    `json:"gender,omitempty" validate:"omitempty,oneof=MALE FEMALE NON_BINARY"`
	DateOfBirth         *time.Time `json:"dateOfBirth,omitempty"`
	Height              *int       `json:"height,omitempty" validate:"omitempty,min=50,max=300"`
	LocationLat         *float64   `json:"locationLat,omitempty" validate:"omitempty,latitude"`
	LocationLng         *float64   `json:"locationLng,omitempty" validate:"omitempty,longitude"`
	MatchAgeMin         *int       `json:"matchAgeMin,omitempty" validate:"omitempty,min=0,max=150"`
	MatchAgeMax         *int       `json:"matchAgeMax,omitempty" validate:"omitempty,min=0,max=150"`
	MatchHeightMin      *int       `json:"matchHeightMin,omitempty" validate:"omitempty,min=0,max=300"`
	MatchHeightMax      *int       `json:"matchHeightMax,omitempty" validate:"omitempty,min=0,max=300"`
	MatchLocationRadius *int       `json:"matchLocationRadius,omitempty" validate:"omitempty,min=1,max=20000"`
	MatchGenders        []string   `json:"matchGenders,omitempty" validate:"omitempty,dive,oneof=MALE FEMALE NON_BINARY"`
}

type SetUserStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE DISABLED"`
}

type UserRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// User is the public view of an account.
type User struct {
	UserID            string    `json:"userId"`
	Username          string    `json:"username"`
	Status            string    `json:"status"`
	SubscriptionLevel string    `json:"subscriptionLevel"`
	PrivacyStatus     string    `json:"privacyStatus"`
	DatingStatus      string    `json:"datingStatus"`
	FullName          *string   `json:"fullName"`
	DisplayName       *string   `json:"displayName"`
	PhotoPostID       *string   `json:"photoPostId"`
	Gender            *string   `json:"gender"`
	PostViewedByCount int64     `json:"postViewedByCount"`
	ViewedPostsCount  int64     `json:"viewedPostsCount"`
	CreatedAt         time.Time `json:"createdAt"`
}

func toUser(u *db.User) *User {
	return &User{
		UserID:            u.ID,
		Username:          u.Username,
		Status:            u.Status,
		SubscriptionLevel: u.SubscriptionLevel,
		PrivacyStatus:     u.PrivacyStatus,
		DatingStatus:      u.DatingStatus,
		FullName:          u.FullName,
		DisplayName:       u.DisplayName,
		PhotoPostID:       u.PhotoPostID,
		Gender:            u.Gender,
		PostViewedByCount: u.PostViewedByCount,
		ViewedPostsCount:  u.ViewedPostsCount,
		CreatedAt:         u.CreatedAt,
	}
}

// Follow is a follower→followed edge. Status is empty once removed.
type Follow struct {
	FollowerID string `json:"followerId"`
	FollowedID string `json:"followedId"`
	Status     string `json:"status"`
}

type AddPostRequest struct {
	PostID       string  `json:"postId" validate:"required,max=64"`
	ContentHash  string  `json:"contentHash" validate:"max=128"`
	TakenInReal  bool    `json:"takenInReal"`
	ImageURL     *string `json:"imageUrl,omitempty" validate:"omitempty,url"`
	ThumbnailURL *string `json:"thumbnailUrl,omitempty" validate:"omitempty,url"`
}

type PostRequest struct {
	PostID string `json:"postId" validate:"required"`
}

type Post struct {
	PostID         string     `json:"postId"`
	UserID         string     `json:"userId"`
	Status         string     `json:"status"`
	TakenInReal    bool       `json:"takenInReal"`
	ThumbnailURL   *string    `json:"thumbnailUrl"`
	OriginalPostID *string    `json:"originalPostId"`
	ViewedByCount  int64      `json:"viewedByCount"`
	CompletedAt    *time.Time `json:"completedAt"`
}

func toPost(p *db.Post) *Post {
	return &Post{
		PostID:         p.ID,
		UserID:         p.UserID,
		Status:         p.Status,
		TakenInReal:    p.TakenInReal,
		ThumbnailURL:   p.ThumbnailURL,
		OriginalPostID: p.OriginalPostID,
		ViewedByCount:  p.ViewedByCount,
		CompletedAt:    p.CompletedAt,
	}
}

type AddCommentRequest struct {
	CommentID string `json:"commentId" validate:"required,max=64"`
	PostID    string `json:"postId" validate:"required"`
	Text      string `json:"text" validate:"required,max=2000"`
}

type CommentRequest struct {
	CommentID string `json:"commentId" validate:"required"`
}

type Comment struct {
	CommentID       string                `json:"commentId"`
	PostID          string                `json:"postId"`
	UserID          string                `json:"userId"`
	Text            string                `json:"text"`
	TextTaggedUsers []mentions.TaggedUser `json:"textTaggedUsers"`
	CreatedAt       time.Time             `json:"createdAt"`
}

func toComment(c *db.Comment) *Comment {
	return &Comment{
		CommentID:       c.ID,
		PostID:          c.PostID,
		UserID:          c.UserID,
		Text:            c.Text,
		TextTaggedUsers: mentions.FromJSON(c.TextTaggedUsers),
		CreatedAt:       c.CreatedAt,
	}
}

type FindContactsRequest struct {
	Contacts []string `json:"contacts" validate:"min=1,max=100,dive,required,max=128"`
}

type Contact struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type ContactList struct {
	Users []Contact `json:"users"`
}
