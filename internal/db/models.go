package db

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User statuses.
const (
	UserStatusAnonymous = "ANONYMOUS"
	UserStatusActive    = "ACTIVE"
	UserStatusDisabled  = "DISABLED"
	UserStatusDeleting  = "DELETING"
	UserStatusResetting = "RESETTING"
)

// Subscription levels.
const (
	SubscriptionBasic   = "BASIC"
	SubscriptionDiamond = "DIAMOND"
)

// Privacy statuses.
const (
	PrivacyPublic  = "PUBLIC"
	PrivacyPrivate = "PRIVATE"
)

// Dating statuses.
const (
	DatingDisabled = "DISABLED"
	DatingEnabled  = "ENABLED"
)

// User is the account row. Dating profile fields are nullable so that the
// eligibility check can report every missing one.
type User struct {
	ID                string  `gorm:"primaryKey;size:64"`
	Username          string  `gorm:"uniqueIndex;size:64;not null"`
	Email             *string `gorm:"uniqueIndex;size:128"`
	Phone             *string `gorm:"uniqueIndex;size:32"`
	Status            string  `gorm:"size:16;not null;default:ACTIVE"`
	SubscriptionLevel string  `gorm:"size:16;not null;default:BASIC"`
	PrivacyStatus     string  `gorm:"size:16;not null;default:PUBLIC"`
	// ResetFrom holds the status to restore while a reset is in progress.
	ResetFrom *string `gorm:"size:16"`

	FullName    *string `gorm:"size:128"`
	DisplayName *string `gorm:"size:128"`
	PhotoPostID *string `gorm:"size:64"`

	// Dating profile
	DatingStatus        string     `gorm:"size:16;not null;default:DISABLED;index:idx_dating_candidates,priority:1"`
	DatingDisabledAt    *time.Time
	Gender              *string    `gorm:"size:16;index:idx_dating_candidates,priority:2"`
	DateOfBirth         *time.Time `gorm:"index:idx_dating_candidates,priority:3"`
	Height              *int
	LocationLat         *float64   `gorm:"index:idx_dating_candidates,priority:4"`
	LocationLng         *float64
	MatchAgeMin         *int
	MatchAgeMax         *int
	MatchHeightMin      *int
	MatchHeightMax      *int
	MatchLocationRadius *int // km
	MatchGenders        datatypes.JSON

	// Aggregates
	PostViewedByCount int64 `gorm:"not null;default:0"` // views received on the user's posts
	ViewedPostsCount  int64 `gorm:"not null;default:0"` // distinct posts this user has viewed
	ModerationStrikes int   `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Follow statuses.
const (
	FollowFollowing = "FOLLOWING"
	FollowRequested = "REQUESTED"
	FollowDenied    = "DENIED"
)

// Follow is a directional follower → followed edge.
type Follow struct {
	FollowerID string    `gorm:"primaryKey;size:64"`
	FollowedID string    `gorm:"primaryKey;size:64;index:idx_followed_status,priority:1"`
	Status     string    `gorm:"size:16;not null;index:idx_followed_status,priority:2"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// Block is a directional blocker → blocked edge.
type Block struct {
	BlockerID string    `gorm:"primaryKey;size:64"`
	BlockedID string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Post statuses.
const (
	PostPending   = "PENDING"
	PostCompleted = "COMPLETED"
	PostArchived  = "ARCHIVED"
	PostError     = "ERROR"
)

// Post is the read side of the media subsystem: status, duplicate linkage
// and thumbnail URL.
type Post struct {
	ID             string  `gorm:"primaryKey;size:64"`
	UserID         string  `gorm:"size:64;not null;index"`
	Status         string  `gorm:"size:16;not null;default:PENDING"`
	ContentHash    string  `gorm:"size:128;index"`
	TakenInReal    bool    `gorm:"not null;default:false"`
	ImageURL       *string `gorm:"size:512"`
	ThumbnailURL   *string `gorm:"size:512"`
	OriginalPostID *string `gorm:"size:64;index"`
	ViewedByCount  int64   `gorm:"not null;default:0"`
	CompletedAt    *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// View types for post views.
const (
	ViewThumbnail = "THUMBNAIL"
	ViewFocus     = "FOCUS"
)

// PostView is the idempotent (viewer, post) view record.
type PostView struct {
	PostID             string    `gorm:"primaryKey;size:64"`
	UserID             string    `gorm:"primaryKey;size:64;index"`
	ViewCount          int64     `gorm:"not null;default:0"`
	ThumbnailViewCount int64     `gorm:"not null;default:0"`
	FocusViewCount     int64     `gorm:"not null;default:0"`
	FirstViewedAt      time.Time `gorm:"not null"`
	LastViewedAt       time.Time `gorm:"not null"`
}

// Comment on a post.
type Comment struct {
	ID              string         `gorm:"primaryKey;size:64"`
	PostID          string         `gorm:"size:64;not null;index"`
	UserID          string         `gorm:"size:64;not null;index"`
	Text            string         `gorm:"type:text;not null"`
	TextTaggedUsers datatypes.JSON `gorm:"not null"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
}

// Card types. Singleton types have one instance per user; per-relation
// types key additionally on a related entity id.
const (
	CardAddProfilePhoto     = "ADD_PROFILE_PHOTO"
	CardAnonymousUserUpsell = "ANONYMOUS_USER_UPSELL"
	CardUserSubscription    = "USER_SUBSCRIPTION_LEVEL"
	CardChatActivity        = "CHAT_ACTIVITY"
	CardRequestedFollowers  = "REQUESTED_FOLLOWERS"
	CardCommentMention      = "COMMENT_MENTION"
	CardPostRepost          = "POST_REPOST"
	CardContactJoined       = "CONTACT_JOINED"
)

// Card is a per-user notification card. Seq is allocated once at creation
// and defines ordering; edits bump Version only.
type Card struct {
	ID        string    `gorm:"primaryKey;size:200"`
	UserID    string    `gorm:"size:64;not null;index:idx_user_seq,priority:1"`
	Type      string    `gorm:"size:32;not null"`
	RelatedID *string   `gorm:"size:64"`
	PostID    *string   `gorm:"size:64;index"`
	Title     string    `gorm:"size:255;not null"`
	SubTitle  *string   `gorm:"size:255"`
	Action    string    `gorm:"size:512;not null"`
	Thumbnail *string   `gorm:"size:512"`
	Seq       int64     `gorm:"not null;index:idx_user_seq,priority:2,sort:desc"`
	Version   int64     `gorm:"not null;default:1"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Chat types.
const (
	ChatDirect = "DIRECT"
	ChatGroup  = "GROUP"
)

// Chat is the versioned aggregate for a conversation. Every counter update
// goes through a conditional write on Version.
type Chat struct {
	ID              string  `gorm:"primaryKey;size:64"`
	ChatType        string  `gorm:"size:16;not null"`
	Name            *string `gorm:"size:128"`
	CreatedByUserID *string `gorm:"size:64"`
	// DirectKey is "<minUserID>:<maxUserID>" for direct chats and enforces
	// at most one direct chat per pair.
	DirectKey             *string   `gorm:"uniqueIndex;size:140"`
	MemberCount           int       `gorm:"not null;default:0"`
	MessagesCount         int64     `gorm:"not null;default:0"`
	LastMessageSeq        int64     `gorm:"not null;default:0"`
	FlagCount             int       `gorm:"not null;default:0"`
	LastMessageActivityAt time.Time `gorm:"not null"`
	// ActivitySeq orders chat lists; it moves only when a message is created.
	ActivitySeq int64     `gorm:"not null;default:0;index"`
	Version     int64     `gorm:"not null;default:1"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// ChatMember links a user to a chat.
type ChatMember struct {
	ChatID   string    `gorm:"primaryKey;size:64"`
	UserID   string    `gorm:"primaryKey;size:64;index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

// ChatFlag records a distinct flagger of a chat.
type ChatFlag struct {
	ChatID    string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// ChatView is the per-viewer watermark: every message with Seq <= LastSeq
// has been viewed by UserID.
type ChatView struct {
	ChatID       string    `gorm:"primaryKey;size:64"`
	UserID       string    `gorm:"primaryKey;size:64;index"`
	LastSeq      int64     `gorm:"not null;default:0"`
	ViewCount    int64     `gorm:"not null;default:0"`
	LastViewedAt time.Time `gorm:"not null"`
}

// Message origins.
const (
	OriginUser   = "USER"
	OriginSystem = "SYSTEM"
)

// Message is a chat message. AuthorUserID is nil for system messages and
// after the author leaves or is deleted.
type Message struct {
	ID           string  `gorm:"primaryKey;size:64"`
	ChatID       string  `gorm:"size:64;not null;uniqueIndex:idx_chat_seq,priority:1"`
	Seq          int64   `gorm:"not null;uniqueIndex:idx_chat_seq,priority:2"`
	AuthorUserID *string `gorm:"size:64;index"`
	// ActorUserID is the user whose action produced a system message.
	ActorUserID     *string        `gorm:"size:64"`
	Origin          string         `gorm:"size:16;not null"`
	Text            string         `gorm:"type:text;not null"`
	TextTaggedUsers datatypes.JSON `gorm:"not null"`
	LastEditedAt    *time.Time
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

// Directional match statuses.
const (
	MatchNone      = "NONE"
	MatchPotential = "POTENTIAL"
	MatchApproved  = "APPROVED"
	MatchRejected  = "REJECTED"
	MatchConfirmed = "CONFIRMED"
)

// MatchDecision is one direction of a match record: UserID's status toward
// OtherUserID.
//
// Composite PK: (UserID, OtherUserID)
//   - One row per direction; the unordered pair is two rows.
//
// Indexes:
//   - idx_user_status(user_id, status): "who did I approve" lists.
type MatchDecision struct {
	UserID      string    `gorm:"primaryKey;size:64;index:idx_user_status,priority:1"`
	OtherUserID string    `gorm:"primaryKey;size:64"`
	Status      string    `gorm:"size:16;not null;index:idx_user_status,priority:2"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// ContactInterest records that UserID looked up a contact not yet on the
// platform, so a CONTACT_JOINED card can be raised when it signs up.
type ContactInterest struct {
	UserID    string    `gorm:"primaryKey;size:64"`
	Contact   string    `gorm:"primaryKey;size:128;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// BannedEmail stores blake2b hashes of permanently banned emails.
type BannedEmail struct {
	EmailHash string    `gorm:"primaryKey;size:128"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &Follow{}, &Block{}, &Post{}, &PostView{}, &Comment{},
		&Card{}, &Chat{}, &ChatMember{}, &ChatFlag{}, &ChatView{}, &Message{},
		&MatchDecision{}, &ContactInterest{}, &BannedEmail{},
	}
}
