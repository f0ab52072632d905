// Package moderation decides whether text carries banned terms and applies
// the strike/ban side effects of repeated violations.
package moderation

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-social/internal/cache"
	"github.com/oggyb/muzz-social/internal/db"
)

// Filter matches whole tokens, case-insensitively, against the configured
// word list and the list maintained in Redis.
type Filter struct {
	static map[string]struct{}
	cache  *cache.RedisCache
	logger *slog.Logger
}

func NewFilter(words []string, c *cache.RedisCache, logger *slog.Logger) *Filter {
	static := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			static[w] = struct{}{}
		}
	}
	return &Filter{static: static, cache: c, logger: logger}
}

// IsBanned reports whether text contains a banned token. A Redis failure
// degrades to the static list only.
func (f *Filter) IsBanned(ctx context.Context, text string) bool {
	tokens := Tokens(text)
	for _, t := range tokens {
		if _, ok := f.static[t]; ok {
			return true
		}
	}
	if f.cache == nil {
		return false
	}
	hit, err := f.cache.AnyBadWord(ctx, tokens)
	if err != nil {
		f.logger.Warn("bad word lookup failed, using static list", "err", err)
		return false
	}
	return hit
}

// Tokens lower-cases text and splits it on anything that is not a letter or
// a digit.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Moderator applies strikes and email bans.
type Moderator struct {
	db          *gorm.DB
	strikeLimit int
	logger      *slog.Logger
}

func NewModerator(database *gorm.DB, strikeLimit int, logger *slog.Logger) *Moderator {
	return &Moderator{db: database, strikeLimit: strikeLimit, logger: logger}
}

// Strike records a violation for userID. Reaching the strike limit disables
// the account and bans its email. tx may be nil to run standalone.
func (m *Moderator) Strike(ctx context.Context, tx *gorm.DB, userID string) (disabled bool, err error) {
	if tx == nil {
		tx = m.db
	}
	tx = tx.WithContext(ctx)

	if err := tx.Model(&db.User{}).Where("id = ?", userID).
		UpdateColumn("moderation_strikes", gorm.Expr("moderation_strikes + 1")).Error; err != nil {
		return false, err
	}

	var u db.User
	if err := tx.Select("id", "email", "status", "moderation_strikes").First(&u, "id = ?", userID).Error; err != nil {
		return false, err
	}
	if m.strikeLimit <= 0 || u.ModerationStrikes < m.strikeLimit || u.Status == db.UserStatusDisabled {
		return false, nil
	}

	if err := tx.Model(&db.User{}).Where("id = ?", userID).Update("status", db.UserStatusDisabled).Error; err != nil {
		return false, err
	}
	if u.Email != nil {
		if err := m.BanEmail(ctx, tx, *u.Email); err != nil {
			return false, err
		}
	}
	m.logger.Info("user force-disabled by moderation", "user", userID, "strikes", u.ModerationStrikes)
	return true, nil
}

// BanEmail permanently bans an email. Only its hash is stored.
func (m *Moderator) BanEmail(ctx context.Context, tx *gorm.DB, email string) error {
	if tx == nil {
		tx = m.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.BannedEmail{EmailHash: HashEmail(email)}).Error
}

// IsEmailBanned reports whether email was banned.
func (m *Moderator) IsEmailBanned(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	if tx == nil {
		tx = m.db
	}
	var n int64
	err := tx.WithContext(ctx).Model(&db.BannedEmail{}).
		Where("email_hash = ?", HashEmail(email)).
		Count(&n).Error
	return n > 0, err
}

// HashEmail normalizes and hashes an email address.
func HashEmail(email string) string {
	sum := blake2b.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
