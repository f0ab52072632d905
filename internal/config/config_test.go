package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("CHAT_FLAG_THRESHOLD", "")
	t.Setenv("DATING_REENABLE_WINDOW", "")
	t.Setenv("MODERATION_BAD_WORDS", "")

	cfg := New()

	assert.Equal(t, 0.1, cfg.Chat.FlagThreshold)
	assert.Equal(t, 2, cfg.Chat.FlagMinCount)
	assert.Equal(t, 18, cfg.Dating.MinAge)
	assert.Equal(t, 100, cfg.Dating.MaxAge)
	assert.Equal(t, 3*time.Hour, cfg.Dating.ReenableWindow)
	assert.Empty(t, cfg.Moderation.BadWords)
	assert.Contains(t, cfg.DB.DSN, "parseTime=true")
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("MYSQL_DSN", "u:p@tcp(db:3306)/x")
	t.Setenv("CHAT_FLAG_THRESHOLD", "0.25")
	t.Setenv("DATING_REENABLE_WINDOW", "90m")
	t.Setenv("MODERATION_BAD_WORDS", " darn , heck ,,")
	t.Setenv("EVENTS_WORKERS", "not-a-number")

	cfg := New()

	assert.Equal(t, "u:p@tcp(db:3306)/x", cfg.DB.DSN)
	assert.Equal(t, 0.25, cfg.Chat.FlagThreshold)
	assert.Equal(t, 90*time.Minute, cfg.Dating.ReenableWindow)
	assert.Equal(t, []string{"darn", "heck"}, cfg.Moderation.BadWords)
	assert.Equal(t, 8, cfg.Events.Workers)
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"", "0", "off", "nope"} {
		assert.False(t, isTruthy(v), v)
	}
}
