package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	App struct {
		ENV string
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	HTTP struct {
		Host string
		Port string
	}

	Chat struct {
		// FlagThreshold is the fraction of members that must flag a chat
		// (strictly exceeded) before it is deleted.
		FlagThreshold float64
		FlagMinCount  int
	}

	Dating struct {
		MinAge         int
		MaxAge         int
		ReenableWindow time.Duration
	}

	Moderation struct {
		BadWords    []string
		StrikeLimit int
	}

	Events struct {
		Workers      int
		MaxRetries   int
		RetryBackoff time.Duration
	}
}

func New() *Config {
	// .env is optional; variables already in the environment win.
	_ = godotenv.Load()

	cfg := &Config{}

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "grpc_server")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "muzz_social")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// HTTP (metrics + subscriptions)
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "127.0.0.1")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")

	// Chat
	cfg.Chat.FlagThreshold = getEnvFloat("CHAT_FLAG_THRESHOLD", 0.1)
	cfg.Chat.FlagMinCount = getEnvInt("CHAT_FLAG_MIN_COUNT", 2)

	// Dating
	cfg.Dating.MinAge = getEnvInt("DATING_MIN_AGE", 18)
	cfg.Dating.MaxAge = getEnvInt("DATING_MAX_AGE", 100)
	cfg.Dating.ReenableWindow = getEnvDuration("DATING_REENABLE_WINDOW", 3*time.Hour)

	// Moderation
	cfg.Moderation.BadWords = splitList(os.Getenv("MODERATION_BAD_WORDS"))
	cfg.Moderation.StrikeLimit = getEnvInt("MODERATION_STRIKE_LIMIT", 3)

	// Background derivation (cards, counters)
	cfg.Events.Workers = getEnvInt("EVENTS_WORKERS", 8)
	cfg.Events.MaxRetries = getEnvInt("EVENTS_MAX_RETRIES", 5)
	cfg.Events.RetryBackoff = getEnvDuration("EVENTS_RETRY_BACKOFF", 50*time.Millisecond)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(getEnvDefault(k, ""), 64); err == nil {
		return v
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
