package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Core
	BotToken    string `env:"BOT_TOKEN,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Postgres pool
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`

	// Yandex Tracker
	TrackerToken      string   `env:"TRACKER_TOKEN,required"`
	TrackerOrgID      string   `env:"TRACKER_ORG_ID"`
	TrackerQueue      string   `env:"TRACKER_QUEUE,required"`
	TrackerBaseURL    string   `env:"TRACKER_BASE_URL" envDefault:"https://api.tracker.yandex.net/v2"`
	TrackerWebURL     string   `env:"TRACKER_WEB_URL" envDefault:"https://tracker.yandex.ru"`
	TrackerAuthScheme string   `env:"TRACKER_AUTH_SCHEME" envDefault:"OAuth"`
	TrackerProjectID  string   `env:"TRACKER_PROJECT_ID"`
	TrackerTags       []string `env:"TRACKER_TAGS" envSeparator:"," envDefault:"Запрос"`

	// Inbound webhooks
	WebhookToken string `env:"WEBHOOK_TOKEN,required"`
	WebhookAddr  string `env:"WEBHOOK_ADDR" envDefault:":8000"`

	// Redis (optional): when set, processed webhook ids are kept in Redis
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Outbound HTTP
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"60s"`
	HTTPMaxConns int           `env:"HTTP_MAX_CONNS" envDefault:"20"`

	// Logging to Telegram (optional)
	LogTelegramChatID    int64 `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError        int   `env:"LOG_TOPIC_ERROR"`
	LogTopicRegistration int   `env:"LOG_TOPIC_REGISTRATION"`
	LogTopicIssue        int   `env:"LOG_TOPIC_ISSUE"`

	// Misc
	TempDir  string `env:"TEMP_DIR"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Bot behavior
	DropPendingUpdates bool `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`
}

func Load() (*Config, error) {
	// .env is optional; real deployments pass plain environment variables.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.TrackerBaseURL = strings.TrimRight(cfg.TrackerBaseURL, "/")
	cfg.TrackerWebURL = strings.TrimRight(cfg.TrackerWebURL, "/")
	return cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IssueURL returns the tracker web link for an issue key.
func (c *Config) IssueURL(key string) string {
	return c.TrackerWebURL + "/" + key
}

// UseRedis reports whether a Redis backend is configured.
func (c *Config) UseRedis() bool {
	return c.RedisAddr != ""
}
