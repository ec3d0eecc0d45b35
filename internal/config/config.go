package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"engagement-engine/internal/constants"
	"engagement-engine/internal/domain"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const (
	NotifierLog     = "log"
	NotifierNATS    = "nats"
	NotifierWebhook = "webhook"
)

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string
	TablesFile string

	ReferenceTimezone string
	Location          *time.Location

	RankingTypes    []domain.RankingType
	RankingSchedule string
	RankingCacheTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Notifier          string
	NATSURL           string
	NATSSubjectPrefix string
	WebhookURL        string

	AdminToken string

	DefaultCompanionType string
	DefaultCompanionName string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("timezone", cfg.ReferenceTimezone).
		Str("ranking_schedule", cfg.RankingSchedule).
		Str("notifier", cfg.Notifier).
		Bool("redis", cfg.RedisAddr != "").
		Bool("admin_enabled", cfg.AdminToken != "").
		Msg("configuration loaded")

	return cfg, nil
}

// FromEnv reads and validates configuration without touching .env files.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DBPath:               getEnv("DB_PATH", "engagement.db"),
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		TablesFile:           getEnv("TABLES_FILE", ""),
		ReferenceTimezone:    getEnv("REFERENCE_TIMEZONE", "UTC"),
		RankingSchedule:      getEnv("RANKING_SCHEDULE", "@every 1m"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		Notifier:             strings.ToLower(getEnv("NOTIFIER", NotifierLog)),
		NATSURL:              getEnv("NATS_URL", ""),
		NATSSubjectPrefix:    getEnv("NATS_SUBJECT_PREFIX", "progression"),
		WebhookURL:           getEnv("WEBHOOK_URL", ""),
		AdminToken:           getEnv("ADMIN_TOKEN", ""),
		DefaultCompanionType: getEnv("DEFAULT_COMPANION_TYPE", "sprout"),
		DefaultCompanionName: getEnv("DEFAULT_COMPANION_NAME", "Buddy"),
	}

	loc, err := time.LoadLocation(cfg.ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid REFERENCE_TIMEZONE %q: %w", cfg.ReferenceTimezone, err)
	}
	cfg.Location = loc

	for _, raw := range getEnvList("RANKING_TYPES", []string{"daily", "weekly", "monthly"}) {
		t, err := domain.ParseRankingType(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid RANKING_TYPES: %w", err)
		}
		cfg.RankingTypes = append(cfg.RankingTypes, t)
	}

	if cfg.RankingCacheTTL, err = getEnvDuration("RANKING_CACHE_TTL", constants.RankingCacheTTL); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	switch cfg.Notifier {
	case NotifierLog:
	case NotifierNATS:
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("NATS_URL is required when NOTIFIER=nats")
		}
	case NotifierWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when NOTIFIER=webhook")
		}
	default:
		return nil, fmt.Errorf("unknown NOTIFIER %q", cfg.Notifier)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var Module = fx.Provide(Load)
