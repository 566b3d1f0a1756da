package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the process reads from the environment
type Config struct {
	TelegramToken string
	AdminUserIDs  []int64

	DatabaseDriver string
	DatabaseDSN    string

	AIProvider   string
	OpenAIKey    string
	AnthropicKey string
	AIModel      string
	AITimeout    time.Duration

	LogMode string

	StateBackend string
	RedisAddr    string
	StateTTL     time.Duration

	SchedulerEnabled bool
	NudgeHour        int
	RetentionDays    int
}

// Load reads .env (if present) and the process environment.
// The returned config is not validated; call Validate before use.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseDriver:   getEnv("DATABASE_DRIVER", "sqlite3"),
		DatabaseDSN:      getEnv("DATABASE_DSN", "data/diary.db"),
		AIProvider:       strings.ToLower(getEnv("AI_PROVIDER", "openai")),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:     os.Getenv("ANTHROPIC_API_KEY"),
		AIModel:          os.Getenv("AI_MODEL"),
		LogMode:          getEnv("LOG_MODE", "development"),
		StateBackend:     strings.ToLower(getEnv("STATE_BACKEND", "memory")),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		SchedulerEnabled: os.Getenv("ENABLE_SCHEDULER") != "false",
	}

	var err error
	if cfg.AITimeout, err = getDuration("AI_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.StateTTL, err = getDuration("STATE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.NudgeHour, err = getInt("NUDGE_HOUR", 20); err != nil {
		return nil, err
	}
	if cfg.RetentionDays, err = getInt("RETENTION_DAYS", 0); err != nil {
		return nil, err
	}
	if cfg.AdminUserIDs, err = parseIDs(os.Getenv("ADMIN_USER_IDS")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required credentials and value ranges
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN environment variable is not set")
	}
	switch c.DatabaseDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite3 or postgres, got %q", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN must not be empty")
	}
	switch c.AIProvider {
	case "openai":
		if c.OpenAIKey == "" {
			return errors.New("OPENAI_API_KEY is required when AI_PROVIDER=openai")
		}
	case "anthropic":
		if c.AnthropicKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required when AI_PROVIDER=anthropic")
		}
	case "none":
	default:
		return fmt.Errorf("AI_PROVIDER must be openai, anthropic or none, got %q", c.AIProvider)
	}
	switch c.StateBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when STATE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("STATE_BACKEND must be memory or redis, got %q", c.StateBackend)
	}
	if c.NudgeHour < 0 || c.NudgeHour > 23 {
		return fmt.Errorf("NUDGE_HOUR must be between 0 and 23, got %d", c.NudgeHour)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("RETENTION_DAYS must not be negative, got %d", c.RetentionDays)
	}
	return nil
}

// IsAdmin reports whether the user id is listed in ADMIN_USER_IDS
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin user ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
