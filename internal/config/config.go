package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultDBPath    = "/root/data/bot.db"
	DefaultBackupDir = "/root/data/backups"

	tokenSecretPath = "/run/secrets/telegram_bot_token"
)

var ErrNoToken = errors.New("config: telegram token not found in docker secret or TELEGRAM_BOT_TOKEN")

type Config struct {
	TelegramToken     string
	DBPath            string
	BackupDir         string
	CacheTTL          time.Duration
	QueryTimeout      time.Duration
	BackupTimeout     time.Duration
	SweepInterval     time.Duration
	MetricsAddr       string // empty disables the /metrics listener
	LogLevel          slog.Level
	DefaultHourOffset int
}

// Load reads .env (if present), then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv, tokenSecretPath)
}

// FromEnv builds a Config from getenv, reading the token from secretPath
// first when that file exists.
func FromEnv(getenv func(string) string, secretPath string) (Config, error) {
	cfg := Config{
		TelegramToken: botToken(getenv, secretPath),
		DBPath:        orDefault(getenv("DB_PATH"), DefaultDBPath),
		BackupDir:     orDefault(getenv("BACKUP_DIR"), DefaultBackupDir),
		MetricsAddr:   getenv("METRICS_ADDR"),
	}
	if cfg.TelegramToken == "" {
		return Config{}, ErrNoToken
	}

	var err error
	if cfg.CacheTTL, err = duration(getenv, "CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.QueryTimeout, err = duration(getenv, "QUERY_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.BackupTimeout, err = duration(getenv, "BACKUP_TIMEOUT", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = duration(getenv, "SWEEP_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = ParseLogLevel(orDefault(getenv("LOG_LEVEL"), "info")); err != nil {
		return Config{}, err
	}
	if v := getenv("DEFAULT_HOUR_OFFSET"); v != "" {
		if cfg.DefaultHourOffset, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("config: DEFAULT_HOUR_OFFSET %q: %w", v, err)
		}
		if cfg.DefaultHourOffset < -12 || cfg.DefaultHourOffset > 14 {
			return Config{}, fmt.Errorf("config: DEFAULT_HOUR_OFFSET %d out of range -12..14", cfg.DefaultHourOffset)
		}
	}
	return cfg, nil
}

// ParseLogLevel accepts debug, info, warn/warning and error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log level %q", s)
}

func botToken(getenv func(string) string, secretPath string) string {
	if data, err := os.ReadFile(secretPath); err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token
		}
	}
	return strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN"))
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, d)
	}
	return d, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
