package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Config struct {
	TelegramBotToken string
	TelegramChatID   string

	TgtgAccessToken  string
	TgtgRefreshToken string
	TgtgCookie       string

	LedgerBackend string
	LedgerDBPath  string
	ProjectID     string

	Port            string
	CheckInterval   time.Duration
	SendDelay       time.Duration
	AutoCancelAfter time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
	Timezone        string
}

func Load() (*Config, error) {
	// A local .env is a convenience for development; in production the
	// variables come from the environment directly.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env file")
	}

	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is required but not set")
	}
	chatID := os.Getenv("TELEGRAM_CHAT_ID")
	if chatID == "" {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID environment variable is required but not set")
	}

	accessToken := os.Getenv("TGTG_ACCESS_TOKEN")
	refreshToken := os.Getenv("TGTG_REFRESH_TOKEN")
	if accessToken == "" || refreshToken == "" {
		return nil, fmt.Errorf("TGTG_ACCESS_TOKEN and TGTG_REFRESH_TOKEN environment variables are required but not set")
	}

	backend := os.Getenv("LEDGER_BACKEND")
	if backend == "" {
		backend = BackendSQLite
	}
	if backend != BackendSQLite && backend != BackendFirestore {
		return nil, fmt.Errorf("invalid LEDGER_BACKEND %q: must be %q or %q", backend, BackendSQLite, BackendFirestore)
	}

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if backend == BackendFirestore && projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when LEDGER_BACKEND=firestore")
	}

	dbPath := os.Getenv("LEDGER_DB_PATH")
	if dbPath == "" {
		dbPath = "tgtg_offers.db"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	checkInterval, err := durationEnv("CHECK_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	sendDelay, err := durationEnv("SEND_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	autoCancelAfter, err := durationEnv("AUTO_CANCEL_AFTER", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	cleanupInterval, err := durationEnv("CLEANUP_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	retentionDays := 7
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid RETENTION_DAYS %q", v)
		}
		retentionDays = parsed
	}

	timezone := os.Getenv("TGTG_TIMEZONE")
	if timezone == "" {
		timezone = "Europe/Berlin"
	}

	return &Config{
		TelegramBotToken: botToken,
		TelegramChatID:   chatID,
		TgtgAccessToken:  accessToken,
		TgtgRefreshToken: refreshToken,
		TgtgCookie:       os.Getenv("TGTG_COOKIE"),
		LedgerBackend:    backend,
		LedgerDBPath:     dbPath,
		ProjectID:        projectID,
		Port:             port,
		CheckInterval:    checkInterval,
		SendDelay:        sendDelay,
		AutoCancelAfter:  autoCancelAfter,
		CleanupInterval:  cleanupInterval,
		Retention:        time.Duration(retentionDays) * 24 * time.Hour,
		Timezone:         timezone,
	}, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}
