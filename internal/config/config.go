package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string

	// Patient database
	MongoURI string
	MongoDB  string

	// LINE bot database (source of LINE user ids)
	LineBotMongoURI string
	LineBotMongoDB  string

	RedisURL string // optional; enables the distributed merge lock

	// Session configuration
	SessionSecret     string
	SessionMaxAge     time.Duration
	GoogleClientID    string
	AllowedEmails     []string
	AllowedEmailsFile string // optional YAML allow-list, hot reloaded

	// LINE Messaging API
	LineChannelAccessToken string
	LineAPIBaseURL         string
	LineSyncCron           string // empty disables the scheduled sync

	ClinicTimezone string
	CSVColumnsFile string
	AllowedOrigins string
	BodyLimitBytes int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		Environment: getEnv("ENVIRONMENT", "development"),

		MongoURI: getEnv("MONGODB_URI", ""),
		MongoDB:  getEnv("MONGODB_DB", "tcm_clinic"),

		LineBotMongoURI: getEnv("LINEBOT_MONGODB_URI", ""),
		LineBotMongoDB:  getEnv("LINEBOT_MONGODB_DB", "linebot"),

		RedisURL: getEnv("REDIS_URL", ""),

		SessionSecret:     getEnv("SESSION_SECRET", ""),
		SessionMaxAge:     getDurationEnv("SESSION_MAX_AGE", 24*time.Hour),
		GoogleClientID:    getEnv("GOOGLE_CLIENT_ID", ""),
		AllowedEmails:     splitList(getEnv("ALLOWED_EMAILS", "")),
		AllowedEmailsFile: getEnv("ALLOWED_EMAILS_FILE", ""),

		LineChannelAccessToken: getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineAPIBaseURL:         getEnv("LINE_API_BASE_URL", "https://api.line.me/v2/bot"),
		LineSyncCron:           getEnv("LINE_SYNC_CRON", ""),

		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "Asia/Taipei"),
		CSVColumnsFile: getEnv("CSV_COLUMNS_FILE", ""),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		BodyLimitBytes: getIntEnv("BODY_LIMIT_BYTES", 10*1024*1024),
	}
}

// Validate reports every missing or malformed setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGODB_URI is required"))
	}
	if c.LineBotMongoURI == "" {
		errs = append(errs, errors.New("LINEBOT_MONGODB_URI is required"))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		errs = append(errs, fmt.Errorf("CLINIC_TIMEZONE %q is not a known location: %w", c.ClinicTimezone, err))
	}
	if c.LineSyncCron != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.LineSyncCron); err != nil {
			errs = append(errs, fmt.Errorf("LINE_SYNC_CRON %q is invalid: %w", c.LineSyncCron, err))
		}
	}

	return errors.Join(errs...)
}

// Location returns the clinic location, falling back to UTC when unknown
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
