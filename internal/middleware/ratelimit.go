package middleware

import (
	"os"
	"strconv"
	"time"

	"tcmclinic/internal/logging"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds per-window request caps
type RateLimitConfig struct {
	// all API requests, per IP
	GlobalAPIMax int
	// sign-in attempts, per IP
	AuthMax int
	// CSV imports, per signed-in user
	ImportMax int
	// outbound page fetches, per IP
	LinkPreviewMax int

	Window time.Duration
}

// DefaultRateLimitConfig returns production defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:   200,
		AuthMax:        10,
		ImportMax:      30,
		LinkPreviewMax: 30,
		Window:         time.Minute,
	}
}

// LoadRateLimitConfig applies RATE_LIMIT_* overrides and relaxes limits outside production
func LoadRateLimitConfig(environment string) *RateLimitConfig {
	config := DefaultRateLimitConfig()

	overrides := map[string]*int{
		"RATE_LIMIT_GLOBAL_API":   &config.GlobalAPIMax,
		"RATE_LIMIT_AUTH":         &config.AuthMax,
		"RATE_LIMIT_IMPORT":       &config.ImportMax,
		"RATE_LIMIT_LINK_PREVIEW": &config.LinkPreviewMax,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*target = n
			}
		}
	}

	if environment == "development" {
		config.GlobalAPIMax = 1000
		config.ImportMax = 200
		logging.L().Warn("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}
	return config
}

func limitReached(window time.Duration, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logging.WithRequest(c).Warnf("🚫 [RATE-LIMIT] Limit reached for %s", c.IP())
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       message,
			"retry_after": int(window.Seconds()),
		})
	}
}

// GlobalAPIRateLimiter caps all API requests per IP
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: limitReached(config.Window, "Too many requests. Please slow down."),
	})
}

// AuthRateLimiter caps sign-in attempts per IP
func AuthRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AuthMax,
		Expiration: config.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "auth:" + c.IP()
		},
		LimitReached: limitReached(config.Window, "Too many sign-in attempts. Please wait."),
	})
}

// ImportRateLimiter caps CSV imports per signed-in user, falling back to IP
func ImportRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.ImportMax,
		Expiration: config.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if email := UserEmail(c); email != "" {
				return "import:" + email
			}
			return "import-ip:" + c.IP()
		},
		LimitReached: limitReached(config.Window, "Too many imports. Please wait before trying again."),
	})
}

// LinkPreviewRateLimiter caps outbound page fetches per IP
func LinkPreviewRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.LinkPreviewMax,
		Expiration: config.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "preview:" + c.IP()
		},
		LimitReached: limitReached(config.Window, "Too many preview requests. Please wait."),
	})
}
