package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Sign-in and join attempts (per IP). Join codes are short, so guessing is cheap.
	SessionMax        int
	SessionExpiration time.Duration

	// WebSocket connection attempts (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns production defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		SessionMax:        10,
		SessionExpiration: 1 * time.Minute,

		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if n := positiveEnv("RATE_LIMIT_GLOBAL_API"); n > 0 {
		config.GlobalAPIMax = n
	}
	if n := positiveEnv("RATE_LIMIT_SESSION"); n > 0 {
		config.SessionMax = n
	}
	if n := positiveEnv("RATE_LIMIT_WEBSOCKET"); n > 0 {
		config.WebSocketMax = n
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.SessionMax = 100
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func positiveEnv(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("⚠️  [RATE-LIMIT] Ignoring invalid %s=%q", key, v)
		return 0
	}
	return n
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("global", config.GlobalAPIMax, config.GlobalAPIExpiration,
		"Too many requests. Please slow down.")
}

// SessionRateLimiter limits sign-in, sign-up and join attempts
func SessionRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("session", config.SessionMax, config.SessionExpiration,
		"Too many attempts. Please wait before trying again.")
}

// WebSocketRateLimiter for WebSocket connection attempts
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("ws", config.WebSocketMax, config.WebSocketExpiration,
		"Too many connection attempts. Please wait before reconnecting.")
}

func newLimiter(prefix string, max int, expiration time.Duration, message string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return prefix + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] %s limit reached for IP: %s on %s", prefix, c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       message,
				"retry_after": int(expiration.Seconds()),
			})
		},
	})
}
