package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("RATE_LIMIT_SESSION", "3")
	t.Setenv("RATE_LIMIT_GLOBAL_API", "not-a-number")

	config := LoadRateLimitConfig()
	if config.SessionMax != 3 {
		t.Errorf("Expected session max 3, got %d", config.SessionMax)
	}
	if config.GlobalAPIMax != 200 {
		t.Errorf("Expected invalid override to keep 200, got %d", config.GlobalAPIMax)
	}
}

func TestSessionRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Post("/join", SessionRateLimiter(&RateLimitConfig{
		SessionMax:        2,
		SessionExpiration: time.Minute,
	}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i, expected := range []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests} {
		resp, err := app.Test(httptest.NewRequest("POST", "/join", nil), -1)
		if err != nil {
			t.Fatalf("Request %d failed: %v", i, err)
		}
		if resp.StatusCode != expected {
			t.Errorf("Request %d: expected %d, got %d", i, expected, resp.StatusCode)
		}
	}
}
