package handlers

import (
	"context"
	"time"

	"callsheet/internal/database"
	"callsheet/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	manager     *services.ProjectionManager
	connManager *services.ConnectionManager
	backends    map[string]database.Pinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(manager *services.ProjectionManager, connManager *services.ConnectionManager, backends map[string]database.Pinger) *HealthHandler {
	return &HealthHandler{
		manager:     manager,
		connManager: connManager,
		backends:    backends,
	}
}

// Handle responds with server health status.
// A failing backend turns the response into a 503.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := "healthy"
	backends := fiber.Map{}
	for name, p := range h.backends {
		if err := p.Ping(ctx); err != nil {
			backends[name] = err.Error()
			status = "degraded"
			continue
		}
		backends[name] = "ok"
	}

	connections := 0
	if h.connManager != nil {
		connections = h.connManager.Count()
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":      status,
		"replica":     h.manager.State().String(),
		"revision":    h.manager.Snapshot().Revision,
		"connections": connections,
		"backends":    backends,
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
