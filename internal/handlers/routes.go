package handlers

import (
	"errors"
	"log"

	"callsheet/internal/middleware"
	"callsheet/internal/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Handlers groups everything the router needs
type Handlers struct {
	Schedule   *ScheduleHandler
	Session    *SessionHandler
	Health     *HealthHandler
	Projection *ProjectionSocket
	Limits     *middleware.RateLimitConfig // nil disables rate limiting
}

// SetupRoutes registers the API on app
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Get("/health", h.Health.Handle)

	api := app.Group("/api")
	var sessionLimit fiber.Handler = func(c *fiber.Ctx) error { return c.Next() }
	if h.Limits != nil {
		api.Use(middleware.GlobalAPIRateLimiter(h.Limits))
		sessionLimit = middleware.SessionRateLimiter(h.Limits)
	}

	api.Get("/session", h.Session.Current)
	api.Post("/session", sessionLimit, h.Session.SignIn)
	api.Post("/session/signup", sessionLimit, h.Session.SignUp)
	api.Delete("/session", h.Session.SignOut)
	api.Post("/join", sessionLimit, h.Session.Join)

	api.Get("/projects", h.Schedule.ListProjects)
	api.Post("/projects", h.Schedule.CreateProject)
	api.Put("/projects/active", h.Schedule.SelectProject)
	api.Patch("/projects/active", h.Schedule.UpdateProject)
	api.Get("/projects/active/members", h.Session.Members)
	api.Delete("/projects/:id/membership", h.Schedule.LeaveProject)
	api.Delete("/projects/:id", h.Schedule.DeleteProject)

	api.Get("/days", h.Schedule.ListDays)
	api.Get("/days/:date/activities", h.Schedule.Activities)
	api.Post("/days/:date/activities", h.Schedule.AddActivity)
	api.Get("/days/:date/has-activities", h.Schedule.HasActivities)
	api.Put("/days/:date/markers", h.Schedule.UpdateMarkers)
	api.Put("/days/:date/color", h.Schedule.SetColor)
	api.Delete("/days/:date/scenes/:sceneId", h.Schedule.RemoveScene)
	api.Delete("/days/:date", h.Schedule.RemoveDay)
	api.Get("/days/:date/forecast", h.Schedule.Forecast)
	api.Get("/days/:date/export", h.Schedule.Export)

	api.Post("/files", h.Schedule.AddFile)
	api.Put("/files/:id", h.Schedule.UpdateFile)
	api.Delete("/files/:id", h.Schedule.RemoveFile)

	if h.Projection != nil {
		if h.Limits != nil {
			app.Use("/ws", middleware.WebSocketRateLimiter(h.Limits))
		}
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/projection", websocket.New(h.Projection.Handle))
	}
}

// ErrorHandler renders every error as {"error": message}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	} else {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
	}

	return c.Status(code).JSON(fiber.Map{"error": message})
}

func badRequest(message string) error {
	return fiber.NewError(fiber.StatusBadRequest, message)
}

func unauthorized() error {
	return fiber.NewError(fiber.StatusUnauthorized, "Not signed in")
}

func accepted(c *fiber.Ctx) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// errorResponse maps service errors to HTTP errors
func errorResponse(err error) error {
	switch {
	case errors.Is(err, services.ErrNotSignedIn):
		return unauthorized()
	case errors.Is(err, services.ErrProjectNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Project not found")
	case errors.Is(err, services.ErrNoActiveProject):
		return fiber.NewError(fiber.StatusConflict, "No active project selected")
	case errors.Is(err, services.ErrNoLocation):
		return fiber.NewError(fiber.StatusNotFound, "No scene location to forecast")
	case errors.Is(err, services.ErrForecastUnavailable):
		return fiber.NewError(fiber.StatusNotFound, "Forecast unavailable")
	case errors.Is(err, services.ErrJoinFailed):
		log.Printf("⚠️  [JOIN] %v", err)
		return fiber.NewError(fiber.StatusBadGateway, "Could not join project, try again")
	}
	return err
}
