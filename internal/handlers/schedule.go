package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"callsheet/internal/models"
	"callsheet/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ScheduleHandler exposes the projection's queries and mutations to the presentation layer.
// Mutations answer 202: the outcome shows up in the next projection, never in the response.
type ScheduleHandler struct {
	manager  *services.ProjectionManager
	exporter *services.CallSheetExporter
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(manager *services.ProjectionManager, exporter *services.CallSheetExporter) *ScheduleHandler {
	return &ScheduleHandler{
		manager:  manager,
		exporter: exporter,
	}
}

// CreateProjectRequest is the body of POST /api/projects
type CreateProjectRequest struct {
	Title      string     `json:"title"`
	Director   string     `json:"director"`
	CoverPhoto string     `json:"cover_photo"`
	Screenplay string     `json:"screenplay"`
	Deadline   *time.Time `json:"deadline"`
}

// AddActivityRequest is the body of POST /api/days/:date/activities.
// Time is RFC3339 or a bare "15:04" on the path's day.
type AddActivityRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Address     string `json:"address"`
	Time        string `json:"time"`
	Responsible string `json:"responsible"`
}

// ListProjects returns the whole projection
// GET /api/projects
func (h *ScheduleHandler) ListProjects(c *fiber.Ctx) error {
	return c.JSON(h.manager.Snapshot())
}

// CreateProject inserts a project owned by the signed-in user
// POST /api/projects
func (h *ScheduleHandler) CreateProject(c *fiber.Ctx) error {
	userID := h.manager.UserID()
	if userID == "" {
		return unauthorized()
	}

	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	if req.Title == "" {
		return badRequest("title is required")
	}

	project, err := models.NewProject(userID, req.Title, req.Director)
	if err != nil {
		log.Printf("❌ [SCHEDULE] Failed to build project: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create project",
		})
	}
	project.CoverPhoto = req.CoverPhoto
	project.Screenplay = req.Screenplay
	project.Deadline = req.Deadline

	h.manager.AddProject(project)
	return accepted(c)
}

// SelectProjectRequest is the body of PUT /api/projects/active
type SelectProjectRequest struct {
	ProjectID string `json:"project_id"`
}

// SelectProject makes a visible project the active one
// PUT /api/projects/active
func (h *ScheduleHandler) SelectProject(c *fiber.Ctx) error {
	var req SelectProjectRequest
	if err := c.BodyParser(&req); err != nil || req.ProjectID == "" {
		return badRequest("project_id is required")
	}

	if err := h.manager.SelectProject(req.ProjectID); err != nil {
		return errorResponse(err)
	}
	return c.JSON(h.manager.ActiveProject())
}

// UpdateProject replaces the active project's details
// PATCH /api/projects/active
func (h *ScheduleHandler) UpdateProject(c *fiber.Ctx) error {
	active, err := h.requireActive(c)
	if active == nil {
		return err
	}

	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	if req.Title == "" {
		req.Title = active.Title
	}
	if req.Director == "" {
		req.Director = active.Director
	}

	h.manager.UpdateProjectDetails(req.Title, req.Director, req.Deadline)
	return accepted(c)
}

// LeaveProject removes the signed-in user from a project
// DELETE /api/projects/:id/membership
func (h *ScheduleHandler) LeaveProject(c *fiber.Ctx) error {
	if h.manager.UserID() == "" {
		return unauthorized()
	}
	h.manager.LeaveProject(c.Params("id"))
	return accepted(c)
}

// DeleteProject deletes a project owned by the signed-in user
// DELETE /api/projects/:id
func (h *ScheduleHandler) DeleteProject(c *fiber.Ctx) error {
	if h.manager.UserID() == "" {
		return unauthorized()
	}
	h.manager.DeleteProject(c.Params("id"))
	return accepted(c)
}

// ListDays returns the active project's days by date
// GET /api/days
func (h *ScheduleHandler) ListDays(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"days": h.manager.Days()})
}

// Activities returns the scenes scheduled on a calendar day
// GET /api/days/:date/activities
func (h *ScheduleHandler) Activities(c *fiber.Ctx) error {
	day, err := h.parseDay(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"date":       h.manager.Calendar().Key(day).String(),
		"activities": h.manager.ActivitiesForDay(day),
	})
}

// HasActivities reports whether a calendar day has scenes
// GET /api/days/:date/has-activities
func (h *ScheduleHandler) HasActivities(c *fiber.Ctx) error {
	day, err := h.parseDay(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"has_activities": h.manager.DayHasActivities(day)})
}

// AddActivity appends a scene to a calendar day
// POST /api/days/:date/activities
func (h *ScheduleHandler) AddActivity(c *fiber.Ctx) error {
	day, err := h.parseDay(c)
	if err != nil {
		return err
	}
	if active, err := h.requireActive(c); active == nil {
		return err
	}

	var req AddActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	at, err := h.parseTime(day, req.Time)
	if err != nil {
		return badRequest(err.Error())
	}

	h.manager.AddActivityToDay(day, req.Title, req.Description, req.Address, at, req.Responsible)
	return accepted(c)
}

// RemoveScene drops one scene from a calendar day
// DELETE /api/days/:date/scenes/:sceneId
func (h *ScheduleHandler) RemoveScene(c *fiber.Ctx) error {
	day, err := h.parseDay(c)
	if err != nil {
		return err
	}
	if active, err := h.requireActive(c); active == nil {
		return err
	}
	h.manager.RemoveScene(day, c.Params("sceneId"))
	return accepted(c)
}

// RemoveDay drops a calendar day from the schedule
// DELETE /api/days/:date
func (h *ScheduleHandler) RemoveDay(c *fiber.Ctx) error {
	day, err := h.parseDay(c)
	if err != nil {
		return err
	}
	if active, err := h.requireActive(c); active == nil {
		return err
	}
	h.manager.RemoveDay(day)
	return accepted(c)
}

// UpdateMarkersRequest is the body of PUT /api/days/:date/markers
type UpdateMarkersRequest struct {
	Markers []models.ScheduleMarker `json:"markers"`
}

// UpdateMarkers replaces a day's schedule markers
// PUT /api/days/:date/markers
func (h *ScheduleHandler) UpdateMarkers(c *fiber.Ctx) error {
	day, err := h.parseDay(c)
	if err != nil {
		return err
	}
	if active, err := h.requireActive(c); active == nil {
		return err
	}

	var req UpdateMarkersRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	for _, mk := range req.Markers {
		if !mk.Activity.IsValid() {
			return badRequest(fmt.Sprintf("unknown marker activity %q", mk.Activity))
		}
	}

	h.manager.UpdateDayMarkers(day, req.Markers)
	return accepted(c)
}

// SetColorRequest is the body of PUT /api/days/:date/color
type SetColorRequest struct {
	Color models.DayColor `json:"color"`
}

// SetColor changes a day's color tag
// PUT /api/days/:date/color
func (h *ScheduleHandler) SetColor(c *fiber.Ctx) error {
	day, err := h.parseDay(c)
	if err != nil {
		return err
	}
	if active, err := h.requireActive(c); active == nil {
		return err
	}

	var req SetColorRequest
	if err := c.BodyParser(&req); err != nil || !req.Color.IsValid() {
		return badRequest("a valid color is required")
	}

	h.manager.SetDayColor(day, req.Color)
	return accepted(c)
}

// AddFile attaches a file record to the active project
// POST /api/files
func (h *ScheduleHandler) AddFile(c *fiber.Ctx) error {
	if active, err := h.requireActive(c); active == nil {
		return err
	}

	var file models.FileRecord
	if err := c.BodyParser(&file); err != nil {
		return badRequest("Invalid request body")
	}
	if file.Name == "" || file.URL == "" {
		return badRequest("name and url are required")
	}

	h.manager.AddFileToProject(file)
	return accepted(c)
}

// UpdateFile replaces a file record of the active project
// PUT /api/files/:id
func (h *ScheduleHandler) UpdateFile(c *fiber.Ctx) error {
	if active, err := h.requireActive(c); active == nil {
		return err
	}

	var file models.FileRecord
	if err := c.BodyParser(&file); err != nil {
		return badRequest("Invalid request body")
	}
	file.ID = c.Params("id")

	h.manager.UpdateFileInProject(file)
	return accepted(c)
}

// RemoveFile detaches a file record from the active project
// DELETE /api/files/:id
func (h *ScheduleHandler) RemoveFile(c *fiber.Ctx) error {
	if active, err := h.requireActive(c); active == nil {
		return err
	}
	h.manager.RemoveFileFromProject(c.Params("id"))
	return accepted(c)
}

// Forecast returns the weather outlook for a calendar day
// GET /api/days/:date/forecast
func (h *ScheduleHandler) Forecast(c *fiber.Ctx) error {
	day, err := h.parseDay(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 20*time.Second)
	defer cancel()

	forecast, err := h.manager.Forecasts().Forecast(ctx, day)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(forecast)
}

// Export renders a calendar day as an .xlsx call sheet
// GET /api/days/:date/export
func (h *ScheduleHandler) Export(c *fiber.Ctx) error {
	date, err := h.parseDay(c)
	if err != nil {
		return err
	}
	active, err := h.requireActive(c)
	if active == nil {
		return err
	}
	day, ok := h.manager.DayFor(date)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No call sheet for this day",
		})
	}

	// A cached forecast is included; exporting never triggers a fetch
	forecast, _ := h.manager.Forecasts().Lookup(date)

	var buf bytes.Buffer
	if err := h.exporter.WriteTo(&buf, active, day, forecast); err != nil {
		log.Printf("❌ [SCHEDULE] Export failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export call sheet",
		})
	}

	key := h.manager.Calendar().Key(date).String()
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="callsheet-%s-%s.xlsx"`, active.Code, key))
	return c.Send(buf.Bytes())
}

// parseDay reads the :date path parameter
func (h *ScheduleHandler) parseDay(c *fiber.Ctx) (time.Time, error) {
	day, err := h.manager.Calendar().ParseDay(c.Params("date"))
	if err != nil {
		return time.Time{}, badRequest("date must be YYYY-MM-DD")
	}
	return day, nil
}

func (h *ScheduleHandler) parseTime(day time.Time, value string) (time.Time, error) {
	if value == "" {
		return day, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	clock, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("time must be RFC3339 or HH:MM")
	}
	anchor := h.manager.Calendar().Anchor(day)
	return time.Date(anchor.Year(), anchor.Month(), anchor.Day(), clock.Hour(), clock.Minute(), 0, 0, anchor.Location()), nil
}

// requireActive returns the active project, or nil with a 401 or 409
func (h *ScheduleHandler) requireActive(c *fiber.Ctx) (*models.Project, error) {
	if h.manager.UserID() == "" {
		return nil, unauthorized()
	}
	active := h.manager.ActiveProject()
	if active == nil {
		return nil, fiber.NewError(fiber.StatusConflict, "No active project selected")
	}
	return active, nil
}
