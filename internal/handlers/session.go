package handlers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"callsheet/internal/services"
	"callsheet/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// SessionHandler drives the identity source. Signing in attaches the replica.
type SessionHandler struct {
	session    *auth.Session
	membership *services.MembershipService
	profiles   *services.ProfileService
	manager    *services.ProjectionManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(session *auth.Session, membership *services.MembershipService, profiles *services.ProfileService, manager *services.ProjectionManager) *SessionHandler {
	return &SessionHandler{
		session:    session,
		membership: membership,
		profiles:   profiles,
		manager:    manager,
	}
}

// SignInRequest is the body of POST /api/session and POST /api/session/signup
type SignInRequest struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
}

// Current returns the signed-in user
// GET /api/session
func (h *SessionHandler) Current(c *fiber.Ctx) error {
	user := h.session.CurrentUser()
	if user == nil {
		return unauthorized()
	}
	return c.JSON(fiber.Map{
		"user":  user,
		"state": h.manager.State().String(),
	})
}

// SignIn verifies a token and makes its user the current identity
// POST /api/session
func (h *SessionHandler) SignIn(c *fiber.Ctx) error {
	token, err := h.tokenFrom(c)
	if err != nil {
		return err
	}

	user, err := h.session.SignIn(token)
	if err != nil {
		log.Printf("⚠️  [AUTH] Sign-in rejected: %v", err)
		return unauthorized()
	}
	return c.JSON(fiber.Map{"user": user})
}

// SignUp signs in a new user and creates their profile
// POST /api/session/signup
func (h *SessionHandler) SignUp(c *fiber.Ctx) error {
	var req SignInRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	token, err := h.tokenFrom(c)
	if err != nil {
		return err
	}

	user, err := h.session.SignUp(c.UserContext(), token, req.DisplayName)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return unauthorized()
		}
		log.Printf("❌ [AUTH] Sign-up failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create profile",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// SignOut clears the current identity and detaches the replica
// DELETE /api/session
func (h *SessionHandler) SignOut(c *fiber.Ctx) error {
	h.session.SignOut()
	return c.SendStatus(fiber.StatusNoContent)
}

// JoinRequest is the body of POST /api/join
type JoinRequest struct {
	Code string `json:"code"`
}

// Join adds the signed-in user to the project with the given code
// POST /api/join
func (h *SessionHandler) Join(c *fiber.Ctx) error {
	var req JoinRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("code is required")
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		return badRequest("code is required")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 30*time.Second)
	defer cancel()

	project, err := h.membership.JoinProject(ctx, req.Code)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(project)
}

// Members resolves the active project's members against their profiles
// GET /api/projects/active/members
func (h *SessionHandler) Members(c *fiber.Ctx) error {
	if h.manager.UserID() == "" {
		return unauthorized()
	}

	members, err := h.profiles.Members(c.UserContext(), h.manager.ActiveProject())
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(fiber.Map{"members": members})
}

// tokenFrom reads the bearer token from the Authorization header, falling back to the body
func (h *SessionHandler) tokenFrom(c *fiber.Ctx) (string, error) {
	if token, err := auth.ExtractToken(c.Get(fiber.HeaderAuthorization)); err == nil {
		return token, nil
	}
	var req SignInRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return "", badRequest("token is required")
	}
	return req.Token, nil
}
