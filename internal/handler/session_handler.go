package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/service"
	"github.com/noah-isme/gema-workbench/internal/utils"
)

// SessionHandler manages the platform token the workbench acts with.
type SessionHandler struct {
	sessions  *service.SessionManager
	workbench *service.Workbench
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions *service.SessionManager, workbench *service.Workbench, validate *validator.Validate, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		workbench: workbench,
		validator: validate,
		logger:    logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register mounts the session routes.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Post("/session", h.create)
	router.Get("/session", h.get)
	router.Delete("/session", h.remove)
}

func (h *SessionHandler) create(c *fiber.Ctx) error {
	var payload dto.SessionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return handleError(c, h.logger, err)
	}

	session, err := h.sessions.Begin(requestContext(c), payload.Token)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	h.workbench.Reset()
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "session started", session.Response())
}

// get returns the active session.
func (h *SessionHandler) get(c *fiber.Ctx) error {
	session, err := h.sessions.Current(requestContext(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "session active", session.Response())
}

// remove ends the session and drops every open workspace.
func (h *SessionHandler) remove(c *fiber.Ctx) error {
	if err := h.sessions.End(requestContext(c)); err != nil {
		return handleError(c, h.logger, err)
	}
	h.workbench.Reset()
	return utils.SendSuccess(c, "session ended", nil)
}
