package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/service"
	"github.com/noah-isme/gema-workbench/internal/utils"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

// TestCaseHandler exposes the test-case list and its expandable panels.
type TestCaseHandler struct {
	workbench *service.Workbench
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTestCaseHandler constructs a TestCaseHandler.
func NewTestCaseHandler(workbench *service.Workbench, validate *validator.Validate, logger zerolog.Logger) *TestCaseHandler {
	return &TestCaseHandler{
		workbench: workbench,
		validator: validate,
		logger:    logger.With().Str("component", "test_case_handler").Logger(),
	}
}

// Register mounts the test-case routes on an assignment group.
func (h *TestCaseHandler) Register(router fiber.Router) {
	router.Get("/testcases", h.list)
	router.Post("/testcases", h.create)
	router.Delete("/testcases/:testCaseId", h.remove)
	router.Post("/testcases/:testCaseId/expand", h.expand)
	router.Post("/testcases/:testCaseId/collapse", h.collapse)
	router.Put("/testcases/:testCaseId/:part", h.editPane)
	router.Post("/testcases/:testCaseId/:part/save", h.savePane)
}

func (h *TestCaseHandler) list(c *fiber.Ctx) error {
	editor, err := h.editor(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if c.QueryBool("refresh", false) || !editor.Loaded() {
		if err := editor.Refresh(requestContext(c)); err != nil {
			return handleError(c, h.logger, err)
		}
	}
	return utils.SendSuccess(c, "test cases retrieved", editor.View())
}

func (h *TestCaseHandler) create(c *fiber.Ctx) error {
	var payload dto.TestCaseCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	editor, err := h.editor(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	created, err := editor.Create(requestContext(c), payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "test case created", created)
}

func (h *TestCaseHandler) remove(c *fiber.Ctx) error {
	testCaseID, err := parseUintParam(c, "testCaseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	editor, err := h.editor(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if err := editor.Delete(requestContext(c), testCaseID, confirmed(c)); err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "test case deleted", editor.View())
}

// expand opens a panel and loads both of its panes.
func (h *TestCaseHandler) expand(c *fiber.Ctx) error {
	testCaseID, err := parseUintParam(c, "testCaseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	editor, err := h.editor(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	panel, err := editor.Expand(requestContext(c), testCaseID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "test case expanded", panel)
}

// collapse closes a panel.
func (h *TestCaseHandler) collapse(c *fiber.Ctx) error {
	testCaseID, err := parseUintParam(c, "testCaseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	editor, err := h.editor(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	editor.Collapse(testCaseID)
	return utils.SendSuccess(c, "test case collapsed", editor.View())
}

// editPane replaces the unsaved text of the input or output pane.
func (h *TestCaseHandler) editPane(c *fiber.Ctx) error {
	testCaseID, part, err := paneParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.BufferUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	editor, err := h.editor(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if err := editor.EditPane(testCaseID, part, payload.Content); err != nil {
		return handleError(c, h.logger, err)
	}
	return h.sendPanel(c, editor, testCaseID, "pane updated")
}

func (h *TestCaseHandler) savePane(c *fiber.Ctx) error {
	testCaseID, part, err := paneParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	editor, err := h.editor(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if err := editor.SavePane(requestContext(c), testCaseID, part); err != nil {
		return handleError(c, h.logger, err)
	}
	return h.sendPanel(c, editor, testCaseID, "pane saved")
}

func (h *TestCaseHandler) sendPanel(c *fiber.Ctx, editor *service.TestCaseEditor, testCaseID uint, message string) error {
	panel, err := editor.Panel(testCaseID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, message, panel)
}

func (h *TestCaseHandler) editor(c *fiber.Ctx) (*service.TestCaseEditor, error) {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return nil, errInvalidAssignment
	}
	return h.workbench.TestCases(assignmentID), nil
}

func paneParams(c *fiber.Ctx) (uint, classroom.TestCasePart, error) {
	testCaseID, err := parseUintParam(c, "testCaseId")
	if err != nil {
		return 0, "", err
	}
	part := classroom.TestCasePart(c.Params("part"))
	if !part.Valid() {
		return 0, "", service.ErrUnknownPane
	}
	return testCaseID, part, nil
}
