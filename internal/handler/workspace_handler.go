package handler

import (
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/service"
	"github.com/noah-isme/gema-workbench/internal/utils"
)

// WorkspaceHandler exposes the assignment workspace: turn-in, the solution
// editor, attachments and evaluation.
type WorkspaceHandler struct {
	workbench *service.Workbench
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewWorkspaceHandler constructs a WorkspaceHandler.
func NewWorkspaceHandler(workbench *service.Workbench, validate *validator.Validate, logger zerolog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		workbench: workbench,
		validator: validate,
		logger:    logger.With().Str("component", "workspace_handler").Logger(),
	}
}

// Register mounts the workspace routes on an assignment group.
func (h *WorkspaceHandler) Register(router fiber.Router) {
	router.Get("/workspace", h.get)
	router.Post("/workspace/turn-in", h.turnIn)

	router.Get("/solution", h.solution)
	router.Post("/solution/open", h.openSolution)
	router.Put("/solution/buffer", h.updateBuffer)
	router.Post("/solution/save", h.saveSolution)
	router.Post("/solution/close", h.closeSolution)

	router.Post("/attachments", h.uploadAttachment)
	router.Post("/attachments/retry", h.retryUpload)
	router.Delete("/attachments/:fileId", h.deleteAttachment)

	router.Post("/evaluation", h.evaluate)
}

func (h *WorkspaceHandler) get(c *fiber.Ctx) error {
	workspace, err := h.workspace(c, c.QueryBool("refresh", false))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "workspace loaded", workspace.View())
}

func (h *WorkspaceHandler) turnIn(c *fiber.Ctx) error {
	workspace, err := h.workspace(c, false)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if err := workspace.TurnIn(requestContext(c)); err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission turned in", workspace.View())
}

// solution returns the solution editor panel.
func (h *WorkspaceHandler) solution(c *fiber.Ctx) error {
	workspace, err := h.workspace(c, false)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "solution editor", workspace.View().Editor)
}

func (h *WorkspaceHandler) openSolution(c *fiber.Ctx) error {
	workspace, err := h.workspace(c, false)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if err := workspace.OpenSolution(requestContext(c)); err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "solution opened", workspace.View().Editor)
}

// updateBuffer replaces the unsaved solution text.
func (h *WorkspaceHandler) updateBuffer(c *fiber.Ctx) error {
	var payload dto.BufferUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	workspace, err := h.workspace(c, false)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if err := workspace.EditSolution(payload.Content); err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "buffer updated", workspace.View().Editor)
}

func (h *WorkspaceHandler) saveSolution(c *fiber.Ctx) error {
	workspace, err := h.workspace(c, false)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if err := workspace.SaveSolution(requestContext(c)); err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "solution saved", workspace.View().Editor)
}

// closeSolution closes the editor and discards unsaved text.
func (h *WorkspaceHandler) closeSolution(c *fiber.Ctx) error {
	workspace, err := h.workspace(c, false)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	workspace.CloseSolution()
	return utils.SendSuccess(c, "solution closed", workspace.View().Editor)
}

func (h *WorkspaceHandler) uploadAttachment(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read uploaded file")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read uploaded file")
	}

	workspace, err := h.workspace(c, false)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	local := service.LocalFile{
		Name:        fileHeader.Filename,
		ContentType: fileHeader.Header.Get(fiber.HeaderContentType),
		Content:     content,
	}
	if err := workspace.UploadAttachment(requestContext(c), local); err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attachment uploaded", workspace.View().Attachments)
}

// retryUpload re-sends the last failed upload.
func (h *WorkspaceHandler) retryUpload(c *fiber.Ctx) error {
	workspace, err := h.workspace(c, false)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if err := workspace.RetryUpload(requestContext(c)); err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attachment uploaded", workspace.View().Attachments)
}

func (h *WorkspaceHandler) deleteAttachment(c *fiber.Ctx) error {
	fileID, err := parseUintParam(c, "fileId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	workspace, err := h.workspace(c, false)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if err := workspace.DeleteAttachment(requestContext(c), fileID, confirmed(c)); err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "attachment deleted", workspace.View().Attachments)
}

func (h *WorkspaceHandler) evaluate(c *fiber.Ctx) error {
	var request dto.EvaluationRequest
	if err := c.QueryParser(&request); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := h.validator.Struct(request); err != nil {
		return handleError(c, h.logger, err)
	}

	workspace, err := h.workspace(c, false)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	result, err := workspace.Evaluate(requestContext(c), request.Language)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "evaluation completed", result)
}

// workspace resolves the assignment's workspace, loading it on first use.
func (h *WorkspaceHandler) workspace(c *fiber.Ctx, refresh bool) (*service.Workspace, error) {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return nil, errInvalidAssignment
	}

	workspace := h.workbench.Workspace(assignmentID)
	if refresh || !workspace.Loaded() {
		if err := workspace.Load(requestContext(c)); err != nil {
			return nil, err
		}
	}
	return workspace, nil
}
