package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/internal/middleware"
	"github.com/noah-isme/gema-workbench/internal/service"
	"github.com/noah-isme/gema-workbench/internal/utils"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

var errInvalidAssignment = errors.New("invalid assignmentId")

var conflictErrors = []error{
	service.ErrSubmissionLocked,
	service.ErrEvaluationInProgress,
	service.ErrMaterializing,
	service.ErrEditorOpening,
	service.ErrEditorClosed,
	service.ErrTurnInInProgress,
	service.ErrUploadInProgress,
	service.ErrDeleteInProgress,
	service.ErrCreateInProgress,
}

var preconditionErrors = []error{
	service.ErrEvaluationNoSubmission,
	service.ErrEvaluationNoSolution,
	service.ErrNotCodeAssignment,
	service.ErrNothingToTurnIn,
	service.ErrNoSubmission,
	service.ErrNotAnAttachment,
	service.ErrNoFileSelected,
	service.ErrEmptyFile,
	service.ErrEditorNotOpen,
	service.ErrPaneNotLoaded,
	service.ErrTestCaseNotExpanded,
	service.ErrUnknownPane,
	service.ErrInvalidToken,
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := strings.TrimSpace(c.Params(name))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(parsed), nil
}

func confirmed(c *fiber.Ctx) bool {
	return c.QueryBool("confirm", false)
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// handleError maps service and gateway errors onto the response envelope.
func handleError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	var apiErr *classroom.APIError

	switch {
	case errors.As(err, &validationErrors):
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "validation failed", validationDetails(validationErrors))
	case errors.Is(err, errInvalidAssignment):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConfirmationRequired):
		return utils.SendError(c, fiber.StatusPreconditionRequired, err.Error())
	case errors.Is(err, service.ErrNoSession), errors.Is(err, service.ErrSessionExpired):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrSubmissionUnknown), errors.Is(err, service.ErrWorkspaceNotLoaded):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrTestCaseNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case matchesAny(err, conflictErrors):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case matchesAny(err, preconditionErrors):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case classroom.IsNotFound(err):
		return utils.SendError(c, fiber.StatusNotFound, classroom.Message(err))
	case errors.As(err, &apiErr):
		requestLogger(logger, c).Warn().Err(err).Int("upstream_status", apiErr.StatusCode).Msg("classroom call failed")
		return utils.SendError(c, fiber.StatusBadGateway, apiErr.Message)
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
