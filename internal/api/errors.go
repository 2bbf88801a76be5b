package api

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"datagate/internal/apperr"
	"datagate/internal/instrument"
	"datagate/internal/logger"
)

// ErrorHandler writes every error as {"error": {...}}. Errors that are
// not AppErrors are logged and reported as INTERNAL_ERROR.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if appErr, ok := apperr.As(err); ok {
		return c.Status(appErr.Status).JSON(apperr.ErrorResponse{Error: appErr})
	}

	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		return c.Status(code).JSON(apperr.ErrorResponse{
			Error: &apperr.AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
		})
	}

	logger.Log.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.String("trace_id", instrument.GetTraceID(c.UserContext())),
		zap.Error(err))
	return c.Status(code).JSON(apperr.ErrorResponse{
		Error: &apperr.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
