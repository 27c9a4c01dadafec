package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/feedback"
	"github.com/kbassist/backend/internal/knowledge"
	"github.com/kbassist/backend/internal/middleware/auth"
	"github.com/kbassist/backend/pkg/logger"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorHandler is the single boundary that turns handler errors into
// responses. Unclassified errors become a 500 whose message is generic in
// production.
func ErrorHandler(isProduction bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, title := classify(err)

		fields := []zap.Field{
			zap.Error(err),
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.String("ip", c.IP()),
			zap.Int("status", status),
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("Request failed", fields...)
		} else {
			logger.Debug("Request rejected", fields...)
		}

		message := err.Error()
		if status >= fiber.StatusInternalServerError && isProduction {
			message = "Internal Server Error"
		}

		return c.Status(status).JSON(fiber.Map{
			"error":   title,
			"message": message,
		})
	}
}

func classify(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, feedback.ErrInvalidRating),
		errors.Is(err, knowledge.ErrEmptyContent):
		return fiber.StatusBadRequest, "Bad Request"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		return fiber.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, feedback.ErrNotFound), errors.Is(err, knowledge.ErrNotFound):
		return fiber.StatusNotFound, "Not Found"
	case errors.Is(err, knowledge.ErrDuplicate):
		return fiber.StatusConflict, "Conflict"
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	}
	return fiber.StatusInternalServerError, "Internal Server Error"
}
