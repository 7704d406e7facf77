package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"go-and-tell/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// parseBody decodes and validates a JSON request body.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: invalid JSON", services.ErrInvalidInput)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %s", services.ErrInvalidInput, err.Error())
	}
	return nil
}

// statusFor maps service errors onto HTTP status codes and client messages.
// Store failures are collapsed to a generic message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound, "not found"
	case errors.Is(err, services.ErrNotConfigured):
		return fiber.StatusServiceUnavailable, "not configured"
	default:
		return fiber.StatusInternalServerError, services.ErrOperationFailed.Error()
	}
}

func fail(c *fiber.Ctx, log *zap.Logger, err error) error {
	status, msg := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
