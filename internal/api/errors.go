package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error is an HTTP failure rendered as {"error": message}.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func badRequest(format string, args ...any) *Error {
	return &Error{Status: fiber.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

var errTooManyRequests = &Error{Status: fiber.StatusTooManyRequests, Message: "too many requests"}

// handleError renders every handler error as JSON.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal server error"

	var apiErr *Error
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &apiErr):
		status, message = apiErr.Status, apiErr.Message
	case errors.As(err, &fiberErr):
		status, message = fiberErr.Code, fiberErr.Message
	}
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("api request failed",
			"request_id", requestIDFrom(c),
			"path", c.Path(),
			"error", err.Error(),
		)
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}
