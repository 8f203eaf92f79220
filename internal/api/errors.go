package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/emberml/ember/internal/session"
)

type responseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": responseError{
			Message: msg,
			Type:    errType,
		},
	})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

// writeSessionError maps the session error taxonomy onto HTTP statuses.
// Caller mistakes are 4xx; engine and model faults are 5xx.
func writeSessionError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, session.ErrTokenize):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	case errors.Is(err, session.ErrContextOverflow):
		return writeError(c, http.StatusRequestEntityTooLarge, "context_overflow_error", err.Error())
	case errors.Is(err, session.ErrModelNotLoaded), errors.Is(err, session.ErrModelLoad):
		return writeError(c, http.StatusServiceUnavailable, "model_error", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return writeError(c, 499, "cancelled", err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}
