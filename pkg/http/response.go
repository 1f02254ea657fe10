package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorBody is the body of every non-2xx API answer. Success mirrors the flag
// carried by the listing responses so clients check one field.
type ErrorBody struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Details []ValidationError `json:"details,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string         `json:"code"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

// ErrorResponse writes status with msg and optional field details.
func ErrorResponse(c echo.Context, status int, msg string, details ...ValidationError) error {
	return c.JSON(status, ErrorBody{Success: false, Error: msg, Details: details})
}

func BadRequestResponse(c echo.Context, details []ValidationError) error {
	return ErrorResponse(c, http.StatusBadRequest, "invalid request", details...)
}

func TooManyRequestsResponse(c echo.Context) error {
	return ErrorResponse(c, http.StatusTooManyRequests, "rate limited")
}

func InternalServerErrorResponse(c echo.Context) error {
	return ErrorResponse(c, http.StatusInternalServerError, "internal error")
}

// AppErrorResponse writes an *AppError with its own status; anything else is a 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return InternalServerErrorResponse(c)
	}
	var details []ValidationError
	if appErr.Field != "" {
		details = []ValidationError{{Code: appErr.Code, Field: appErr.Field, Message: appErr.Message}}
	}
	return ErrorResponse(c, appErr.Status, appErr.Message, details...)
}
