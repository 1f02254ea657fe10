package http

import (
	"fmt"
	"net/http"
)

// AppError is a handler failure that maps onto one HTTP status.
type AppError struct {
	Code    string
	Field   string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NotFoundErrorf builds a 404 for a missing resource.
func NotFoundErrorf(format string, a ...any) *AppError {
	return &AppError{Code: "ERR_NOT_FOUND", Message: fmt.Sprintf(format, a...), Status: http.StatusNotFound}
}

