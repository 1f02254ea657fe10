package middleware

import (
	"strings"
	"time"

	applogger "FinAlert/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const requestIDKey = "request_id"

// RequestID returns the id assigned by RequestLogging, or "".
func RequestID(c echo.Context) string {
	if id, ok := c.Get(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestLogging tags every request with an id (the caller's X-Request-ID when
// sent) and logs one line when it completes. Probe and scrape routes log at
// debug.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(requestIDKey, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			if err := next(c); err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []applogger.Field{
				applogger.String("request_id", id),
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", status),
				applogger.Duration("latency", time.Since(start)),
			}
			if quietPath(req.URL.Path) {
				l.Debug("http request", fields...)
			} else {
				l.Info("http request", fields...)
			}
			return nil
		}
	}
}

func quietPath(p string) bool {
	return p == "/metrics" || p == "/healthz" || strings.HasPrefix(p, "/debug/")
}
