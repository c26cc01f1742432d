package loggingmw

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/verdantcart/storefront/internal/logging"
)

// RequestLogger injects a request-scoped logger into the context and logs
// every completed request. It runs behind echo's RequestID middleware and
// picks up generated ids from the response header, so every line carries a
// request_id whether or not the caller sent one.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := base.With(
				"request_id", requestID(c),
				"method", c.Request().Method,
				"route", c.Path(),
				"path", c.Request().URL.Path,
				"remote_ip", c.RealIP(),
			)
			if q := c.Request().URL.RawQuery; q != "" {
				l = l.With("query", q)
			}

			req := c.Request().WithContext(logging.IntoContext(c.Request().Context(), l))
			c.SetRequest(req)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Echo().HTTPErrorHandler(err, c)
			}

			status := c.Response().Status
			args := []any{
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes", c.Response().Size,
			}
			if err != nil {
				args = append(args, "error", err.Error())
			}
			l.Log(req.Context(), levelFor(status), "request completed", args...)
			return nil
		}
	}
}

func requestID(c echo.Context) string {
	if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
		return rid
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
