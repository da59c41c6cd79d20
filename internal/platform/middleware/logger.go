package middleware

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/diegoabad/front-consul-sub001/internal/platform/auth"
)

// Logger writes one line per request. 5xx responses log at error, other
// failures and 4xx at warn.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			req := c.Request()
			tenant, _ := c.Get("tenant_id").(string)
			logger.WithLevel(levelFor(status, err)).
				Err(err).
				Str("request_id", requestID(c)).
				Str("tenant_id", tenant).
				Str("user_id", auth.UserIDFromContext(req.Context())).
				Str("method", req.Method).
				Str("route", c.Path()).
				Str("path", req.URL.Path).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(started)).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return err
		}
	}
}

func levelFor(status int, err error) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case err != nil || status >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
