package middleware

import (
	"context"
	"net/http"

	applogger "CandleInsight/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Limiter decides whether key may make another request now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit keys the limiter by client IP and route. Limiter errors let the request through.
// reject writes the 429 body; nil answers with a bare status envelope.
func RateLimit(lim Limiter, l *applogger.Logger, reject echo.HandlerFunc, skip ...string) echo.MiddlewareFunc {
	if reject == nil {
		reject = func(c echo.Context) error {
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"status":  http.StatusTooManyRequests,
				"message": http.StatusText(http.StatusTooManyRequests),
			})
		}
	}
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := routeOf(c)
			if _, ok := skipped[route]; ok || c.Request().Method == http.MethodOptions {
				return next(c)
			}
			ok, err := lim.Allow(c.Request().Context(), c.RealIP()+":"+route)
			if err != nil {
				l.Warn("rate limiter unavailable", applogger.String("route", route), applogger.Error(err))
				return next(c)
			}
			if !ok {
				c.Response().Header().Set("Retry-After", "1")
				return reject(c)
			}
			return next(c)
		}
	}
}
