package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	applogger "CandleInsight/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLimiter struct {
	allow int
	seen  []string
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.seen = append(l.seen, key)
	if l.err != nil {
		return false, l.err
	}
	l.allow--
	return l.allow >= 0, nil
}

func serve(e *echo.Echo, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func ok(c echo.Context) error { return c.String(http.StatusOK, GetRequestID(c)) }

func TestRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/x", ok)

	rec := serve(e, http.MethodGet, "/x", map[string]string{RequestIDHeader: "abc"})
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc", rec.Body.String())

	rec = serve(e, http.MethodGet, "/x", nil)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins: []string{"chrome-extension://abc"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
		MaxAge:       600,
	}))
	e.POST("/api/predict", ok)

	rec := serve(e, http.MethodOptions, "/api/predict", map[string]string{echo.HeaderOrigin: "chrome-extension://abc"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "chrome-extension://abc", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))

	rec = serve(e, http.MethodPost, "/api/predict", map[string]string{echo.HeaderOrigin: "https://other.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestCORSWildcard(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{AllowOrigins: []string{"*"}}))
	e.GET("/x", ok)

	assert.Equal(t, "*", serve(e, http.MethodGet, "/x", nil).Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "https://a.example", serve(e, http.MethodGet, "/x", map[string]string{echo.HeaderOrigin: "https://a.example"}).Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestRateLimit(t *testing.T) {
	lim := &countingLimiter{allow: 2}
	e := echo.New()
	e.Use(RateLimit(lim, applogger.NewNop(), nil, "/health"))
	e.GET("/api/news/:symbol", ok)
	e.GET("/health", ok)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/news/AAPL", nil).Code)
	}
	rec := serve(e, http.MethodGet, "/api/news/MSFT", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/health", nil).Code)
	require.Len(t, lim.seen, 3)
	assert.Equal(t, "192.0.2.1:/api/news/:symbol", lim.seen[0], "keyed by ip and route template")
}

func TestRateLimitCustomRejection(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(&countingLimiter{}, applogger.NewNop(), func(c echo.Context) error {
		return c.String(http.StatusTooManyRequests, "later")
	}))
	e.GET("/x", ok)

	rec := serve(e, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "later", rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(&countingLimiter{err: errors.New("redis down")}, applogger.NewNop(), nil))
	e.GET("/x", ok)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", nil).Code)
}

func TestRecover(t *testing.T) {
	e := echo.New()
	e.Use(Recover(applogger.NewNop()))
	e.GET("/boom", func(echo.Context) error { panic("kaboom") })

	rec := serve(e, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":500,"message":"Internal Server Error"}`, rec.Body.String())
}

func TestLoggingAndMetricsHandleErrors(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogging(applogger.NewNop()))
	e.Use(Metrics())
	e.GET("/missing", func(echo.Context) error { return echo.NewHTTPError(http.StatusNotFound, "nope") })

	assert.Equal(t, http.StatusNotFound, serve(e, http.MethodGet, "/missing", nil).Code)
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
}
