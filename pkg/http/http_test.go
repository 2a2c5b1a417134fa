package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteRequest struct {
	Symbol string `json:"symbol" validate:"required,max=5"`
	Limit  int    `json:"limit" default:"10" validate:"gte=1,lte=50"`
	Kind   string `json:"kind" default:"spot" validate:"oneof=spot perp"`
}

func TestValidateStructAppliesDefaults(t *testing.T) {
	req := &quoteRequest{Symbol: "AAPL"}
	require.Nil(t, ValidateStruct(context.Background(), req))
	assert.Equal(t, 10, req.Limit)
	assert.Equal(t, "spot", req.Kind)
}

func TestValidateStructReportsJSONNames(t *testing.T) {
	errs := ValidateStruct(context.Background(), &quoteRequest{Symbol: "TOOLONG", Limit: 90, Kind: "swap"})
	require.Len(t, errs, 3)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "ERR_MAX", byField["symbol"].Code)
	assert.Equal(t, "symbol must be at most 5 characters", byField["symbol"].Message)
	assert.Equal(t, "ERR_LTE", byField["limit"].Code)
	assert.Equal(t, map[string]interface{}{"max": "50"}, byField["limit"].Params)
	assert.Equal(t, "kind must be one of: spot, perp", byField["kind"].Message)
}

func TestReadAndValidateRequestMalformed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"symbol":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	errs := ReadAndValidateRequest(c, &quoteRequest{})
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_MALFORMED", errs[0].Code)
}

func TestErrorEnvelope(t *testing.T) {
	appErr := NewAppError("ERR_INVALID_CANDLE", "", "bad candle", http.StatusBadRequest).WithParam("index", 3).WithError(errors.New("close <= 0"))
	env := ErrorEnvelope(appErr)
	assert.Equal(t, http.StatusBadRequest, env.Status)
	assert.Equal(t, "Bad Request", env.Message)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":400,"message":"Bad Request","data":[{"code":"ERR_INVALID_CANDLE","message":"bad candle","params":{"index":3}}]}`, string(raw))

	wrapped := ErrorEnvelope(errors.Join(errors.New("ctx"), ServiceUnavailableError("store down")))
	assert.Equal(t, http.StatusServiceUnavailable, wrapped.Status)

	assert.Equal(t, http.StatusInternalServerError, ErrorEnvelope(errors.New("boom")).Status)
	assert.ErrorContains(t, appErr, "close <= 0")
}

func TestAppErrorResponseWritesStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, TooManyRequestsError("slow down")))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ERR_RATE_LIMITED"`)
}

type routes struct{ path string }

func (r routes) RegisterRoutes(e *echo.Echo) {
	e.GET(r.path, func(c echo.Context) error { return SuccessResponse(c, r.path) })
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, error) { return false, nil }

func TestServerStack(t *testing.T) {
	srv := NewServer(Handlers{routes{"/health"}, routes{"/api/a"}, nil}, nil,
		WithMetricsPath("/metrics"),
		WithRateLimiter(denyAll{}),
	)
	e := srv.Echo()

	do := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	health := do("/health")
	assert.Equal(t, http.StatusOK, health.Code)
	assert.NotEmpty(t, health.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, "*", health.Header().Get(echo.HeaderAccessControlAllowOrigin))

	limited := do("/api/a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	var env struct {
		Status int        `json:"status"`
		Data   []AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(limited.Body.Bytes(), &env))
	assert.Equal(t, http.StatusTooManyRequests, env.Status)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "ERR_RATE_LIMITED", env.Data[0].Code)

	assert.Equal(t, http.StatusOK, do("/metrics").Code)
}

func TestClientSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "AAPL", r.URL.Query().Get("q"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["text"]})
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("missing"))
		}
	}))
	defer srv.Close()

	c := NewClient()
	var out map[string]string
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodPost,
		URL:         srv.URL + "/ok",
		QueryParams: map[string][]string{"q": {"AAPL"}},
		Body:        map[string]string{"text": "hi"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out["echo"])

	var se *StatusError
	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL + "/nope"}, nil)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "missing", se.Body)
	assert.False(t, se.Temporary())

	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL + "/busy"}, nil)
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Temporary())
}

func TestClientTransportErrorHidesQuery(t *testing.T) {
	c := NewClient(WithTimeout(time.Second))
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         "http://127.0.0.1:1/feed",
		QueryParams: map[string][]string{"apikey": {"hunter2"}},
	}, nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, err.Error(), "http://127.0.0.1:1/feed")

	var uerr *url.Error
	assert.ErrorAs(t, err, &uerr)
}
