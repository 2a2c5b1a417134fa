package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CandleInsight/internal/domain/models"
	"CandleInsight/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, origins []string) *websocket.Conn {
	t.Helper()
	e := echo.New()
	NewStreamHandler(logger.NewNop(), newAnalyzeUseCase(fixedNews{}), origins).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/analyze"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

type streamEnvelope struct {
	RequestID string          `json:"request_id"`
	Status    int             `json:"status"`
	Data      json.RawMessage `json:"data"`
}

func TestStreamAnswersEachFrame(t *testing.T) {
	conn := dialStream(t, []string{"*"})

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"request_id": "r1",
		"symbol":     "aapl",
		"candles":    candles(30),
		"with_news":  true,
	}))
	var ok streamEnvelope
	require.NoError(t, conn.ReadJSON(&ok))
	assert.Equal(t, "r1", ok.RequestID)
	assert.Equal(t, http.StatusOK, ok.Status)

	var in models.Insight
	require.NoError(t, json.Unmarshal(ok.Data, &in))
	assert.Equal(t, "AAPL", in.Symbol)
	require.NotNil(t, in.Sentiment)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"request_id": "r2",
		"symbol":     "aapl",
		"candles":    candles(3),
	}))
	var short streamEnvelope
	require.NoError(t, conn.ReadJSON(&short))
	assert.Equal(t, "r2", short.RequestID)
	assert.Equal(t, http.StatusBadRequest, short.Status)
	assert.Contains(t, string(short.Data), "ERR_INSUFFICIENT_CANDLES")
}

func TestStreamRejectsMalformedFrames(t *testing.T) {
	conn := dialStream(t, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var bad streamEnvelope
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.Contains(t, string(bad.Data), "ERR_MALFORMED")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"request_id": "r3", "candles": candles(10)}))
	var invalid streamEnvelope
	require.NoError(t, conn.ReadJSON(&invalid))
	assert.Equal(t, "r3", invalid.RequestID)
	assert.Contains(t, string(invalid.Data), "ERR_REQUIRED")
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"chrome-extension://abc"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/analyze", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, check(req("chrome-extension://abc")))
	assert.True(t, check(req("")))
	assert.False(t, check(req("https://evil.example")))
	assert.True(t, originChecker([]string{"*"})(req("https://any.example")))
}
