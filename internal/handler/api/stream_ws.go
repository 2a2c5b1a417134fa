package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"CandleInsight/internal/domain/models"
	"CandleInsight/internal/usecase"
	xhttp "CandleInsight/pkg/http"
	xlogger "CandleInsight/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = 30 * time.Second
	wsReadLimit   = 1 << 20
	wsSendBacklog = 16
)

// streamRequest is one text frame from the client.
type streamRequest struct {
	RequestID string `json:"request_id,omitempty"`
	models.AnalyzeRequest
	WithNews bool `json:"with_news"`
}

type streamReply struct {
	RequestID string `json:"request_id,omitempty"`
	xhttp.APIResponse
}

// StreamHandler serves GET /ws/analyze: every text frame is an analyze
// request, every reply an insight envelope or an error envelope.
type StreamHandler struct {
	logger   *xlogger.Logger
	analyze  *usecase.AnalyzeUseCase
	upgrader websocket.Upgrader
}

// NewStreamHandler accepts upgrades from origins, or from anywhere when origins contains "*".
func NewStreamHandler(logger *xlogger.Logger, analyze *usecase.AnalyzeUseCase, origins []string) *StreamHandler {
	return &StreamHandler{
		logger:  logger,
		analyze: analyze,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/analyze", h.Serve)
}

func (h *StreamHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	send := make(chan streamReply, wsSendBacklog)
	done := make(chan struct{})
	go h.writePump(conn, send, done)

	h.readPump(ctx, conn, send)
	close(send)
	<-done
	return nil
}

func (h *StreamHandler) readPump(ctx context.Context, conn *websocket.Conn, send chan<- streamReply) {
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read", xlogger.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		reply := h.handleFrame(ctx, msg)
		select {
		case send <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (h *StreamHandler) handleFrame(ctx context.Context, msg []byte) streamReply {
	var req streamRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return streamReply{APIResponse: xhttp.NewAPIResponse(http.StatusBadRequest, []xhttp.ValidationError{{
			Code:    "ERR_MALFORMED",
			Message: "frame is not a valid analyze request",
		}})}
	}
	if verr := xhttp.ValidateStruct(ctx, &req.AnalyzeRequest); verr != nil {
		return streamReply{RequestID: req.RequestID, APIResponse: xhttp.NewAPIResponse(http.StatusBadRequest, verr)}
	}
	req.AnalyzeRequest.WithNews = req.WithNews

	in, err := h.analyze.Analyze(ctx, req.AnalyzeRequest)
	if err != nil {
		appErr := MapError(err)
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error("websocket analyze failed", xlogger.Error(err))
		}
		return streamReply{RequestID: req.RequestID, APIResponse: xhttp.ErrorEnvelope(appErr)}
	}
	return streamReply{RequestID: req.RequestID, APIResponse: xhttp.NewAPIResponse(http.StatusOK, in)}
}

func (h *StreamHandler) writePump(conn *websocket.Conn, send <-chan streamReply, done chan<- struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		drain(send)
		close(done)
	}()

	for {
		select {
		case reply, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(reply); err != nil {
				h.logger.Warn("websocket write", xlogger.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain unblocks the reader until it notices the closed connection.
func drain(send <-chan streamReply) {
	for range send {
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
