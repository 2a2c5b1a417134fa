package api

import (
	"errors"
	"net/http"

	"CandleInsight/internal/domain/models"
	domrepo "CandleInsight/internal/domain/repository"
	"CandleInsight/internal/usecase"
	xhttp "CandleInsight/pkg/http"
	"CandleInsight/pkg/http/middleware"
	xlogger "CandleInsight/pkg/logger"

	"github.com/labstack/echo/v4"
)

const (
	ServiceName    = "candle-insight"
	ServiceVersion = "1.0.0"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// InsightsHandler serves the synchronous prediction API.
type InsightsHandler struct {
	logger  *xlogger.Logger
	analyze *usecase.AnalyzeUseCase
	stored  *usecase.StoredAnalysisUseCase
}

// NewInsightsHandler wires the handlers. stored may be nil when no feature store is configured.
func NewInsightsHandler(logger *xlogger.Logger, analyze *usecase.AnalyzeUseCase, stored *usecase.StoredAnalysisUseCase) *InsightsHandler {
	return &InsightsHandler{logger: logger, analyze: analyze, stored: stored}
}

func (h *InsightsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.POST("/analyze", h.Analyze)
	g.GET("/news/:symbol", h.News)
	g.GET("/analyze/stored", h.AnalyzeStored)
}

func (h *InsightsHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Service: ServiceName, Version: ServiceVersion})
}

// Predict runs the core on the posted candles without news.
func (h *InsightsHandler) Predict(c echo.Context) error {
	return h.run(c, false)
}

// Analyze is Predict plus best-effort news sentiment.
func (h *InsightsHandler) Analyze(c echo.Context) error {
	return h.run(c, true)
}

func (h *InsightsHandler) run(c echo.Context, withNews bool) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.WithNews = withNews

	in, err := h.analyze.Analyze(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "analyze", err)
	}
	return xhttp.SuccessResponse(c, in)
}

func (h *InsightsHandler) News(c echo.Context) error {
	req := &models.NewsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rep, err := h.analyze.News(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "news", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, rep)
}

// AnalyzeStored runs the core on the latest candles from the feature store.
func (h *InsightsHandler) AnalyzeStored(c echo.Context) error {
	req := &models.StoredAnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	in, err := h.stored.Analyze(c.Request().Context(), usecase.StoredAnalysisParams{
		Symbol:    req.Symbol,
		N:         req.N,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
	})
	if err != nil {
		return h.fail(c, "analyze_stored", err)
	}
	return xhttp.SuccessResponse(c, in)
}

func (h *InsightsHandler) fail(c echo.Context, op string, err error) error {
	appErr := MapError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.String("request_id", middleware.GetRequestID(c)), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// MapError translates usecase errors into transport errors.
func MapError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var invalid *models.InvalidInputError
	switch {
	case errors.Is(err, models.ErrInsufficientCandles):
		return xhttp.NewAppError("ERR_INSUFFICIENT_CANDLES", "candles", "At least 5 candles required for prediction", http.StatusBadRequest).
			WithParam("min", models.MinCandles)
	case errors.As(err, &invalid):
		return xhttp.NewAppError("ERR_INVALID_CANDLE", "candles", invalid.Error(), http.StatusBadRequest).
			WithParam("index", invalid.Index).
			WithParam("field", invalid.Field)
	case errors.Is(err, usecase.ErrSymbolRequired):
		return xhttp.NewAppError("ERR_REQUIRED", "symbol", "symbol is required", http.StatusBadRequest)
	case errors.Is(err, usecase.ErrStoreUnavailable), errors.Is(err, usecase.ErrNewsUnavailable):
		return xhttp.ServiceUnavailableError(err.Error())
	default:
		return xhttp.InternalError("analysis failed").WithError(err)
	}
}
