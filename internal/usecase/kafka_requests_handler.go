package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"CandleInsight/internal/domain/models"
	domrepo "CandleInsight/internal/domain/repository"
	pkgkafka "CandleInsight/pkg/kafka"
	"CandleInsight/pkg/logger"
	"CandleInsight/pkg/queue"

	"github.com/segmentio/kafka-go"
)

// ResultPublisher is satisfied by both the Kafka producer and the Redis queue.
type ResultPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// AnalysisResult is written to the results topic for every consumed request.
type AnalysisResult struct {
	RequestID string          `json:"request_id,omitempty"`
	Symbol    string          `json:"symbol"`
	Insight   *models.Insight `json:"insight,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// analysisRequest is the wire payload: an analyze request plus an optional correlation id.
type analysisRequest struct {
	RequestID string `json:"request_id"`
	models.AnalyzeRequest
	WithNews bool `json:"with_news"`
}

// AnalysisRequestHandler consumes analyze requests and publishes insights keyed by symbol.
type AnalysisRequestHandler struct {
	topic        string
	resultsTopic string
	analyze      *AnalyzeUseCase
	pub          ResultPublisher
	metrics      domrepo.Metrics
	log          *logger.Logger
}

func NewAnalysisRequestHandler(topic, resultsTopic string, analyze *AnalyzeUseCase, pub ResultPublisher, metrics domrepo.Metrics, log *logger.Logger) *AnalysisRequestHandler {
	return &AnalysisRequestHandler{
		topic:        topic,
		resultsTopic: resultsTopic,
		analyze:      analyze,
		pub:          pub,
		metrics:      metrics,
		log:          log,
	}
}

func (h *AnalysisRequestHandler) Topic() string { return h.topic }

// Handle returns an error only when the result could not be published, so that
// the consumer retries. Bad requests are answered with an error result instead.
func (h *AnalysisRequestHandler) Handle(ctx context.Context, b []byte) error {
	start := time.Now()

	var req analysisRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		h.log.Warn("drop undecodable analysis request", logger.Error(err), logger.String("trace_id", pkgkafka.TraceID(ctx)))
		return nil
	}
	req.AnalyzeRequest.WithNews = req.WithNews
	if req.Timeframe == "" {
		req.Timeframe = "1D"
	}

	res := AnalysisResult{RequestID: req.RequestID, Symbol: strings.ToUpper(req.Symbol)}
	if strings.TrimSpace(req.Symbol) == "" {
		res.Error = "symbol required"
	} else if in, err := h.analyze.Analyze(ctx, req.AnalyzeRequest); err != nil {
		var invalid *models.InvalidInputError
		if !errors.Is(err, models.ErrInsufficientCandles) && !errors.As(err, &invalid) {
			return fmt.Errorf("analyze %s: %w", res.Symbol, err)
		}
		res.Error = err.Error()
	} else {
		res.Insight = in
	}

	if err := h.pub.Publish(ctx, h.resultsTopic, []byte(res.Symbol), res); err != nil {
		h.metrics.RecordError("results_publish")
		return fmt.Errorf("publish result: %w", err)
	}
	h.metrics.RecordMessageSent("results", res.Symbol)
	h.metrics.RecordLatency("consumer_handle", time.Since(start).Seconds())
	return nil
}

// ConsumerHooks is the hook chain for the request consumer: the trace id
// header goes into the handler context and every message that exhausted its
// retries is counted.
func ConsumerHooks(metrics domrepo.Metrics) pkgkafka.ConsumerHook {
	return pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.HookFuncs{
			Err: func(context.Context, string, kafka.Message, []byte, error) {
				metrics.RecordError("consumer_handle")
			},
		},
	)
}

var (
	_ pkgkafka.MessageHandler = (*AnalysisRequestHandler)(nil)
	_ queue.Handler           = (*AnalysisRequestHandler)(nil)
)
