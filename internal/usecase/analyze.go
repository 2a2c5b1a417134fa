package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"CandleInsight/internal/domain/models"
	domrepo "CandleInsight/internal/domain/repository"
	domsvc "CandleInsight/internal/domain/service"
	"CandleInsight/pkg/logger"

	"github.com/google/uuid"
)

var ErrNewsUnavailable = errors.New("news source not configured")

// InsightSink receives every generated insight. Implementations must not block the caller for long.
type InsightSink interface {
	Record(ctx context.Context, in *models.Insight) error
}

// AnalyzeUseCase turns a candle window into an Insight: core prediction,
// optional news sentiment and a human explanation.
type AnalyzeUseCase struct {
	pipeline    *Pipeline
	explainer   domsvc.Explainer
	news        domsvc.NewsFetcher
	sink        InsightSink
	metrics     domrepo.Metrics
	log         *logger.Logger
	newsTimeout time.Duration
	now         func() time.Time
}

type AnalyzeOption func(*AnalyzeUseCase)

// WithInsightSink archives each insight after it is built. Sink errors are logged, not returned.
func WithInsightSink(s InsightSink) AnalyzeOption {
	return func(uc *AnalyzeUseCase) { uc.sink = s }
}

// WithNewsTimeout bounds the best-effort news lookup.
func WithNewsTimeout(d time.Duration) AnalyzeOption {
	return func(uc *AnalyzeUseCase) {
		if d > 0 {
			uc.newsTimeout = d
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) AnalyzeOption {
	return func(uc *AnalyzeUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func NewAnalyzeUseCase(p *Pipeline, explainer domsvc.Explainer, news domsvc.NewsFetcher, metrics domrepo.Metrics, log *logger.Logger, opts ...AnalyzeOption) *AnalyzeUseCase {
	uc := &AnalyzeUseCase{
		pipeline:    p,
		explainer:   explainer,
		news:        news,
		metrics:     metrics,
		log:         log,
		newsTimeout: 5 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Analyze validates the window, runs the core and decorates the result.
// Only input contract violations are returned as errors.
func (uc *AnalyzeUseCase) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.Insight, error) {
	if len(req.Candles) < models.MinCandles {
		return nil, models.ErrInsufficientCandles
	}
	if err := models.ValidateCandles(req.Candles); err != nil {
		uc.metrics.RecordError("invalid_candles")
		return nil, err
	}

	start := time.Now()
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	var newsCh chan *models.NewsSentiment
	if req.WithNews && uc.news != nil {
		newsCh = make(chan *models.NewsSentiment, 1)
		go func() { newsCh <- uc.fetchSentiment(ctx, symbol) }()
	}

	analysis := uc.pipeline.Evaluate(req.Candles)
	pred := analysis.Prediction
	uc.metrics.RecordPrediction(string(pred.Direction), pred.ModelAgreement)
	uc.metrics.RecordLatency("pipeline", time.Since(start).Seconds())

	var sentiment *models.NewsSentiment
	if newsCh != nil {
		sentiment = <-newsCh
	}

	explanation, err := uc.explainer.Explain(ctx, domsvc.ExplainInput{
		Symbol:     symbol,
		Prediction: pred,
		Indicators: analysis.Indicators,
		Sentiment:  sentiment,
		APIKey:     req.GeminiAPIKey,
	})
	if err != nil {
		// the fallback explainer never fails; a bare remote one might
		uc.log.Warn("explanation unavailable", logger.String("symbol", symbol), logger.Error(err))
		uc.metrics.RecordError("explain")
	}

	now := uc.now()
	in := &models.Insight{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Timeframe: req.Timeframe,
		Prediction: models.PredictionView{
			Direction:      pred.Direction,
			Confidence:     pred.Confidence,
			Probabilities:  pred.Probabilities,
			ModelAgreement: pred.ModelAgreement,
			PatternSignal:  pred.PatternSignal,
			RuleSignal:     pred.RuleSignal,
			Timestamp:      now.UnixMilli(),
		},
		TechnicalAnalysis: models.NewTechnicalAnalysis(analysis.Indicators),
		Sentiment:         sentiment,
		Explanation:       explanation,
		RiskLevel:         analysis.Risk.Level,
		Warnings:          analysis.Risk.Warnings,
		GeneratedAt:       now.UnixMilli(),
	}

	if uc.sink != nil {
		if err := uc.sink.Record(ctx, in); err != nil {
			uc.log.Warn("archive insight", logger.String("id", in.ID), logger.Error(err))
		}
	}

	uc.metrics.RecordLatency("analyze", time.Since(start).Seconds())
	uc.log.Debug("insight generated",
		logger.String("symbol", symbol),
		logger.String("direction", string(pred.Direction)),
		logger.Float64("confidence", pred.Confidence),
		logger.Int("candles", len(req.Candles)),
	)
	return in, nil
}

// News returns the raw headline report for a symbol.
func (uc *AnalyzeUseCase) News(ctx context.Context, symbol string) (models.NewsReport, error) {
	if uc.news == nil {
		return models.NewsReport{}, ErrNewsUnavailable
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	start := time.Now()
	rep, err := uc.news.Fetch(ctx, symbol)
	uc.metrics.RecordLatency("news", time.Since(start).Seconds())
	if err != nil {
		uc.metrics.RecordError("news")
		return models.NewsReport{}, fmt.Errorf("fetch news for %s: %w", symbol, err)
	}
	return rep, nil
}

// fetchSentiment is best effort: any failure yields nil.
func (uc *AnalyzeUseCase) fetchSentiment(ctx context.Context, symbol string) *models.NewsSentiment {
	ctx, cancel := context.WithTimeout(ctx, uc.newsTimeout)
	defer cancel()
	rep, err := uc.news.Fetch(ctx, symbol)
	if err != nil {
		uc.log.Warn("news sentiment skipped", logger.String("symbol", symbol), logger.Error(err))
		uc.metrics.RecordFallback("news")
		return nil
	}
	s := rep.Sentiment()
	return &s
}
