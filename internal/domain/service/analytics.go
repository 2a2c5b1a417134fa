package service

import (
	"context"

	"CandleInsight/internal/domain/models"
)

// ExplainInput carries everything a text generator may cite.
type ExplainInput struct {
	Symbol     string
	Prediction models.FusedPrediction
	Indicators models.IndicatorSet
	Sentiment  *models.NewsSentiment
	// APIKey overrides the configured remote key for one request.
	APIKey string
}

// Explainer turns a fused prediction into a short human explanation.
type Explainer interface {
	Explain(ctx context.Context, in ExplainInput) (string, error)
}

// NewsFetcher returns recent headlines and a lexical sentiment score for a symbol.
type NewsFetcher interface {
	Fetch(ctx context.Context, symbol string) (models.NewsReport, error)
}
