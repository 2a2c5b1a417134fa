package usecase

import (
	"context"
	"errors"
	"fmt"

	"CandleInsight/internal/domain/models"
	domrepo "CandleInsight/internal/domain/repository"
)

const maxStoredCandles = 5000

var (
	ErrStoreUnavailable = errors.New("feature store not configured")
	ErrSymbolRequired   = errors.New("symbol required")
)

// StoredAnalysisUseCase runs the analysis on candles read from the feature store.
type StoredAnalysisUseCase struct {
	store   domrepo.FeatureStore
	analyze *AnalyzeUseCase
}

func NewStoredAnalysisUseCase(store domrepo.FeatureStore, analyze *AnalyzeUseCase) *StoredAnalysisUseCase {
	return &StoredAnalysisUseCase{store: store, analyze: analyze}
}

type StoredAnalysisParams struct {
	Symbol    string
	N         int
	Timeframe domrepo.Timeframe
}

func (uc *StoredAnalysisUseCase) Analyze(ctx context.Context, p StoredAnalysisParams) (*models.Insight, error) {
	if uc == nil || uc.store == nil {
		return nil, ErrStoreUnavailable
	}
	if p.Symbol == "" {
		return nil, ErrSymbolRequired
	}
	if p.N <= 0 {
		p.N = 200
	}
	if p.N > maxStoredCandles {
		p.N = maxStoredCandles
	}
	p.Timeframe = domrepo.NormalizeTimeframe(string(p.Timeframe))

	candles, err := uc.store.GetLatestNCandles(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	return uc.analyze.Analyze(ctx, models.AnalyzeRequest{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Candles:   candles,
	})
}
