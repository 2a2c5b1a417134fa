package repository

import (
	"context"

	"CandleInsight/internal/domain/models"
)

// InsightPublisher ships generated insights to a message bus.
type InsightPublisher interface {
	Publish(ctx context.Context, in *models.Insight) error
	PublishBatch(ctx context.Context, ins []*models.Insight) error
	Close() error
}

// InsightStorage archives generated insights. Archived rows never feed back into scoring.
type InsightStorage interface {
	Init(ctx context.Context) error // ensure tables
	Store(ctx context.Context, in *models.Insight) error
	StoreBatch(ctx context.Context, ins []*models.Insight) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordPrediction(direction string, agreement bool)
	RecordFallback(collaborator string)
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
