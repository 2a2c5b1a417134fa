package usecase

import (
	"context"
	"fmt"
	"time"

	"CandleInsight/internal/domain/models"
	domrepo "CandleInsight/internal/domain/repository"
)

const (
	ArchiveNone       = "none"
	ArchiveKafka      = "kafka"
	ArchiveClickHouse = "clickhouse"
)

// InsightRecorder routes insights to the configured archive backend.
type InsightRecorder struct {
	pub     domrepo.InsightPublisher
	store   domrepo.InsightStorage
	metrics domrepo.Metrics
	backend string
}

func NewInsightRecorder(pub domrepo.InsightPublisher, store domrepo.InsightStorage, metrics domrepo.Metrics, backend string) *InsightRecorder {
	if backend == "" {
		backend = ArchiveNone
	}
	return &InsightRecorder{pub: pub, store: store, metrics: metrics, backend: backend}
}

func (r *InsightRecorder) Backend() string { return r.backend }

// Record archives one insight. The "none" backend accepts and drops it.
func (r *InsightRecorder) Record(ctx context.Context, in *models.Insight) error {
	if in == nil {
		return fmt.Errorf("insight is nil")
	}
	start := time.Now()
	var err error

	switch r.backend {
	case ArchiveNone:
		return nil
	case ArchiveKafka:
		if r.pub == nil {
			return fmt.Errorf("kafka archive not configured")
		}
		err = r.pub.Publish(ctx, in)
	case ArchiveClickHouse:
		if r.store == nil {
			return fmt.Errorf("clickhouse archive not configured")
		}
		err = r.store.Store(ctx, in)
	default:
		err = fmt.Errorf("unknown backend: %s", r.backend)
	}

	if err != nil {
		r.metrics.RecordError("archive")
		return fmt.Errorf("archive insight: %w", err)
	}
	r.metrics.RecordMessageSent(r.backend, in.Symbol)
	r.metrics.RecordLatency("archive", time.Since(start).Seconds())
	return nil
}

func (r *InsightRecorder) RecordBatch(ctx context.Context, ins []*models.Insight) error {
	if len(ins) == 0 || r.backend == ArchiveNone {
		return nil
	}
	start := time.Now()
	var err error

	switch r.backend {
	case ArchiveKafka:
		if r.pub == nil {
			return fmt.Errorf("kafka archive not configured")
		}
		err = r.pub.PublishBatch(ctx, ins)
	case ArchiveClickHouse:
		if r.store == nil {
			return fmt.Errorf("clickhouse archive not configured")
		}
		err = r.store.StoreBatch(ctx, ins)
	default:
		err = fmt.Errorf("unknown backend: %s", r.backend)
	}

	if err != nil {
		r.metrics.RecordError("archive_batch")
		return fmt.Errorf("archive batch: %w", err)
	}
	for _, in := range ins {
		r.metrics.RecordMessageSent(r.backend, in.Symbol)
	}
	r.metrics.RecordLatency("archive_batch", time.Since(start).Seconds())
	return nil
}

// Close releases whichever backends were supplied.
func (r *InsightRecorder) Close() {
	if r.pub != nil {
		_ = r.pub.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}
