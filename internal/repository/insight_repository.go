package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CandleInsight/internal/domain/models"
	"CandleInsight/internal/domain/repository"
	pkgch "CandleInsight/pkg/clickhouse"
	pkgkafka "CandleInsight/pkg/kafka"
)

const (
	insightColumns  = "id, symbol, timeframe, direction, confidence, prob_bullish, prob_bearish, prob_neutral, model_agreement, pattern_signal, rule_signal, rsi, risk_level, warnings, sentiment_score, explanation, generated_at"
	insightArgCount = 17
	insertChunkSize = 2000
)

// ClickHouseInsightStorage archives insights into a MergeTree table.
type ClickHouseInsightStorage struct {
	db    *sql.DB
	table string
}

var _ repository.InsightStorage = (*ClickHouseInsightStorage)(nil)

func NewClickHouseInsightStorage(ch *pkgch.Client, table string) *ClickHouseInsightStorage {
	return &ClickHouseInsightStorage{db: ch.DB(), table: ch.Table(table)}
}

func (s *ClickHouseInsightStorage) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createInsightsDDL(s.table)); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func createInsightsDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id String,
	symbol LowCardinality(String),
	timeframe LowCardinality(String),
	direction LowCardinality(String),
	confidence Float64,
	prob_bullish Float64,
	prob_bearish Float64,
	prob_neutral Float64,
	model_agreement Bool,
	pattern_signal LowCardinality(String),
	rule_signal LowCardinality(String),
	rsi Float64,
	risk_level LowCardinality(String),
	warnings Array(String),
	sentiment_score Nullable(Float64),
	explanation String,
	generated_at DateTime64(3)
) ENGINE = MergeTree
ORDER BY (symbol, generated_at)`, table)
}

func (s *ClickHouseInsightStorage) Store(ctx context.Context, in *models.Insight) error {
	return s.StoreBatch(ctx, []*models.Insight{in})
}

// StoreBatch inserts in multi-row VALUES chunks. Nil or unidentified insights are skipped.
func (s *ClickHouseInsightStorage) StoreBatch(ctx context.Context, ins []*models.Insight) error {
	for start := 0; start < len(ins); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(ins) {
			end = len(ins)
		}
		q, args := buildInsightInsert(s.table, ins[start:end])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert insights: %w", err)
		}
	}
	return nil
}

func buildInsightInsert(table string, ins []*models.Insight) (string, []interface{}) {
	values := make([]string, 0, len(ins))
	args := make([]interface{}, 0, len(ins)*insightArgCount)
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", insightArgCount), ", ") + ")"
	for _, in := range ins {
		if in == nil || in.ID == "" || in.Symbol == "" {
			continue
		}
		values = append(values, placeholder)
		args = append(args, insightRow(in)...)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, insightColumns, strings.Join(values, ", ")), args
}

func insightRow(in *models.Insight) []interface{} {
	p := in.Prediction
	var sentiment *float64
	if in.Sentiment != nil {
		score := in.Sentiment.Score
		sentiment = &score
	}
	warnings := in.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return []interface{}{
		in.ID,
		in.Symbol,
		in.Timeframe,
		string(p.Direction),
		p.Confidence,
		p.Probabilities.Bullish,
		p.Probabilities.Bearish,
		p.Probabilities.Neutral,
		p.ModelAgreement,
		string(p.PatternSignal),
		string(p.RuleSignal),
		in.TechnicalAnalysis.RSI,
		string(in.RiskLevel),
		warnings,
		sentiment,
		in.Explanation,
		time.UnixMilli(in.GeneratedAt).UTC(),
	}
}

func (s *ClickHouseInsightStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseInsightStorage) Close() error { return nil }

// messageProducer is the subset of the Kafka producer the publisher needs.
type messageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaInsightPublisher writes insights as JSON keyed by symbol.
type KafkaInsightPublisher struct {
	producer messageProducer
	topic    string
}

var _ repository.InsightPublisher = (*KafkaInsightPublisher)(nil)

// NewKafkaInsightPublisher shares producer with other components; Close leaves it open.
func NewKafkaInsightPublisher(producer *pkgkafka.Producer, topic string) *KafkaInsightPublisher {
	return &KafkaInsightPublisher{producer: producer, topic: topic}
}

func (p *KafkaInsightPublisher) Publish(ctx context.Context, in *models.Insight) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(in.Symbol), in); err != nil {
		return fmt.Errorf("publish insight %s: %w", in.ID, err)
	}
	return nil
}

func (p *KafkaInsightPublisher) PublishBatch(ctx context.Context, ins []*models.Insight) error {
	msgs := make([]pkgkafka.Message, 0, len(ins))
	for _, in := range ins {
		if in == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(in.Symbol), Value: in})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish %d insights: %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaInsightPublisher) Close() error { return nil }
