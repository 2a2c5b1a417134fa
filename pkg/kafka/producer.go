package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON payloads. Safe for concurrent use.
type Producer struct {
	writer *kafka.Writer
	comp   string
}

// Message is one keyed payload for PublishBatch.
type Message struct {
	Key   []byte
	Value interface{}
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	if cfg.Async {
		w.Completion = func(msgs []kafka.Message, err error) {
			if err != nil && len(msgs) > 0 {
				producerMetrics().errors.WithLabelValues(msgs[0].Topic).Inc()
			}
		}
	}
	return &Producer{writer: w, comp: cfg.Compression}, nil
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

// Publish writes one message. Strings and byte slices are sent verbatim, anything else as JSON.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage backs the log collector, which has no key.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	now := start.UTC()

	out := make([]kafka.Message, 0, len(messages))
	var size int
	for _, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		out = append(out, kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: now})
		size += len(v)
	}

	err := p.writer.WriteMessages(ctx, out...)
	producerMetrics().observe(topic, p.comp, size, len(out), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %d message(s) to %s: %w", len(out), topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

type producerCollectors struct {
	messages *prometheus.CounterVec
	errors   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerOnce sync.Once
	producerCols *producerCollectors
)

func producerMetrics() *producerCollectors {
	producerOnce.Do(func() {
		producerCols = &producerCollectors{
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "candleinsight_kafka_producer_messages_total",
				Help: "Messages handed to the Kafka writer",
			}, []string{"topic", "compression", "result"}),
			errors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "candleinsight_kafka_producer_errors_total",
				Help: "Failed Kafka writes",
			}, []string{"topic"}),
			bytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "candleinsight_kafka_producer_bytes_total",
				Help: "Payload bytes handed to the Kafka writer",
			}, []string{"topic", "compression"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "candleinsight_kafka_producer_publish_seconds",
				Help:    "WriteMessages latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return producerCols
}

func (c *producerCollectors) observe(topic, comp string, size, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		c.errors.WithLabelValues(topic).Inc()
	}
	c.messages.WithLabelValues(topic, comp, result).Add(float64(count))
	c.bytes.WithLabelValues(topic, comp).Add(float64(size))
	c.latency.WithLabelValues(topic).Observe(dur.Seconds())
}
