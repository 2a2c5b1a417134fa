package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"CandleInsight/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from one topic. A returned error triggers a retry.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type job struct {
	topic string
	msg   kafka.Message
}

// Consumer reads registered topics in one consumer group and fans messages out
// to a worker pool. Messages of one partition are handled one at a time.
type Consumer struct {
	cfg      *ConsumerConfig
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	jobs     chan job
	dlq      *kafka.Writer
	hook     ConsumerHook
	log      *logger.Logger
	metrics  *consumerCollectors

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	stopFetch context.CancelFunc
	stopWork  context.CancelFunc
	fetchers  sync.WaitGroup
	workers   sync.WaitGroup
	stopOnce  sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		jobs:     make(chan job, cfg.BufferSize),
		hook:     NoopHook{},
		log:      cfg.Logger,
		metrics:  consumerMetrics(),
		locks:    make(map[string]*sync.Mutex),
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return c, nil
}

// RegisterHandler must be called before Start. The first handler for a topic wins.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("kafka consumer: handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// WithConsumerHook replaces the lifecycle hook. Must be called before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and returns once they are running.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	fetchCtx, stopFetch := context.WithCancel(ctx)
	workCtx, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	c.stopFetch, c.stopWork = stopFetch, stopWork

	for i := 0; i < c.cfg.Workers; i++ {
		c.workers.Add(1)
		go c.work(workCtx)
	}
	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			StartOffset: parseStartOffset(c.cfg.StartOffset),
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			MaxWait:     c.cfg.MaxWait,
		})
		c.readers[topic] = r
		c.fetchers.Add(1)
		go c.fetch(fetchCtx, topic, r)
	}
	c.log.Info("kafka consumer: started",
		logger.String("group", c.cfg.GroupID),
		logger.Int("topics", len(c.readers)),
		logger.Int("workers", c.cfg.Workers))
	return nil
}

// Stop stops fetching and lets workers finish the queued messages. When ctx
// expires first, in-flight handlers are cancelled and their messages left uncommitted.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.stopFetch == nil {
			return
		}
		c.stopFetch()
		c.fetchers.Wait()
		close(c.jobs)

		done := make(chan struct{})
		go func() {
			c.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			c.stopWork()
			<-done
			err = fmt.Errorf("timeout waiting for consumer workers: %w", ctx.Err())
		}
		c.stopWork()

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close dlq writer", logger.Error(cerr))
			}
		}
		if err == nil {
			c.log.Info("kafka consumer: stopped")
		}
	})
	return err
}

func (c *Consumer) fetch(ctx context.Context, topic string, r *kafka.Reader) {
	defer c.fetchers.Done()
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("kafka consumer: fetch", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case c.jobs <- job{topic: topic, msg: msg}:
			c.metrics.queueDepth.WithLabelValues(topic).Set(float64(len(c.jobs)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context) {
	defer c.workers.Done()
	for j := range c.jobs {
		c.process(ctx, j)
	}
}

func (c *Consumer) process(ctx context.Context, j job) {
	start := time.Now()
	lock := c.partitionLock(j.topic, j.msg.Partition)
	lock.Lock()
	defer lock.Unlock()

	attempts, err := c.handle(ctx, j)
	if errors.Is(err, context.Canceled) {
		// shutdown cut the handler short; the group redelivers the message
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		c.hook.OnError(ctx, j.topic, j.msg, j.msg.Value, err)
		c.log.Error("kafka consumer: handle failed",
			logger.String("topic", j.topic),
			logger.Int("partition", j.msg.Partition),
			logger.Int64("offset", j.msg.Offset),
			logger.Int("attempts", attempts),
			logger.Error(err))
		if !c.deadLetter(j, err) {
			// leave uncommitted: the group redelivers it after a rebalance or restart
			c.metrics.handled.WithLabelValues(j.topic, outcome).Inc()
			return
		}
		outcome = "dead_lettered"
	}

	c.commit(j)
	c.metrics.handled.WithLabelValues(j.topic, outcome).Inc()
	c.metrics.latency.WithLabelValues(j.topic).Observe(time.Since(start).Seconds())
}

// handle runs the handler with hooks, retrying with jittered backoff. Panics count as failures.
func (c *Consumer) handle(ctx context.Context, j job) (attempts int, err error) {
	h := c.handlers[j.topic]
	if h == nil {
		return 0, fmt.Errorf("no handler for topic %s", j.topic)
	}
	for {
		attempts++
		err = c.attempt(ctx, h, j)
		if err == nil || attempts > c.cfg.RetryMax || errors.Is(err, context.Canceled) {
			return attempts, err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-ctx.Done():
			return attempts, ctx.Err()
		}
	}
}

func (c *Consumer) attempt(ctx context.Context, h MessageHandler, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	hctx, km, data, err := c.hook.BeforeHandle(ctx, j.topic, j.msg, j.msg.Value)
	if err != nil {
		return err
	}
	err = h.Handle(hctx, data)
	c.hook.AfterHandle(hctx, j.topic, km, data, err)
	return err
}

func (c *Consumer) deadLetter(j job, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   j.msg.Key,
		Value: j.msg.Value,
		Headers: append(j.msg.Headers,
			kafka.Header{Key: "source_topic", Value: []byte(j.topic)},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
	if err != nil {
		c.log.Error("kafka consumer: dlq write", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(j job) {
	r := c.readers[j.topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, j.msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Warn("kafka consumer: commit failed", logger.String("topic", j.topic), logger.Int64("offset", j.msg.Offset), logger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// backoffWithJitter doubles min per attempt up to max and subtracts up to half of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	d := max
	if attempt < 31 {
		if exp := min << uint(attempt-1); exp > 0 && exp < max {
			d = exp
		}
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

type consumerCollectors struct {
	queueDepth *prometheus.GaugeVec
	handled    *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

var (
	consumerOnce       sync.Once
	consumerCols       *consumerCollectors
	consumerRegisterer prometheus.Registerer = prometheus.DefaultRegisterer
)

// SetConsumerMetricsRegisterer must be called before the first NewConsumer.
func SetConsumerMetricsRegisterer(reg prometheus.Registerer) { consumerRegisterer = reg }

func consumerMetrics() *consumerCollectors {
	consumerOnce.Do(func() {
		f := promauto.With(consumerRegisterer)
		consumerCols = &consumerCollectors{
			queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
				Name: "candleinsight_kafka_consumer_queue_depth",
				Help: "Fetched messages waiting for a worker",
			}, []string{"topic"}),
			handled: f.NewCounterVec(prometheus.CounterOpts{
				Name: "candleinsight_kafka_consumer_messages_total",
				Help: "Consumed messages by outcome",
			}, []string{"topic", "outcome"}),
			latency: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "candleinsight_kafka_consumer_handle_seconds",
				Help:    "Handling time per message including retries",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return consumerCols
}
