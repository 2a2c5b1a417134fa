package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"CandleInsight/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisQueue moves JSON messages through Redis lists: LPUSH to enqueue, BRPOP to consume,
// a sorted set for delayed retries and a dead list once retries run out.
type RedisQueue struct {
	client   *redis.Client
	cfg      *Config
	log      *logger.Logger
	handlers map[string]Handler
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRedisQueue(client *redis.Client, log *logger.Logger, opts ...Option) *RedisQueue {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisQueue{
		client:   client,
		cfg:      cfg,
		log:      log,
		handlers: make(map[string]Handler),
		now:      time.Now,
	}
}

// RegisterHandler must be called before Start.
func (q *RedisQueue) RegisterHandler(h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.handlers[h.Topic()]; ok {
		q.log.Warn("queue: handler already registered", logger.String("topic", h.Topic()))
		return
	}
	q.handlers[h.Topic()] = h
}

// Enqueue pushes payload onto topic. []byte and json.RawMessage are sent as is.
func (q *RedisQueue) Enqueue(ctx context.Context, topic string, payload interface{}) error {
	return q.Publish(ctx, topic, nil, payload)
}

// Publish matches the Kafka producer signature so the queue can carry results too.
func (q *RedisQueue) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	env, err := newEnvelope(topic, key, value, q.now())
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := q.client.LPush(ctx, pendingKey(q.cfg.Prefix, topic), raw).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", topic, err)
	}
	return nil
}

// Depth reports pending, retrying and dead message counts for topic.
func (q *RedisQueue) Depth(ctx context.Context, topic string) (pending, retrying, dead int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, pendingKey(q.cfg.Prefix, topic))
	r := pipe.ZCard(ctx, retryKey(q.cfg.Prefix, topic))
	d := pipe.LLen(ctx, deadKey(q.cfg.Prefix, topic))
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("queue depth %s: %w", topic, err)
	}
	return p.Val(), r.Val(), d.Val(), nil
}

// Start pings Redis and launches workers for every registered topic.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	q.cancel = stop
	q.running = true

	for topic, h := range q.handlers {
		for i := 0; i < q.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.work(runCtx, topic, h)
		}
		q.wg.Add(1)
		go q.promoteRetries(runCtx, topic)
		q.log.Info("queue: consuming",
			logger.String("topic", topic),
			logger.Int("workers", q.cfg.Workers),
			logger.String("addr", q.client.Options().Addr))
	}
	return nil
}

// Stop cancels the workers and waits for in-flight messages, bounded by ctx.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.log.Info("queue: stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	}
}

func (q *RedisQueue) work(ctx context.Context, topic string, h Handler) {
	defer q.wg.Done()
	key := pendingKey(q.cfg.Prefix, topic)
	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, q.cfg.BlockTimeout, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.log.Error("queue: brpop", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		q.process(ctx, topic, h, res[1])
	}
}

func (q *RedisQueue) process(ctx context.Context, topic string, h Handler, raw string) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		q.log.Error("queue: drop undecodable message", logger.String("topic", topic), logger.Error(err))
		q.bury(topic, raw)
		return
	}

	err = q.handle(ctx, h, env)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		// shutting down: put it back for the next consumer
		_ = q.client.RPush(context.Background(), pendingKey(q.cfg.Prefix, topic), raw).Err()
		return
	}

	env.Attempts++
	env.LastError = err.Error()
	data, _ := json.Marshal(env)
	if env.Attempts > q.cfg.RetryMax {
		q.log.Error("queue: retries exhausted",
			logger.String("topic", topic),
			logger.String("id", env.ID),
			logger.Int("attempts", env.Attempts),
			logger.Error(err))
		q.bury(topic, string(data))
		return
	}

	at := retryAt(q.now(), q.cfg.RetryDelay, env.Attempts)
	q.log.Warn("queue: retry scheduled",
		logger.String("topic", topic),
		logger.String("id", env.ID),
		logger.Int("attempt", env.Attempts),
		logger.Error(err))
	if zerr := q.client.ZAdd(context.Background(), retryKey(q.cfg.Prefix, topic), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: data,
	}).Err(); zerr != nil {
		q.log.Error("queue: schedule retry", logger.String("id", env.ID), logger.Error(zerr))
	}
}

func (q *RedisQueue) handle(ctx context.Context, h Handler, env *Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, env.Body)
}

func (q *RedisQueue) bury(topic, raw string) {
	if err := q.client.LPush(context.Background(), deadKey(q.cfg.Prefix, topic), raw).Err(); err != nil {
		q.log.Error("queue: dead letter", logger.String("topic", topic), logger.Error(err))
	}
}

// promoteRetries moves due retries back onto the pending list. ZREM decides
// which replica owns a member, so each retry is re-queued once.
func (q *RedisQueue) promoteRetries(ctx context.Context, topic string) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	rkey, pkey := retryKey(q.cfg.Prefix, topic), pendingKey(q.cfg.Prefix, topic)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		due, err := q.client.ZRangeByScore(ctx, rkey, &redis.ZRangeBy{
			Min: "0",
			Max: strconv.FormatInt(q.now().UnixMilli(), 10),
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				q.log.Error("queue: fetch retries", logger.String("topic", topic), logger.Error(err))
			}
			continue
		}
		for _, member := range due {
			removed, err := q.client.ZRem(ctx, rkey, member).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := q.client.LPush(ctx, pkey, member).Err(); err != nil {
				q.log.Error("queue: requeue retry", logger.String("topic", topic), logger.Error(err))
			}
		}
	}
}
