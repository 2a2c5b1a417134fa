package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Handler processes raw message bodies for one topic.
// It has the same shape as the Kafka consumer handler so one implementation serves both transports.
type Handler interface {
	Topic() string
	Handle(ctx context.Context, body []byte) error
}

type Config struct {
	Prefix       string
	Workers      int           // workers per registered topic
	RetryMax     int           // failed attempts before a message goes to the dead list
	RetryDelay   time.Duration // first retry delay, doubled per attempt
	BlockTimeout time.Duration // BRPOP wait
	PollInterval time.Duration // how often due retries are moved back
}

func defaultConfig() *Config {
	return &Config{
		Prefix:       "candleinsight:queue",
		Workers:      2,
		RetryMax:     3,
		RetryDelay:   5 * time.Second,
		BlockTimeout: time.Second,
		PollInterval: time.Second,
	}
}

type Option func(*Config)

func WithPrefix(prefix string) Option {
	return func(c *Config) {
		if prefix != "" {
			c.Prefix = prefix
		}
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Workers = n
		}
	}
}

func WithRetry(max int, delay time.Duration) Option {
	return func(c *Config) {
		if max >= 0 {
			c.RetryMax = max
		}
		if delay > 0 {
			c.RetryDelay = delay
		}
	}
}

func WithBlockTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.BlockTimeout = d
		}
	}
}

// Envelope is what sits in the Redis lists.
type Envelope struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Key        string          `json:"key,omitempty"`
	Body       json.RawMessage `json:"body"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt int64           `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

func newEnvelope(topic string, key []byte, payload interface{}, now time.Time) (*Envelope, error) {
	var body json.RawMessage
	switch p := payload.(type) {
	case []byte:
		body = p
	case json.RawMessage:
		body = p
	default:
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = raw
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("payload for %s is not valid json", topic)
	}
	return &Envelope{
		ID:         uuid.NewString(),
		Topic:      topic,
		Key:        string(key),
		Body:       body,
		EnqueuedAt: now.UnixMilli(),
	}, nil
}

func decodeEnvelope(raw string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// retryAt doubles the delay per attempt, capped at 32x.
func retryAt(now time.Time, delay time.Duration, attempts int) time.Time {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 6 {
		attempts = 6
	}
	return now.Add(delay * time.Duration(1<<uint(attempts-1)))
}

func pendingKey(prefix, topic string) string { return prefix + ":" + topic + ":pending" }
func retryKey(prefix, topic string) string   { return prefix + ":" + topic + ":retry" }
func deadKey(prefix, topic string) string    { return prefix + ":" + topic + ":dead" }
