package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct {
	topic string
	panic bool
}

func (h echoHandler) Topic() string { return h.topic }

func (h echoHandler) Handle(_ context.Context, body []byte) error {
	if h.panic {
		panic("bad payload")
	}
	return nil
}

func TestNewEnvelope(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	env, err := newEnvelope("analyze", []byte("AAPL"), map[string]string{"symbol": "AAPL"}, now)
	require.NoError(t, err)
	assert.Equal(t, "analyze", env.Topic)
	assert.Equal(t, "AAPL", env.Key)
	assert.JSONEq(t, `{"symbol":"AAPL"}`, string(env.Body))
	assert.Equal(t, int64(1_700_000_000_000), env.EnqueuedAt)
	assert.Len(t, env.ID, 36)

	raw, err := newEnvelope("analyze", nil, []byte(`{"symbol":"MSFT"}`), now)
	require.NoError(t, err)
	assert.Equal(t, `{"symbol":"MSFT"}`, string(raw.Body))

	_, err = newEnvelope("analyze", nil, []byte("not json"), now)
	assert.Error(t, err)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := newEnvelope("results", nil, map[string]int{"n": 1}, time.Now())
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	back, err := decodeEnvelope(string(data))
	require.NoError(t, err)
	assert.Equal(t, env.ID, back.ID)
	assert.JSONEq(t, `{"n":1}`, string(back.Body))

	_, err = decodeEnvelope("{")
	assert.Error(t, err)
}

func TestRetryAt(t *testing.T) {
	now := time.Unix(0, 0)
	assert.Equal(t, now.Add(time.Second), retryAt(now, time.Second, 0))
	assert.Equal(t, now.Add(time.Second), retryAt(now, time.Second, 1))
	assert.Equal(t, now.Add(4*time.Second), retryAt(now, time.Second, 3))
	assert.Equal(t, now.Add(32*time.Second), retryAt(now, time.Second, 10))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "ci:analyze:pending", pendingKey("ci", "analyze"))
	assert.Equal(t, "ci:analyze:retry", retryKey("ci", "analyze"))
	assert.Equal(t, "ci:analyze:dead", deadKey("ci", "analyze"))
}

func TestOptions(t *testing.T) {
	q := NewRedisQueue(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), nil,
		WithPrefix("p"), WithWorkers(3), WithRetry(0, 2*time.Second), WithBlockTimeout(0))
	assert.Equal(t, "p", q.cfg.Prefix)
	assert.Equal(t, 3, q.cfg.Workers)
	assert.Equal(t, 0, q.cfg.RetryMax)
	assert.Equal(t, 2*time.Second, q.cfg.RetryDelay)
	assert.Equal(t, time.Second, q.cfg.BlockTimeout, "zero keeps the default")
}

func TestRegisterHandlerKeepsFirst(t *testing.T) {
	q := NewRedisQueue(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), nil)
	q.RegisterHandler(echoHandler{topic: "a"})
	q.RegisterHandler(echoHandler{topic: "a", panic: true})
	require.Len(t, q.handlers, 1)
	assert.False(t, q.handlers["a"].(echoHandler).panic)
}

func TestHandleRecoversPanic(t *testing.T) {
	q := NewRedisQueue(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), nil)
	err := q.handle(context.Background(), echoHandler{topic: "a", panic: true}, &Envelope{Body: []byte(`{}`)})
	assert.ErrorContains(t, err, "handler panic")
}

func TestStartFailsWithoutRedis(t *testing.T) {
	q := NewRedisQueue(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}), nil)
	q.RegisterHandler(echoHandler{topic: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, q.Start(ctx))
	assert.NoError(t, q.Stop(ctx), "stop on a queue that never started is a no-op")
}
