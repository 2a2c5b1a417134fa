package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Symbol    string   `json:"symbol"`
	Headlines []string `json:"headlines"`
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "news:AAPL", report{Symbol: "AAPL", Headlines: []string{"a"}}, time.Minute))

	var got report
	require.NoError(t, c.Get(ctx, "news:AAPL", &got))
	assert.Equal(t, report{Symbol: "AAPL", Headlines: []string{"a"}}, got)

	var s string
	require.NoError(t, c.Set(ctx, "text", "hello", time.Minute))
	require.NoError(t, c.Get(ctx, "text", &s))
	assert.Equal(t, "hello", s)

	assert.ErrorIs(t, c.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	ok, _ := c.Exists(ctx, "k")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	var s string
	assert.ErrorIs(t, c.Get(ctx, "k", &s), ErrCacheMiss)
	ok, _ = c.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", "2", time.Minute))
	time.Sleep(time.Millisecond)
	var s string
	require.NoError(t, c.Get(ctx, "a", &s))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "c", "3", time.Minute))

	assert.Equal(t, 2, c.Len())
	assert.ErrorIs(t, c.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "a", &s))
}

func TestMemoryCacheIncrement(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	n, err := c.Increment(ctx, "hits")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Increment(ctx, "hits")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, c.Set(ctx, "word", "abc", time.Minute))
	_, err = c.Increment(ctx, "word")
	assert.Error(t, err)
}

func TestRemember(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (report, error) {
		calls++
		return report{Symbol: "MSFT"}, nil
	}

	v, hit, err := Remember(ctx, c, "k", time.Minute, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "MSFT", v.Symbol)

	v, hit, err = Remember(ctx, c, "k", time.Minute, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "MSFT", v.Symbol)
	assert.Equal(t, 1, calls)

	_, _, err = Remember(ctx, c, "other", time.Minute, func(context.Context) (report, error) {
		return report{}, errors.New("down")
	})
	assert.Error(t, err)
	ok, _ := c.Exists(ctx, "other")
	assert.False(t, ok)

	v, _, err = Remember[report](ctx, nil, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "MSFT", v.Symbol)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "news:AAPL", GenerateKey("news", "AAPL"))
	assert.Equal(t, "explain:gemini-pro:3", GenerateKey("explain", "gemini-pro", 3))
	assert.Len(t, HashKey("prompt"), 32)
}
