package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CandleInsight/internal/domain/models"
	"CandleInsight/pkg/cache"
	"CandleInsight/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreHeadlines(t *testing.T) {
	assert.Equal(t, 0.0, ScoreHeadlines(nil))
	assert.Equal(t, 0.0, ScoreHeadlines([]string{"Company holds annual meeting"}))
	assert.Equal(t, 1.0, ScoreHeadlines([]string{"Shares SURGE after earnings beat"}))
	assert.Equal(t, -1.0, ScoreHeadlines([]string{"Stock drops on weak guidance"}))
	// rally, strong / crash: (2-1)/3
	assert.Equal(t, 0.33, ScoreHeadlines([]string{"Strong rally continues", "Crypto crash spreads"}))
	// "highlights" matches "high"; a word counts once per headline
	assert.Equal(t, 1.0, ScoreHeadlines([]string{"Report highlights high demand"}))
}

func TestScoreHeadlinesBounded(t *testing.T) {
	words := append(append([]string{}, positiveWords...), negativeWords...)
	for i := range words {
		s := ScoreHeadlines(words[:i+1])
		assert.GreaterOrEqual(t, s, -1.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

type stubSource struct {
	name      string
	headlines []string
	err       error
	calls     int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Headlines(context.Context, string) ([]string, error) {
	s.calls++
	return s.headlines, s.err
}

func TestChainFetcherFallsThrough(t *testing.T) {
	failing := &stubSource{name: "a", err: errors.New("boom")}
	empty := &stubSource{name: "b", headlines: []string{"", "  "}}
	good := &stubSource{name: "c", headlines: []string{"Gain", "Loss", "Rise", "Growth", "Profit", "Steady", "Fall"}}
	last := &stubSource{name: "d", headlines: []string{"never"}}

	c := newChainFetcher(nil, failing, empty, good, last)
	c.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	r, err := c.Fetch(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", r.Symbol)
	assert.Equal(t, "c", r.Source)
	assert.Equal(t, []string{"Gain", "Loss", "Rise", "Growth", "Profit"}, r.Headlines)
	// scored over all seven: 4 positive, 2 negative
	assert.Equal(t, 0.33, r.SentimentScore)
	assert.Equal(t, int64(1_700_000_000_000), r.FetchedAt)
	assert.Zero(t, last.calls)
}

func TestChainFetcherAllFail(t *testing.T) {
	c := newChainFetcher(nil, &stubSource{name: "a", err: errors.New("down")})
	_, err := c.Fetch(context.Background(), "X")
	assert.Error(t, err)
}

func TestChainFetcherOrderFromConfig(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, []string{SourcePlaceholder}, NewChainFetcher(cfg, nil).Sources())

	cfg.News.NewsAPIKey = "n"
	cfg.News.AlphaVantageKey = "a"
	assert.Equal(t, []string{SourceNewsAPI, SourceAlphaVantage, SourcePlaceholder}, NewChainFetcher(cfg, nil).Sources())
}

func TestPlaceholderHeadlinesAreNeutral(t *testing.T) {
	r, err := NewChainFetcher(config.Default(), nil).Fetch(context.Background(), "btcusd")
	require.NoError(t, err)
	assert.Equal(t, SourcePlaceholder, r.Source)
	assert.Len(t, r.Headlines, 3)
	assert.Equal(t, "BTCUSD shows mixed trading signals amid market uncertainty", r.Headlines[0])
	assert.Equal(t, 0.0, r.SentimentScore)
	assert.Equal(t, models.SentimentNeutral, r.Sentiment().Sentiment)
}

func TestNewsAPIFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "TSLA", q.Get("q"))
		assert.Equal(t, "publishedAt", q.Get("sortBy"))
		assert.Equal(t, "10", q.Get("pageSize"))
		assert.Equal(t, "key", q.Get("apiKey"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"articles": []map[string]string{{"title": "TSLA rally"}, {"title": "TSLA recall"}},
		})
	}))
	defer srv.Close()

	got, err := NewNewsAPIFetcher(srv.URL, "key", time.Second).Headlines(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Equal(t, []string{"TSLA rally", "TSLA recall"}, got)
}

func TestAlphaVantageFetcherTruncatesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "NEWS_SENTIMENT", q.Get("function"))
		assert.Equal(t, "IBM", q.Get("tickers"))
		assert.Equal(t, "av", q.Get("apikey"))
		feed := make([]map[string]string, 15)
		for i := range feed {
			feed[i] = map[string]string{"title": fmt.Sprintf("item %d", i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"feed": feed})
	}))
	defer srv.Close()

	got, err := NewAlphaVantageFetcher(srv.URL, "av", time.Second).Headlines(context.Background(), "IBM")
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Equal(t, "item 9", got[9])
}

func TestNewsAPIFetcherErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewNewsAPIFetcher(srv.URL, "key", time.Second).Headlines(context.Background(), "TSLA")
	assert.Error(t, err)
}

func TestCachedFetcher(t *testing.T) {
	src := &stubSource{name: "s", headlines: []string{"Upgrade for ACME"}}
	mem := cache.NewMemoryCache()
	defer mem.Close()

	f := NewCachedFetcher(newChainFetcher(nil, src), mem, time.Minute)
	for i := 0; i < 3; i++ {
		r, err := f.Fetch(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, "ACME", r.Symbol)
		assert.Equal(t, 1.0, r.SentimentScore)
	}
	assert.Equal(t, 1, src.calls)
}

func TestNewsAPIFetcherErrorOmitsKey(t *testing.T) {
	_, err := NewNewsAPIFetcher("http://127.0.0.1:1/v2/everything", "news-key", time.Second).Headlines(context.Background(), "TSLA")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "news-key")
}
