package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"CandleInsight/internal/domain/models"
	domsvc "CandleInsight/internal/domain/service"
	"CandleInsight/pkg/cache"
	"CandleInsight/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fallbackCounter struct {
	mu    sync.Mutex
	names []string
}

func (f *fallbackCounter) RecordPrediction(string, bool)    {}
func (f *fallbackCounter) RecordMessageSent(string, string) {}
func (f *fallbackCounter) RecordError(string)               {}
func (f *fallbackCounter) RecordLatency(string, float64)    {}
func (f *fallbackCounter) RecordFallback(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
}

func sampleInput() domsvc.ExplainInput {
	return domsvc.ExplainInput{
		Symbol: "AAPL",
		Prediction: models.FusedPrediction{
			Direction:  models.Bullish,
			Confidence: 56,
		},
		Indicators: models.IndicatorSet{
			RSI:    62.5,
			MACD:   models.MACD{MACD: 1.2, Signal: 1.08, Histogram: 0.12},
			EMA:    map[int]float64{9: 101, 20: 100, 50: 98},
			Volume: models.VolumeAnalysis{Trend: models.VolumeIncreasing, Ratio: 1.4},
		},
	}
}

func TestRuleExplanation(t *testing.T) {
	in := sampleInput()
	got := RuleExplanation(in.Prediction, in.Indicators)
	assert.Equal(t, "RSI at 62.5 shows bullish momentum. MACD histogram is positive, supporting bullish bias. The bullish prediction has moderate confidence at 56%.", got)
}

func TestRuleExplanationClauses(t *testing.T) {
	tests := []struct {
		name string
		ind  models.IndicatorSet
		conf float64
		want string
	}{
		{
			name: "oversold with falling volume",
			ind:  models.IndicatorSet{RSI: 25, Volume: models.VolumeAnalysis{Trend: models.VolumeDecreasing}},
			conf: 80,
			want: "RSI at 25.0 indicates oversold conditions, suggesting potential upward momentum. Declining volume suggests weakening conviction. The bearish prediction has high confidence at 80%.",
		},
		{
			name: "overbought and ema downtrend",
			ind:  models.IndicatorSet{RSI: 75, EMA: map[int]float64{20: 1, 50: 2}},
			conf: 40,
			want: "RSI at 75.0 shows overbought conditions, signaling possible reversal pressure. Short-term EMA below long-term EMA suggests downtrend. The bearish prediction has low confidence at 40%.",
		},
		{
			name: "bearish pressure with negative macd",
			ind:  models.IndicatorSet{RSI: 45, MACD: models.MACD{Histogram: -0.5}},
			conf: 50,
			want: "RSI at 45.0 indicates bearish pressure. MACD histogram is negative, indicating bearish momentum. The bearish prediction has low confidence at 50%.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.FusedPrediction{Direction: models.Bearish, Confidence: tt.conf}
			assert.Equal(t, tt.want, RuleExplanation(p, tt.ind))
		})
	}
}

func TestRuleExplainerNeverFails(t *testing.T) {
	text, err := NewRuleExplainer().Explain(context.Background(), domsvc.ExplainInput{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(text, "The neutral prediction has low confidence at 0%."))
}

func TestBuildPrompt(t *testing.T) {
	in := sampleInput()
	in.Sentiment = &models.NewsSentiment{Sentiment: models.SentimentPositive, Impact: models.ImpactMedium, Score: 0.3}
	p := BuildPrompt(in)
	assert.Contains(t, p, "for AAPL is predicted to be bullish with 56.0% confidence")
	assert.Contains(t, p, "- RSI: 62.50")
	assert.Contains(t, p, "- EMA: 9=101.0000, 20=100.0000, 50=98.0000")
	assert.Contains(t, p, "- Volume: increasing (ratio 1.40)")
	assert.Contains(t, p, "News Sentiment: positive (score 0.30, impact medium)")
	assert.Contains(t, p, "Do not give financial advice.")

	assert.NotContains(t, BuildPrompt(sampleInput()), "News Sentiment")
}

func geminiServer(t *testing.T, calls *int32, status int, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-pro:generateContent", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get(geminiKeyHeader))
		assert.Empty(t, r.URL.RawQuery)

		var req geminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Contents, 1) {
			assert.Contains(t, req.Contents[0].Parts[0].Text, "AAPL")
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{"content": map[string]interface{}{
					"parts": []interface{}{map[string]interface{}{"text": text}},
				}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func geminiConfig(url, key string) *config.Config {
	cfg := config.Default()
	cfg.Explanation.BaseURL = url
	cfg.Explanation.GeminiAPIKey = key
	cfg.Explanation.Retries = 1
	return cfg
}

func TestGeminiExplainerCachesByPrompt(t *testing.T) {
	var calls int32
	srv := geminiServer(t, &calls, http.StatusOK, " Momentum is building. ")
	mem := cache.NewMemoryCache()
	defer mem.Close()

	g := NewGeminiExplainer(geminiConfig(srv.URL, "secret"), mem)
	for i := 0; i < 2; i++ {
		text, err := g.Explain(context.Background(), sampleInput())
		require.NoError(t, err)
		assert.Equal(t, "Momentum is building.", text)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGeminiExplainerRequiresKey(t *testing.T) {
	g := NewGeminiExplainer(geminiConfig("http://127.0.0.1:1", ""), nil)
	assert.False(t, g.HasKey(""))
	assert.True(t, g.HasKey("per-request"))

	_, err := g.Explain(context.Background(), sampleInput())
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestFallbackExplainerUsesRemote(t *testing.T) {
	var calls int32
	srv := geminiServer(t, &calls, http.StatusOK, "Remote says up.")
	m := &fallbackCounter{}
	f := NewFallbackExplainer(NewGeminiExplainer(geminiConfig(srv.URL, ""), nil), NewRuleExplainer(), m, nil)

	in := sampleInput()
	in.APIKey = "from-request"
	text, err := f.Explain(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Remote says up.", text)
	assert.Empty(t, m.names)
}

func TestFallbackExplainerOnRemoteFailure(t *testing.T) {
	var calls int32
	srv := geminiServer(t, &calls, http.StatusInternalServerError, "")
	m := &fallbackCounter{}
	f := NewFallbackExplainer(NewGeminiExplainer(geminiConfig(srv.URL, "secret"), nil), NewRuleExplainer(), m, nil)

	in := sampleInput()
	text, err := f.Explain(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, RuleExplanation(in.Prediction, in.Indicators), text)
	assert.Equal(t, []string{"explanation"}, m.names)
}

func TestFallbackExplainerWithoutKeyStaysLocal(t *testing.T) {
	var calls int32
	srv := geminiServer(t, &calls, http.StatusOK, "unused")
	m := &fallbackCounter{}
	f := NewFallbackExplainer(NewGeminiExplainer(geminiConfig(srv.URL, ""), nil), NewRuleExplainer(), m, nil)

	_, err := f.Explain(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Empty(t, m.names)
}

func TestGeminiExplainerErrorOmitsKey(t *testing.T) {
	g := NewGeminiExplainer(geminiConfig("http://127.0.0.1:1", "configured-key"), nil)

	_, err := g.Explain(context.Background(), sampleInput())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "configured-key")

	in := sampleInput()
	in.APIKey = "caller-key"
	_, err = g.Explain(context.Background(), in)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "caller-key")
}
