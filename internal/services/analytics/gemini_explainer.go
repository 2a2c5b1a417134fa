package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domsvc "CandleInsight/internal/domain/service"
	"CandleInsight/pkg/cache"
	"CandleInsight/pkg/config"
)

var ErrNoAPIKey = errors.New("gemini api key not configured")

const geminiKeyHeader = "x-goog-api-key"

// GeminiExplainer asks the Generative Language REST API for a short trader-facing explanation.
type GeminiExplainer struct {
	*HTTPServiceBase
	apiKey   string
	model    string
	retries  int
	cache    cache.Service
	cacheTTL time.Duration
}

var _ domsvc.Explainer = (*GeminiExplainer)(nil)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiExplainer builds the remote explainer. c may be nil to disable caching.
func NewGeminiExplainer(cfg *config.Config, c cache.Service) *GeminiExplainer {
	ex := cfg.Explanation
	return &GeminiExplainer{
		HTTPServiceBase: NewHTTPServiceBase(strings.TrimRight(ex.BaseURL, "/"), ex.Timeout),
		apiKey:          ex.GeminiAPIKey,
		model:           ex.Model,
		retries:         ex.Retries,
		cache:           c,
		cacheTTL:        ex.CacheTTL,
	}
}

// HasKey reports whether a request could be served, given an optional per-request key.
func (g *GeminiExplainer) HasKey(override string) bool {
	return override != "" || g.apiKey != ""
}

func (g *GeminiExplainer) Explain(ctx context.Context, in domsvc.ExplainInput) (string, error) {
	key := in.APIKey
	if key == "" {
		key = g.apiKey
	}
	if key == "" {
		return "", ErrNoAPIKey
	}

	prompt := BuildPrompt(in)
	text, _, err := cache.Remember(ctx, g.cache, cache.GenerateKey("explain", g.model, cache.HashKey(prompt)), g.cacheTTL,
		func(ctx context.Context) (string, error) {
			return g.generate(ctx, key, prompt)
		})
	return text, err
}

func (g *GeminiExplainer) generate(ctx context.Context, key, prompt string) (string, error) {
	req := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}
	var resp geminiResponse
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", g.model)
	headers := map[string]string{geminiKeyHeader: key}
	if err := g.PostJSONWithRetry(ctx, path, headers, req, &resp, g.retries); err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty text")
	}
	return text, nil
}

// BuildPrompt renders the instruction sent to the model.
func BuildPrompt(in domsvc.ExplainInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a technical analysis expert. Explain why the next candlestick\nfor %s is predicted to be %s with %.1f%% confidence.\n\n",
		in.Symbol, in.Prediction.Direction, in.Prediction.Confidence)
	b.WriteString("Technical Indicators:\n")
	fmt.Fprintf(&b, "- RSI: %.2f\n", in.Indicators.RSI)
	m := in.Indicators.MACD
	fmt.Fprintf(&b, "- MACD: macd=%.4f signal=%.4f histogram=%.4f\n", m.MACD, m.Signal, m.Histogram)
	fmt.Fprintf(&b, "- EMA: %s\n", formatPeriods(in.Indicators.EMA))
	fmt.Fprintf(&b, "- Volume: %s (ratio %.2f)\n", in.Indicators.Volume.Trend, in.Indicators.Volume.Ratio)
	if s := in.Sentiment; s != nil {
		fmt.Fprintf(&b, "\nNews Sentiment: %s (score %.2f, impact %s)\n", s.Sentiment, s.Score, s.Impact)
	}
	b.WriteString("\nProvide a concise 2-3 sentence explanation suitable for a trader.\nDo not give financial advice. Focus on technical reasoning.")
	return b.String()
}

func formatPeriods(vals map[int]float64) string {
	if len(vals) == 0 {
		return "N/A"
	}
	periods := make([]int, 0, len(vals))
	for p := range vals {
		periods = append(periods, p)
	}
	sort.Ints(periods)
	parts := make([]string, len(periods))
	for i, p := range periods {
		parts[i] = fmt.Sprintf("%d=%.4f", p, vals[p])
	}
	return strings.Join(parts, ", ")
}
