package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"CandleInsight/internal/domain/models"
	domsvc "CandleInsight/internal/domain/service"
	"CandleInsight/pkg/cache"
	"CandleInsight/pkg/config"
	"CandleInsight/pkg/logger"
)

const (
	maxHeadlines       = 5
	sourcePageSize     = 10
	SourceNewsAPI      = "newsapi"
	SourceAlphaVantage = "alphavantage"
	SourcePlaceholder  = "placeholder"
)

var ErrNoHeadlines = errors.New("no headlines returned")

// headlineSource is a single upstream that returns raw titles.
type headlineSource interface {
	Name() string
	Headlines(ctx context.Context, symbol string) ([]string, error)
}

// NewsAPIFetcher reads the /v2/everything endpoint of newsapi.org.
type NewsAPIFetcher struct {
	*HTTPServiceBase
	apiKey string
}

func NewNewsAPIFetcher(url, apiKey string, timeout time.Duration) *NewsAPIFetcher {
	return &NewsAPIFetcher{HTTPServiceBase: NewHTTPServiceBase(url, timeout), apiKey: apiKey}
}

func (f *NewsAPIFetcher) Name() string { return SourceNewsAPI }

func (f *NewsAPIFetcher) Headlines(ctx context.Context, symbol string) ([]string, error) {
	var resp struct {
		Articles []struct {
			Title string `json:"title"`
		} `json:"articles"`
	}
	query := map[string][]string{
		"q":        {symbol},
		"sortBy":   {"publishedAt"},
		"pageSize": {strconv.Itoa(sourcePageSize)},
		"apiKey":   {f.apiKey},
	}
	if err := f.GetJSON(ctx, "", query, &resp); err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}
	out := make([]string, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		out = append(out, a.Title)
	}
	return out, nil
}

// AlphaVantageFetcher reads the NEWS_SENTIMENT function of the Alpha Vantage query API.
type AlphaVantageFetcher struct {
	*HTTPServiceBase
	apiKey string
}

func NewAlphaVantageFetcher(url, apiKey string, timeout time.Duration) *AlphaVantageFetcher {
	return &AlphaVantageFetcher{HTTPServiceBase: NewHTTPServiceBase(url, timeout), apiKey: apiKey}
}

func (f *AlphaVantageFetcher) Name() string { return SourceAlphaVantage }

func (f *AlphaVantageFetcher) Headlines(ctx context.Context, symbol string) ([]string, error) {
	var resp struct {
		Feed []struct {
			Title string `json:"title"`
		} `json:"feed"`
	}
	query := map[string][]string{
		"function": {"NEWS_SENTIMENT"},
		"tickers":  {symbol},
		"apikey":   {f.apiKey},
	}
	if err := f.GetJSON(ctx, "", query, &resp); err != nil {
		return nil, fmt.Errorf("alphavantage: %w", err)
	}
	feed := resp.Feed
	if len(feed) > sourcePageSize {
		feed = feed[:sourcePageSize]
	}
	out := make([]string, 0, len(feed))
	for _, item := range feed {
		out = append(out, item.Title)
	}
	return out, nil
}

// PlaceholderFetcher returns fixed neutral headlines. It is the last link of every chain.
type PlaceholderFetcher struct{}

func (PlaceholderFetcher) Name() string { return SourcePlaceholder }

func (PlaceholderFetcher) Headlines(_ context.Context, symbol string) ([]string, error) {
	return []string{
		symbol + " shows mixed trading signals amid market uncertainty",
		"Analysts maintain neutral outlook on " + symbol,
		"Volume patterns suggest consolidation phase for " + symbol,
	}, nil
}

// ChainFetcher tries each source in order and scores the first non-empty answer.
type ChainFetcher struct {
	sources []headlineSource
	log     *logger.Logger
	now     func() time.Time
}

var _ domsvc.NewsFetcher = (*ChainFetcher)(nil)

func newChainFetcher(log *logger.Logger, sources ...headlineSource) *ChainFetcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &ChainFetcher{sources: sources, log: log, now: time.Now}
}

// NewChainFetcher orders the sources by configured keys: NewsAPI, Alpha Vantage, then placeholder.
func NewChainFetcher(cfg *config.Config, log *logger.Logger) *ChainFetcher {
	n := cfg.News
	var sources []headlineSource
	if n.NewsAPIKey != "" {
		sources = append(sources, NewNewsAPIFetcher(n.NewsAPIURL, n.NewsAPIKey, n.Timeout))
	}
	if n.AlphaVantageKey != "" {
		sources = append(sources, NewAlphaVantageFetcher(n.AlphaVantageURL, n.AlphaVantageKey, n.Timeout))
	}
	sources = append(sources, PlaceholderFetcher{})
	return newChainFetcher(log, sources...)
}

// Sources lists the chain order by name.
func (c *ChainFetcher) Sources() []string {
	out := make([]string, len(c.sources))
	for i, s := range c.sources {
		out[i] = s.Name()
	}
	return out
}

func (c *ChainFetcher) Fetch(ctx context.Context, symbol string) (models.NewsReport, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var lastErr error
	for _, src := range c.sources {
		headlines, err := src.Headlines(ctx, symbol)
		if err == nil && len(nonEmpty(headlines)) == 0 {
			err = ErrNoHeadlines
		}
		if err != nil {
			if ctx.Err() != nil {
				return models.NewsReport{}, ctx.Err()
			}
			c.log.Debug("news source skipped",
				logger.String("source", src.Name()),
				logger.String("symbol", symbol),
				logger.Error(err),
			)
			lastErr = err
			continue
		}
		headlines = nonEmpty(headlines)
		score := ScoreHeadlines(headlines)
		if len(headlines) > maxHeadlines {
			headlines = headlines[:maxHeadlines]
		}
		return models.NewsReport{
			Symbol:         symbol,
			Headlines:      headlines,
			SentimentScore: score,
			FetchedAt:      c.now().UnixMilli(),
			Source:         src.Name(),
		}, nil
	}
	if lastErr == nil {
		lastErr = ErrNoHeadlines
	}
	return models.NewsReport{}, fmt.Errorf("fetch news for %s: %w", symbol, lastErr)
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// CachedFetcher memoizes reports per symbol.
type CachedFetcher struct {
	next  domsvc.NewsFetcher
	cache cache.Service
	ttl   time.Duration
}

var _ domsvc.NewsFetcher = (*CachedFetcher)(nil)

func NewCachedFetcher(next domsvc.NewsFetcher, c cache.Service, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{next: next, cache: c, ttl: ttl}
}

func (f *CachedFetcher) Fetch(ctx context.Context, symbol string) (models.NewsReport, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	report, _, err := cache.Remember(ctx, f.cache, cache.GenerateKey("news", symbol), f.ttl, func(ctx context.Context) (models.NewsReport, error) {
		return f.next.Fetch(ctx, symbol)
	})
	return report, err
}
