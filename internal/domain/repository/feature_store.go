package repository

import (
	"context"
	"strings"
	"time"

	"CandleInsight/internal/domain/models"
)

// Timeframe is the resolution of a stored candle table.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF1h Timeframe = "1h"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF1m: time.Minute,
	TF5m: 5 * time.Minute,
	TF1h: time.Hour,
}

var timeframeAliases = map[string]Timeframe{
	"1min": TF1m,
	"5min": TF5m,
	"60m":  TF1h,
	"1hr":  TF1h,
}

// Valid reports whether the feature store keeps a table for tf.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Duration is zero for unsupported timeframes.
func (tf Timeframe) Duration() time.Duration { return timeframeDurations[tf] }

// ParseTimeframe is case-insensitive and accepts a few common aliases ("5min", "60m").
func ParseTimeframe(s string) (Timeframe, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if tf := Timeframe(s); tf.Valid() {
		return tf, true
	}
	tf, ok := timeframeAliases[s]
	return tf, ok
}

// NormalizeTimeframe falls back to TF1m for empty or unknown input.
func NormalizeTimeframe(s string) Timeframe {
	if tf, ok := ParseTimeframe(s); ok {
		return tf
	}
	return TF1m
}

// FeatureStore provides read-only access to stored candles, oldest first.
type FeatureStore interface {
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}
