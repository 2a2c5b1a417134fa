package models

import (
	"errors"
	"fmt"
	"math"
)

// MinCandles is the smallest window the scorers act on.
const MinCandles = 5

// ErrInsufficientCandles is returned by request paths that refuse windows shorter than MinCandles.
var ErrInsufficientCandles = errors.New("at least 5 candles required for prediction")

// Candle is one OHLCV bar. Timestamp is epoch milliseconds.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Closes returns the close series, oldest first.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes returns the volume series, oldest first.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// InvalidInputError reports a candle window that breaks the input contract.
type InvalidInputError struct {
	Index  int
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid candle %d: %s %s", e.Index, e.Field, e.Reason)
}

// ValidateCandles rejects non-finite fields, negative volume and windows that go back in time.
func ValidateCandles(candles []Candle) error {
	for i, c := range candles {
		fields := [...]struct {
			name string
			v    float64
		}{
			{"open", c.Open},
			{"high", c.High},
			{"low", c.Low},
			{"close", c.Close},
			{"volume", c.Volume},
		}
		for _, f := range fields {
			if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
				return &InvalidInputError{Index: i, Field: f.name, Reason: "must be finite"}
			}
		}
		if c.Volume < 0 {
			return &InvalidInputError{Index: i, Field: "volume", Reason: "must not be negative"}
		}
		if i > 0 && c.Timestamp < candles[i-1].Timestamp {
			return &InvalidInputError{Index: i, Field: "timestamp", Reason: "is earlier than the previous candle"}
		}
	}
	return nil
}
