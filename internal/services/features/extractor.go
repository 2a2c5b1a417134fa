package features

import (
	"math"

	"CandleInsight/internal/domain/models"
	"CandleInsight/pkg/util"
)

// Window is the number of trailing candles the rule features look at.
const Window = 10

// RuleFeatures is the tabular feature row consumed by the rule scorer.
type RuleFeatures struct {
	RSINorm     float64 `json:"rsi_norm"`
	MACDHist    float64 `json:"macd_hist"`
	EMATrend    float64 `json:"ema_trend"`
	VolumeRatio float64 `json:"volume_ratio"`
	BodySize    float64 `json:"body_size"`
	WickRatio   float64 `json:"wick_ratio"`
	Momentum5   float64 `json:"momentum_5"`
	Momentum10  float64 `json:"momentum_10"`
}

// Extract builds the feature row from the last candle and the trailing window.
// Every ratio is guarded so that a zero denominator yields its neutral default.
func Extract(candles []models.Candle, ind models.IndicatorSet) RuleFeatures {
	if len(candles) == 0 {
		return RuleFeatures{RSINorm: 0.5, VolumeRatio: 1}
	}
	last := candles[len(candles)-1]
	window := TrailingWindow(candles, Window)

	f := RuleFeatures{
		RSINorm:  ind.RSI / 100,
		MACDHist: ind.MACD.Histogram,
	}

	if ema20 := ind.EMA[20]; ema20 != 0 {
		f.EMATrend = (last.Close - ema20) / ema20
	}

	f.VolumeRatio = 1
	if avg := util.Mean(models.Volumes(window)); avg != 0 {
		f.VolumeRatio = last.Volume / avg
	}

	f.BodySize = math.Abs(last.Close - last.Open)
	if rng := last.High - last.Low; rng != 0 {
		f.WickRatio = (rng - f.BodySize) / rng
	}

	closes := models.Closes(window)
	f.Momentum5 = Momentum(closes, 5)
	f.Momentum10 = Momentum(closes, len(closes))
	return f
}

// Momentum is the fractional change between closes[len-lookback] and the last close.
// It is 0 when the series is shorter than lookback or the base close is 0.
func Momentum(closes []float64, lookback int) float64 {
	if lookback < 2 || len(closes) < lookback {
		return 0
	}
	base := closes[len(closes)-lookback]
	if base == 0 {
		return 0
	}
	return (closes[len(closes)-1] - base) / base
}

// TrailingWindow returns the last n candles, or all of them when there are fewer.
func TrailingWindow(candles []models.Candle, n int) []models.Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
