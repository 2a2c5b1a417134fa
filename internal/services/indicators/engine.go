package indicators

import (
	"CandleInsight/internal/domain/models"
	"CandleInsight/pkg/util"

	"github.com/markcheno/go-talib"
)

const (
	RSIPeriod  = 14
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9

	// macdSignalRatio stands in for a true signal EMA of the MACD series.
	macdSignalRatio = 0.9

	volumeRecentWindow  = 5
	volumeOverallWindow = 20
	volumeRisingRatio   = 1.2
	volumeFallingRatio  = 0.8
)

var (
	EMAPeriods = []int{9, 20, 50, 200}
	SMAPeriods = []int{20, 50, 200}
)

// Engine computes the indicator set for a candle window. It holds no state.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Compute never fails: every indicator falls back to a neutral value on short input.
func (e *Engine) Compute(candles []models.Candle) models.IndicatorSet {
	closes := models.Closes(candles)
	return models.IndicatorSet{
		RSI:    RSI(closes, RSIPeriod),
		MACD:   MACD(closes, MACDFast, MACDSlow, MACDSignal),
		EMA:    EMASet(closes),
		SMA:    SMASet(closes),
		Volume: AnalyzeVolume(models.Volumes(candles)),
	}
}

// RSI averages gains and losses over the last period+1 closes.
// This is the simple-average form, not Wilder smoothing.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50.0
	}
	window := closes[len(closes)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return util.Round(100-100/(1+rs), 2)
}

// EMA returns the last value of an SMA-seeded exponential average.
// With fewer than period points it returns the last point, or 0 when empty.
func EMA(data []float64, period int) float64 {
	if len(data) == 0 {
		return 0
	}
	if period <= 0 || len(data) < period {
		return data[len(data)-1]
	}
	series := talib.Ema(data, period)
	return series[len(series)-1]
}

// SMA returns the mean of the trailing period values, or 0 when there are not enough.
func SMA(data []float64, period int) float64 {
	if period <= 0 || len(data) < period {
		return 0
	}
	series := talib.Sma(data, period)
	return series[len(series)-1]
}

// MACD needs slow+signal closes. The signal line is a fixed fraction of the MACD line.
func MACD(closes []float64, fast, slow, signal int) models.MACD {
	if len(closes) < slow+signal {
		return models.MACD{}
	}
	line := EMA(closes, fast) - EMA(closes, slow)
	sig := line * macdSignalRatio
	return models.MACD{
		MACD:      util.Round(line, 4),
		Signal:    util.Round(sig, 4),
		Histogram: util.Round(line-sig, 4),
	}
}

func EMASet(closes []float64) map[int]float64 {
	out := make(map[int]float64, len(EMAPeriods))
	for _, p := range EMAPeriods {
		if len(closes) >= p {
			out[p] = util.Round(EMA(closes, p), 4)
		}
	}
	return out
}

func SMASet(closes []float64) map[int]float64 {
	out := make(map[int]float64, len(SMAPeriods))
	for _, p := range SMAPeriods {
		if len(closes) >= p {
			out[p] = util.Round(SMA(closes, p), 4)
		}
	}
	return out
}

// AnalyzeVolume compares the mean of the last 5 volumes with the mean of the last 20 (or all).
func AnalyzeVolume(volumes []float64) models.VolumeAnalysis {
	if len(volumes) < volumeRecentWindow {
		return models.VolumeAnalysis{Trend: models.VolumeStable, Ratio: 1.0}
	}
	recent := SMA(volumes, volumeRecentWindow)
	overallWindow := volumeOverallWindow
	if len(volumes) < overallWindow {
		overallWindow = len(volumes)
	}
	overall := SMA(volumes, overallWindow)

	ratio := 1.0
	if overall > 0 {
		ratio = recent / overall
	}

	trend := models.VolumeStable
	switch {
	case ratio > volumeRisingRatio:
		trend = models.VolumeIncreasing
	case ratio < volumeFallingRatio:
		trend = models.VolumeDecreasing
	}

	return models.VolumeAnalysis{
		Trend:          trend,
		Ratio:          util.Round(ratio, 2),
		RecentAverage:  util.Round(recent, 2),
		OverallAverage: util.Round(overall, 2),
	}
}
