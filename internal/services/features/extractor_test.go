package features

import (
	"testing"

	"CandleInsight/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestExtractGuardsZeroDenominators(t *testing.T) {
	candles := []models.Candle{
		{Open: 0, High: 0, Low: 0, Close: 0, Volume: 0},
		{Open: 0, High: 0, Low: 0, Close: 0, Volume: 0},
		{Open: 0, High: 0, Low: 0, Close: 0, Volume: 0},
		{Open: 0, High: 0, Low: 0, Close: 0, Volume: 0},
		{Open: 0, High: 0, Low: 0, Close: 0, Volume: 0},
	}
	f := Extract(candles, models.IndicatorSet{RSI: 50})
	assert.Equal(t, RuleFeatures{RSINorm: 0.5, VolumeRatio: 1}, f)
}

func TestExtract(t *testing.T) {
	candles := make([]models.Candle, 12)
	for i := range candles {
		c := 100 + float64(i)
		candles[i] = models.Candle{Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 100}
	}
	candles[11].Volume = 300

	f := Extract(candles, models.IndicatorSet{
		RSI:  80,
		MACD: models.MACD{Histogram: 0.3},
		EMA:  map[int]float64{20: 100},
	})

	assert.InDelta(t, 0.8, f.RSINorm, 1e-12)
	assert.Equal(t, 0.3, f.MACDHist)
	assert.InDelta(t, 0.11, f.EMATrend, 1e-12)
	// window is the last 10 candles: nine at 100, one at 300
	assert.InDelta(t, 300.0/120, f.VolumeRatio, 1e-12)
	assert.Equal(t, 0.5, f.BodySize)
	assert.InDelta(t, 0.75, f.WickRatio, 1e-12)
	assert.InDelta(t, 4.0/107, f.Momentum5, 1e-12)
	assert.InDelta(t, 9.0/102, f.Momentum10, 1e-12)
}

func TestMomentum(t *testing.T) {
	assert.Equal(t, 0.0, Momentum([]float64{1, 2}, 5))
	assert.Equal(t, 0.0, Momentum([]float64{0, 1, 2, 3, 4}, 5))
	assert.InDelta(t, 0.5, Momentum([]float64{2, 9, 9, 9, 3}, 5), 1e-12)
}

func TestTrailingWindow(t *testing.T) {
	candles := make([]models.Candle, 3)
	assert.Len(t, TrailingWindow(candles, 10), 3)
	assert.Len(t, TrailingWindow(make([]models.Candle, 15), 10), 10)
}
