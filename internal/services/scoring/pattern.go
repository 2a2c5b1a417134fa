package scoring

import (
	"math"

	"CandleInsight/internal/domain/models"
	"CandleInsight/internal/services/features"
)

const (
	patternMomentumWindow  = 10
	patternCandleWindow    = 5
	patternMomentumTrigger = 0.01
	patternNeutralBase     = 20.0
	patternMinProbability  = 0.4
	patternMaxConfidence   = 90.0
)

// PatternScorer scores recent momentum, candle bodies, RSI zones and the MACD histogram.
type PatternScorer struct{}

func NewPatternScorer() *PatternScorer { return &PatternScorer{} }

func (s *PatternScorer) Name() string { return "pattern" }

func (s *PatternScorer) Score(candles []models.Candle, ind models.IndicatorSet) models.ScorerOutput {
	return ScorePattern(candles, ind)
}

// ScorePattern accumulates bullish and bearish points and normalizes them against a fixed neutral baseline.
func ScorePattern(candles []models.Candle, ind models.IndicatorSet) models.ScorerOutput {
	if len(candles) < models.MinCandles {
		return insufficientData()
	}

	closes := models.Closes(features.TrailingWindow(candles, patternMomentumWindow))
	momentum := features.Momentum(closes, len(closes))

	var bull, bear float64
	switch {
	case momentum > patternMomentumTrigger:
		bull += 25
	case momentum < -patternMomentumTrigger:
		bear += 25
	}

	// candles that did not close higher count as bearish
	recent := features.TrailingWindow(candles, patternCandleWindow)
	up := 0
	for _, c := range recent {
		if c.Close > c.Open {
			up++
		}
	}
	bull += float64(up * 8)
	bear += float64((len(recent) - up) * 8)

	switch {
	case ind.RSI < 30:
		bull += 15
	case ind.RSI > 70:
		bear += 15
	case ind.RSI > 50:
		bull += 5
	default:
		bear += 5
	}

	switch {
	case ind.MACD.Histogram > 0:
		bull += 10
	case ind.MACD.Histogram < 0:
		bear += 10
	}

	total := bull + bear + patternNeutralBase
	pBull := bull / total
	pBear := bear / total
	pNeutral := 1 - pBull - pBear

	out := models.ScorerOutput{Direction: models.Neutral}
	confidence := pNeutral * 100
	switch {
	case pBull > pBear && pBull > patternMinProbability:
		out.Direction = models.Bullish
		confidence = pBull * 100
	case pBear > pBull && pBear > patternMinProbability:
		out.Direction = models.Bearish
		confidence = pBear * 100
	}
	out.Confidence = math.Min(confidence, patternMaxConfidence)
	out.Probabilities = models.Probabilities{
		Bullish: pBull,
		Bearish: pBear,
		Neutral: math.Max(pNeutral, neutralFloor),
	}
	return out
}
