package scoring

import "CandleInsight/internal/domain/models"

// Scorer is a heuristic classifier over a candle window and its indicators.
type Scorer interface {
	Name() string
	Score(candles []models.Candle, ind models.IndicatorSet) models.ScorerOutput
}

// neutralFloor bounds the reported neutral probability from below.
const neutralFloor = 0.1

// insufficientData is returned by every scorer for windows shorter than models.MinCandles.
func insufficientData() models.ScorerOutput {
	return models.ScorerOutput{
		Direction:     models.Neutral,
		Confidence:    33,
		Probabilities: models.NeutralProbabilities,
	}
}
