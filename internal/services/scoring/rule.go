package scoring

import (
	"math"

	"CandleInsight/internal/domain/models"
	"CandleInsight/internal/services/features"
)

const (
	ruleNeutralBase      = 3
	ruleMinSignals       = 4
	ruleNeutralConf      = 50.0
	ruleMaxConfidence    = 85.0
	ruleVolumeConfirmAt  = 1.2
	ruleEMATrendStrong   = 0.02
	ruleMomentum5Strong  = 0.02
	ruleMomentum10Strong = 0.03
)

// RuleScorer counts discrete signals over a tabular feature row.
type RuleScorer struct{}

func NewRuleScorer() *RuleScorer { return &RuleScorer{} }

func (s *RuleScorer) Name() string { return "rule" }

func (s *RuleScorer) Score(candles []models.Candle, ind models.IndicatorSet) models.ScorerOutput {
	return ScoreRule(candles, ind)
}

// ScoreRule asserts a direction only when the winning side collected at least four signals.
func ScoreRule(candles []models.Candle, ind models.IndicatorSet) models.ScorerOutput {
	if len(candles) < models.MinCandles {
		return insufficientData()
	}
	bull, bear := countSignals(features.Extract(candles, ind))

	total := float64(bull + bear + ruleNeutralBase)
	pBull := float64(bull) / total
	pBear := float64(bear) / total
	pNeutral := 1 - pBull - pBear

	out := models.ScorerOutput{Direction: models.Neutral, Confidence: ruleNeutralConf}
	switch {
	case pBull > pBear && bull >= ruleMinSignals:
		out.Direction = models.Bullish
		out.Confidence = math.Min(pBull*100, ruleMaxConfidence)
	case pBear > pBull && bear >= ruleMinSignals:
		out.Direction = models.Bearish
		out.Confidence = math.Min(pBear*100, ruleMaxConfidence)
	}
	out.Probabilities = models.Probabilities{
		Bullish: pBull,
		Bearish: pBear,
		Neutral: math.Max(pNeutral, neutralFloor),
	}
	return out
}

func countSignals(f features.RuleFeatures) (bull, bear int) {
	switch {
	case f.RSINorm < 0.3:
		bull += 2
	case f.RSINorm > 0.7:
		bear += 2
	case f.RSINorm > 0.5:
		bull++
	default:
		bear++
	}

	switch {
	case f.MACDHist > 0:
		bull++
	case f.MACDHist < 0:
		bear++
	}

	switch {
	case f.EMATrend > ruleEMATrendStrong:
		bull += 2
	case f.EMATrend < -ruleEMATrendStrong:
		bear += 2
	case f.EMATrend > 0:
		bull++
	default:
		bear++
	}

	// heavy volume confirms the short-term move
	if f.VolumeRatio > ruleVolumeConfirmAt {
		switch {
		case f.Momentum5 > 0:
			bull++
		case f.Momentum5 < 0:
			bear++
		}
	}

	switch {
	case f.Momentum5 > ruleMomentum5Strong:
		bull += 2
	case f.Momentum5 < -ruleMomentum5Strong:
		bear += 2
	}

	switch {
	case f.Momentum10 > ruleMomentum10Strong:
		bull++
	case f.Momentum10 < -ruleMomentum10Strong:
		bear++
	}
	return bull, bear
}
