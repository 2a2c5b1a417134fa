package fusion

import (
	"math"

	"CandleInsight/internal/domain/models"
	"CandleInsight/pkg/util"
)

const (
	PatternWeight = 0.6
	RuleWeight    = 0.4

	// a lone scorer is trusted above this confidence when it leads by more than trustMargin
	trustThreshold = 70.0
	trustMargin    = 20.0
	trustDiscount  = 0.7

	neutralConfidence = 40.0
	maxConfidence     = 95.0
)

// Engine reconciles the pattern and rule scorers into one prediction.
type Engine struct {
	patternWeight float64
	ruleWeight    float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights overrides the per-scorer weights used when the scorers agree.
func WithWeights(pattern, rule float64) Option {
	return func(e *Engine) {
		if pattern > 0 && rule > 0 {
			e.patternWeight = pattern
			e.ruleWeight = rule
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{patternWeight: PatternWeight, ruleWeight: RuleWeight}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fuse combines the pattern output a with the rule output b using the default weights.
func Fuse(a, b models.ScorerOutput) models.FusedPrediction {
	return NewEngine().Fuse(a, b)
}

func (e *Engine) Fuse(a, b models.ScorerOutput) models.FusedPrediction {
	agree := a.Direction == b.Direction

	var (
		direction  models.Direction
		probs      models.Probabilities
		confidence float64
	)

	switch {
	case agree:
		direction = a.Direction
		probs = e.blend(a.Probabilities, b.Probabilities)
		confidence = math.Max(
			a.Confidence*e.patternWeight+b.Confidence*e.ruleWeight,
			probs.Of(direction)*100,
		)
	case trusted(a.Confidence, b.Confidence):
		direction, probs, confidence = a.Direction, a.Probabilities, a.Confidence*trustDiscount
	case trusted(b.Confidence, a.Confidence):
		direction, probs, confidence = b.Direction, b.Probabilities, b.Confidence*trustDiscount
	default:
		direction, probs, confidence = models.Neutral, models.NeutralProbabilities, neutralConfidence
	}

	confidence = math.Max(0, math.Min(confidence, maxConfidence))
	return models.FusedPrediction{
		Direction:  direction,
		Confidence: util.Round(confidence, 1),
		Probabilities: models.Probabilities{
			Bullish: util.Round(probs.Bullish*100, 1),
			Bearish: util.Round(probs.Bearish*100, 1),
			Neutral: util.Round(probs.Neutral*100, 1),
		},
		ModelAgreement: agree,
		PatternSignal:  a.Direction,
		RuleSignal:     b.Direction,
	}
}

// blend is the weighted per-class average, renormalized to sum to 1.
func (e *Engine) blend(pa, pb models.Probabilities) models.Probabilities {
	out := models.Probabilities{
		Bullish: pa.Bullish*e.patternWeight + pb.Bullish*e.ruleWeight,
		Bearish: pa.Bearish*e.patternWeight + pb.Bearish*e.ruleWeight,
		Neutral: pa.Neutral*e.patternWeight + pb.Neutral*e.ruleWeight,
	}
	total := out.Sum()
	if total <= 0 {
		return models.NeutralProbabilities
	}
	out.Bullish /= total
	out.Bearish /= total
	out.Neutral /= total
	return out
}

func trusted(conf, other float64) bool {
	return conf > trustThreshold && conf > other+trustMargin
}
