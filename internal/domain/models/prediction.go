package models

type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Probabilities is a distribution over the three directions.
// Scorer outputs use the [0,1] scale, fused predictions use percent.
type Probabilities struct {
	Bullish float64 `json:"bullish"`
	Bearish float64 `json:"bearish"`
	Neutral float64 `json:"neutral"`
}

// Of returns the probability assigned to d.
func (p Probabilities) Of(d Direction) float64 {
	switch d {
	case Bullish:
		return p.Bullish
	case Bearish:
		return p.Bearish
	default:
		return p.Neutral
	}
}

func (p Probabilities) Sum() float64 { return p.Bullish + p.Bearish + p.Neutral }

// NeutralProbabilities is the fixed distribution used when no direction can be trusted.
var NeutralProbabilities = Probabilities{Bullish: 0.33, Bearish: 0.33, Neutral: 0.34}

type ScorerOutput struct {
	Direction     Direction     `json:"direction"`
	Confidence    float64       `json:"confidence"`
	Probabilities Probabilities `json:"probabilities"`
}

// FusedPrediction is the reconciled decision of both scorers.
type FusedPrediction struct {
	Direction      Direction     `json:"direction"`
	Confidence     float64       `json:"confidence"`
	Probabilities  Probabilities `json:"probabilities"`
	ModelAgreement bool          `json:"model_agreement"`
	PatternSignal  Direction     `json:"pattern_signal"`
	RuleSignal     Direction     `json:"rule_signal"`
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type RiskAssessment struct {
	Level    RiskLevel `json:"level"`
	Warnings []string  `json:"warnings"`
}

// Analysis bundles every pure-core output for one candle window.
type Analysis struct {
	Indicators IndicatorSet    `json:"indicators"`
	Pattern    ScorerOutput    `json:"pattern"`
	Rule       ScorerOutput    `json:"rule"`
	Prediction FusedPrediction `json:"prediction"`
	Risk       RiskAssessment  `json:"risk"`
}
