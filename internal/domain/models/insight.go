package models

// Insight is the full answer returned to chart clients.
// Note: no transport (json/http) concerns beyond field names here.
type Insight struct {
	ID                string            `json:"id"`
	Symbol            string            `json:"symbol"`
	Timeframe         string            `json:"timeframe"`
	Prediction        PredictionView    `json:"prediction"`
	TechnicalAnalysis TechnicalAnalysis `json:"technical_analysis"`
	Sentiment         *NewsSentiment    `json:"sentiment,omitempty"`
	Explanation       string            `json:"explanation"`
	RiskLevel         RiskLevel         `json:"risk_level"`
	Warnings          []string          `json:"warnings"`
	GeneratedAt       int64             `json:"generated_at"`
}

type PredictionView struct {
	Direction      Direction     `json:"direction"`
	Confidence     float64       `json:"confidence"`
	Probabilities  Probabilities `json:"probabilities"`
	ModelAgreement bool          `json:"model_agreement"`
	PatternSignal  Direction     `json:"pattern_signal"`
	RuleSignal     Direction     `json:"rule_signal"`
	Timestamp      int64         `json:"timestamp"`
}

type TechnicalAnalysis struct {
	RSI            float64         `json:"rsi"`
	MACD           MACD            `json:"macd"`
	EMA            map[int]float64 `json:"ema"`
	SMA            map[int]float64 `json:"sma"`
	VolumeAnalysis VolumeAnalysis  `json:"volume_analysis"`
}

// NewTechnicalAnalysis projects an indicator set onto the response shape.
func NewTechnicalAnalysis(ind IndicatorSet) TechnicalAnalysis {
	return TechnicalAnalysis{
		RSI:            ind.RSI,
		MACD:           ind.MACD,
		EMA:            ind.EMA,
		SMA:            ind.SMA,
		VolumeAnalysis: ind.Volume,
	}
}

type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// NewsSentiment is advisory context attached to an insight. It never feeds fusion or risk.
type NewsSentiment struct {
	Sentiment SentimentLabel `json:"sentiment"`
	Impact    Impact         `json:"impact"`
	Headlines []string       `json:"headlines"`
	Score     float64        `json:"score"`
}

// NewsReport is what a news source returns for one symbol.
type NewsReport struct {
	Symbol         string   `json:"symbol"`
	Headlines      []string `json:"headlines"`
	SentimentScore float64  `json:"sentiment_score"`
	FetchedAt      int64    `json:"fetched_at"`
	Source         string   `json:"source,omitempty"`
}

// Sentiment classifies the report score. |score| >= 0.5 is high impact, >= 0.2 medium.
func (r NewsReport) Sentiment() NewsSentiment {
	s := NewsSentiment{
		Sentiment: SentimentNeutral,
		Impact:    ImpactLow,
		Headlines: r.Headlines,
		Score:     r.SentimentScore,
	}
	switch {
	case r.SentimentScore >= 0.2:
		s.Sentiment = SentimentPositive
	case r.SentimentScore <= -0.2:
		s.Sentiment = SentimentNegative
	}
	abs := r.SentimentScore
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 0.5:
		s.Impact = ImpactHigh
	case abs >= 0.2:
		s.Impact = ImpactMedium
	}
	return s
}
