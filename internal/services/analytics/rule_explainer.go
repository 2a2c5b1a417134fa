package analytics

import (
	"context"
	"fmt"
	"strings"

	"CandleInsight/internal/domain/models"
	domsvc "CandleInsight/internal/domain/service"
)

const (
	ruleClauseLimit   = 2
	ruleDefaultClause = "Based on recent price action and momentum analysis"
)

// RuleExplainer writes a deterministic explanation from the indicator set alone.
type RuleExplainer struct{}

var _ domsvc.Explainer = (*RuleExplainer)(nil)

func NewRuleExplainer() *RuleExplainer { return &RuleExplainer{} }

func (r *RuleExplainer) Explain(_ context.Context, in domsvc.ExplainInput) (string, error) {
	return RuleExplanation(in.Prediction, in.Indicators), nil
}

// RuleExplanation joins the first two indicator clauses and appends a confidence sentence.
func RuleExplanation(p models.FusedPrediction, ind models.IndicatorSet) string {
	clauses := indicatorClauses(ind)
	base := ruleDefaultClause
	if len(clauses) > 0 {
		if len(clauses) > ruleClauseLimit {
			clauses = clauses[:ruleClauseLimit]
		}
		base = strings.Join(clauses, ". ")
	}
	direction := p.Direction
	if direction == "" {
		direction = models.Neutral
	}
	return fmt.Sprintf("%s. The %s prediction has %s confidence at %.0f%%.", base, direction, confidenceText(p.Confidence), p.Confidence)
}

func indicatorClauses(ind models.IndicatorSet) []string {
	out := make([]string, 0, 4)

	switch {
	case ind.RSI < 30:
		out = append(out, fmt.Sprintf("RSI at %.1f indicates oversold conditions, suggesting potential upward momentum", ind.RSI))
	case ind.RSI > 70:
		out = append(out, fmt.Sprintf("RSI at %.1f shows overbought conditions, signaling possible reversal pressure", ind.RSI))
	case ind.RSI > 50:
		out = append(out, fmt.Sprintf("RSI at %.1f shows bullish momentum", ind.RSI))
	default:
		out = append(out, fmt.Sprintf("RSI at %.1f indicates bearish pressure", ind.RSI))
	}

	switch {
	case ind.MACD.Histogram > 0:
		out = append(out, "MACD histogram is positive, supporting bullish bias")
	case ind.MACD.Histogram < 0:
		out = append(out, "MACD histogram is negative, indicating bearish momentum")
	}

	switch ind.Volume.Trend {
	case models.VolumeIncreasing:
		out = append(out, "Increasing volume supports the current trend")
	case models.VolumeDecreasing:
		out = append(out, "Declining volume suggests weakening conviction")
	}

	short, okShort := ind.EMA[20]
	long, okLong := ind.EMA[50]
	if okShort && okLong {
		if short > long {
			out = append(out, "Short-term EMA above long-term EMA indicates uptrend")
		} else {
			out = append(out, "Short-term EMA below long-term EMA suggests downtrend")
		}
	}
	return out
}

func confidenceText(c float64) string {
	switch {
	case c > 70:
		return "high"
	case c > 50:
		return "moderate"
	default:
		return "low"
	}
}
