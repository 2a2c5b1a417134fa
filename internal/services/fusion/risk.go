package fusion

import (
	"fmt"

	"CandleInsight/internal/domain/models"
)

const (
	lowRiskConfidence    = 70.0
	mediumRiskConfidence = 50.0

	rsiOverbought = 70.0
	rsiOversold   = 30.0
)

const (
	WarnLowConfidence = "Low confidence prediction - consider waiting for clearer signals."
	WarnDisagreement  = "ML models show conflicting signals - increased uncertainty."
	WarnLowVolume     = "Low volume may not support directional move."
	warnRSIFormat     = "RSI indicates %s conditions - reversal possible."
)

// RiskAssessor grades a fused prediction and collects user-facing warnings.
type RiskAssessor struct{}

func NewRiskAssessor() *RiskAssessor { return &RiskAssessor{} }

func (r *RiskAssessor) Assess(pred models.FusedPrediction, ind models.IndicatorSet) models.RiskAssessment {
	return AssessRisk(pred, ind)
}

// AssessRisk is deterministic; warnings are appended in a fixed order.
func AssessRisk(pred models.FusedPrediction, ind models.IndicatorSet) models.RiskAssessment {
	level := models.RiskHigh
	switch {
	case pred.Confidence >= lowRiskConfidence && pred.ModelAgreement:
		level = models.RiskLow
	case pred.Confidence >= mediumRiskConfidence:
		level = models.RiskMedium
	}

	warnings := make([]string, 0, 4)
	if pred.Confidence < mediumRiskConfidence {
		warnings = append(warnings, WarnLowConfidence)
	}
	if !pred.ModelAgreement {
		warnings = append(warnings, WarnDisagreement)
	}
	switch {
	case ind.RSI > rsiOverbought:
		warnings = append(warnings, fmt.Sprintf(warnRSIFormat, "overbought"))
	case ind.RSI < rsiOversold:
		warnings = append(warnings, fmt.Sprintf(warnRSIFormat, "oversold"))
	}
	if ind.Volume.Trend == models.VolumeDecreasing && pred.Direction != models.Neutral {
		warnings = append(warnings, WarnLowVolume)
	}

	return models.RiskAssessment{Level: level, Warnings: warnings}
}
