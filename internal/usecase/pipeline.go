package usecase

import (
	"sync"

	"CandleInsight/internal/domain/models"
	"CandleInsight/internal/services/fusion"
	"CandleInsight/internal/services/indicators"
	"CandleInsight/internal/services/scoring"
)

// Pipeline runs the pure prediction core: indicators, both scorers, fusion, risk.
// It holds only stateless collaborators and is safe for concurrent use.
type Pipeline struct {
	engine  *indicators.Engine
	pattern scoring.Scorer
	rule    scoring.Scorer
	fusion  *fusion.Engine
	risk    *fusion.RiskAssessor
}

func NewPipeline(engine *indicators.Engine, pattern *scoring.PatternScorer, rule *scoring.RuleScorer, fe *fusion.Engine, risk *fusion.RiskAssessor) *Pipeline {
	return &Pipeline{engine: engine, pattern: pattern, rule: rule, fusion: fe, risk: risk}
}

// Evaluate never fails; short windows take the documented fallback paths.
func (p *Pipeline) Evaluate(candles []models.Candle) models.Analysis {
	ind := p.engine.Compute(candles)

	// scorers are independent, run them side by side
	var (
		wg      sync.WaitGroup
		pattern models.ScorerOutput
		rule    models.ScorerOutput
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pattern = p.pattern.Score(candles, ind)
	}()
	go func() {
		defer wg.Done()
		rule = p.rule.Score(candles, ind)
	}()
	wg.Wait()

	pred := p.fusion.Fuse(pattern, rule)
	return models.Analysis{
		Indicators: ind,
		Pattern:    pattern,
		Rule:       rule,
		Prediction: pred,
		Risk:       p.risk.Assess(pred, ind),
	}
}
