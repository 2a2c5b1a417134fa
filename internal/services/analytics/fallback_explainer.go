package analytics

import (
	"context"

	domrepo "CandleInsight/internal/domain/repository"
	domsvc "CandleInsight/internal/domain/service"
	"CandleInsight/pkg/logger"
)

// FallbackExplainer prefers the remote model and answers locally when no key
// is available or the remote call fails. It never returns an error.
type FallbackExplainer struct {
	remote  *GeminiExplainer
	local   *RuleExplainer
	metrics domrepo.Metrics
	log     *logger.Logger
}

var _ domsvc.Explainer = (*FallbackExplainer)(nil)

func NewFallbackExplainer(remote *GeminiExplainer, local *RuleExplainer, metrics domrepo.Metrics, log *logger.Logger) *FallbackExplainer {
	if log == nil {
		log = logger.NewNop()
	}
	return &FallbackExplainer{remote: remote, local: local, metrics: metrics, log: log}
}

func (f *FallbackExplainer) Explain(ctx context.Context, in domsvc.ExplainInput) (string, error) {
	if f.remote != nil && f.remote.HasKey(in.APIKey) {
		text, err := f.remote.Explain(ctx, in)
		if err == nil {
			return text, nil
		}
		f.log.Warn("remote explanation failed, using rules",
			logger.String("symbol", in.Symbol),
			logger.Error(err),
		)
		if f.metrics != nil {
			f.metrics.RecordFallback("explanation")
		}
	}
	return f.local.Explain(ctx, in)
}
