package fusion

import (
	"math/rand"
	"testing"

	"CandleInsight/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func output(d models.Direction, conf, bull, bear, neutral float64) models.ScorerOutput {
	return models.ScorerOutput{
		Direction:     d,
		Confidence:    conf,
		Probabilities: models.Probabilities{Bullish: bull, Bearish: bear, Neutral: neutral},
	}
}

func TestFuseAgreement(t *testing.T) {
	a := output(models.Bullish, 60, 0.6, 0.2, 0.2)
	b := output(models.Bullish, 40, 0.5, 0.25, 0.25)

	got := Fuse(a, b)
	assert.Equal(t, models.Bullish, got.Direction)
	assert.True(t, got.ModelAgreement)
	// blended probability (56%) beats the blended confidence (52)
	assert.Equal(t, 56.0, got.Confidence)
	assert.Equal(t, models.Probabilities{Bullish: 56, Bearish: 22, Neutral: 22}, got.Probabilities)
	assert.Equal(t, models.Bullish, got.PatternSignal)
	assert.Equal(t, models.Bullish, got.RuleSignal)
}

func TestFuseAgreementRenormalizes(t *testing.T) {
	// floored neutral values push the inputs above 1
	a := output(models.Neutral, 20, 0.5, 0.5, 0.1)
	b := output(models.Neutral, 20, 0.5, 0.5, 0.1)

	got := Fuse(a, b)
	assert.InDelta(t, 100, got.Probabilities.Sum(), 0.2)
	assert.Equal(t, 45.5, got.Probabilities.Bullish)
}

func TestFuseDisagreementTrustsConfidentPattern(t *testing.T) {
	a := output(models.Bullish, 80, 0.8, 0.1, 0.1)
	b := output(models.Bearish, 50, 0.2, 0.5, 0.3)

	got := Fuse(a, b)
	assert.Equal(t, models.Bullish, got.Direction)
	assert.Equal(t, 56.0, got.Confidence)
	assert.False(t, got.ModelAgreement)
	assert.Equal(t, models.Probabilities{Bullish: 80, Bearish: 10, Neutral: 10}, got.Probabilities)
	assert.Equal(t, models.Bullish, got.PatternSignal)
	assert.Equal(t, models.Bearish, got.RuleSignal)
}

func TestFuseDisagreementTrustsConfidentRule(t *testing.T) {
	a := output(models.Bullish, 45, 0.45, 0.2, 0.35)
	b := output(models.Bearish, 85, 0.05, 0.85, 0.1)

	got := Fuse(a, b)
	assert.Equal(t, models.Bearish, got.Direction)
	assert.Equal(t, 59.5, got.Confidence)
}

func TestFuseDisagreementFallsBackToNeutral(t *testing.T) {
	cases := []struct {
		name string
		a, b models.ScorerOutput
	}{
		{"both weak", output(models.Bullish, 60, 0.6, 0.2, 0.2), output(models.Bearish, 55, 0.2, 0.55, 0.25)},
		{"margin too small", output(models.Bullish, 80, 0.8, 0.1, 0.1), output(models.Bearish, 65, 0.1, 0.65, 0.25)},
		{"exactly at threshold", output(models.Bullish, 70, 0.7, 0.1, 0.2), output(models.Neutral, 30, 0.3, 0.3, 0.4)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Fuse(tc.a, tc.b)
			assert.Equal(t, models.Neutral, got.Direction)
			assert.Equal(t, 40.0, got.Confidence)
			assert.Equal(t, models.Probabilities{Bullish: 33, Bearish: 33, Neutral: 34}, got.Probabilities)
			assert.False(t, got.ModelAgreement)
		})
	}
}

func TestFuseCapsConfidence(t *testing.T) {
	a := output(models.Bearish, 99, 0, 1, 0)
	b := output(models.Bearish, 99, 0, 1, 0)
	assert.Equal(t, 95.0, Fuse(a, b).Confidence)
}

func TestFuseProperties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	dirs := []models.Direction{models.Bullish, models.Bearish, models.Neutral}
	random := func() models.ScorerOutput {
		bull, bear := r.Float64(), r.Float64()
		total := bull + bear + r.Float64() + 0.01
		return output(dirs[r.Intn(3)], r.Float64()*100, bull/total, bear/total, 1-bull/total-bear/total)
	}
	for i := 0; i < 500; i++ {
		got := Fuse(random(), random())
		require.GreaterOrEqual(t, got.Confidence, 0.0)
		require.LessOrEqual(t, got.Confidence, 95.0)
		require.InDelta(t, 100, got.Probabilities.Sum(), 0.2)
	}
}

func TestWithWeights(t *testing.T) {
	e := NewEngine(WithWeights(0.5, 0.5))
	a := output(models.Bullish, 60, 0.6, 0.2, 0.2)
	b := output(models.Bullish, 40, 0.4, 0.3, 0.3)
	assert.Equal(t, 50.0, e.Fuse(a, b).Probabilities.Bullish)

	ignored := NewEngine(WithWeights(0, 1))
	assert.Equal(t, PatternWeight, ignored.patternWeight)
}
