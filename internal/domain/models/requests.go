package models

// Requests for the insight HTTP, WebSocket and Kafka surfaces. Defined in domain for reuse.

// IndicatorData is chart-side indicator context sent by the extension. Accepted, not scored.
type IndicatorData struct {
	Name   string    `json:"name" validate:"required"`
	Type   string    `json:"type" validate:"oneof=momentum trend volume volatility"`
	Values []float64 `json:"values"`
}

type AnalyzeRequest struct {
	Symbol       string          `json:"symbol" validate:"required,max=32"`
	Timeframe    string          `json:"timeframe" default:"1D" validate:"max=8"`
	Candles      []Candle        `json:"candles" validate:"required"`
	Indicators   []IndicatorData `json:"indicators" validate:"dive"`
	GeminiAPIKey string          `json:"gemini_api_key,omitempty"`
	// WithNews is set by the analyze surfaces, not by callers.
	WithNews bool `json:"-"`
}

type StoredAnalyzeRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"200" validate:"gte=5,lte=5000"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m 1h"`
}

type NewsRequest struct {
	Symbol string `param:"symbol" validate:"required,max=32"`
}
