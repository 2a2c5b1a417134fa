package models

type VolumeTrend string

const (
	VolumeIncreasing VolumeTrend = "increasing"
	VolumeDecreasing VolumeTrend = "decreasing"
	VolumeStable     VolumeTrend = "stable"
)

type MACD struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// VolumeAnalysis compares the last five volumes with the trailing twenty.
// Averages are omitted on the short-window fallback.
type VolumeAnalysis struct {
	Trend          VolumeTrend `json:"trend"`
	Ratio          float64     `json:"ratio"`
	RecentAverage  float64     `json:"recent_average,omitempty"`
	OverallAverage float64     `json:"overall_average,omitempty"`
}

// IndicatorSet is derived once per window and never mutated.
// EMA and SMA only carry the periods the window was long enough for.
type IndicatorSet struct {
	RSI    float64         `json:"rsi"`
	MACD   MACD            `json:"macd"`
	EMA    map[int]float64 `json:"ema"`
	SMA    map[int]float64 `json:"sma"`
	Volume VolumeAnalysis  `json:"volume"`
}
