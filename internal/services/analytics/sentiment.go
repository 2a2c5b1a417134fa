package analytics

import (
	"strings"

	"CandleInsight/pkg/util"
)

var (
	positiveWords = []string{"surge", "rally", "gain", "rise", "bullish", "upgrade", "beat", "strong", "growth", "profit", "success", "high"}
	negativeWords = []string{"drop", "fall", "decline", "bearish", "downgrade", "miss", "weak", "loss", "fail", "low", "crash", "sell"}
)

// ScoreHeadlines returns (pos-neg)/(pos+neg) over substring hits, rounded to 2 decimals.
// Each word counts at most once per headline. No hits scores 0.
func ScoreHeadlines(headlines []string) float64 {
	var pos, neg int
	for _, h := range headlines {
		lower := strings.ToLower(h)
		pos += countHits(lower, positiveWords)
		neg += countHits(lower, negativeWords)
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	return util.Round(float64(pos-neg)/float64(total), 2)
}

func countHits(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}
