package util

import (
	"math"
	"testing"
)

func TestRound(t *testing.T) {
	cases := []struct {
		in     float64
		places int32
		want   float64
	}{
		{66.666666, 2, 66.67},
		{0.12345, 4, 0.1235},
		{-0.12345, 4, -0.1235},
		{56, 1, 56},
		{math.NaN(), 2, 0},
		{math.Inf(1), 2, 0},
	}
	for _, c := range cases {
		if got := Round(c.in, c.places); got != c.want {
			t.Fatalf("Round(%v, %d) = %v, want %v", c.in, c.places, got, c.want)
		}
	}
}

func TestMean(t *testing.T) {
	if got := Mean(nil); got != 0 {
		t.Fatalf("expected 0 for empty, got %v", got)
	}
	if got := Mean([]float64{10, 20, 30}); got != 20 {
		t.Fatalf("unexpected mean %v", got)
	}
}
