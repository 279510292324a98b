package ui

import (
	"fmt"
	"math"
)

// formatClock renders a countdown value as M:SS.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// performanceText buckets a score percentage the way the results screen
// always has: 60–69 and 70–79 are distinct tiers.
func performanceText(score float64) string {
	switch {
	case score >= 90:
		return "Excellent!"
	case score >= 80:
		return "Great job!"
	case score >= 70:
		return "Good work!"
	case score >= 60:
		return "Not bad!"
	default:
		return "Keep practicing!"
	}
}

// roundScore rounds a percentage for display.
func roundScore(score float64) int {
	return int(math.Round(score))
}
