package domain

import "math"

// MaxEfficiency caps the output-to-input ratio.
const MaxEfficiency = 2.0

// Composite score weights. Each term is a non-decreasing function of its
// inputs, so the score never drops when any single input grows.
const (
	volumeWeight     = 400.0
	efficiencyWeight = 300.0
	sessionWeight    = 200.0
	streakWeight     = 100.0
)

// EfficiencyScore returns the output/input ratio capped at MaxEfficiency.
// Zero or negative input yields 0.
func EfficiencyScore(inputTokens, outputTokens int64) float64 {
	if inputTokens <= 0 || outputTokens <= 0 {
		return 0
	}
	ratio := float64(outputTokens) / float64(inputTokens)
	if ratio > MaxEfficiency {
		return MaxEfficiency
	}
	return ratio
}

// CompositeScore combines token volume, efficiency, session count and streak
// length into one sortable value rounded to two decimals.
//
// The efficiency term is weighted by input volume (input * ratio, which equals
// min(output, 2*input)) so that adding input tokens cannot lower the score.
func CompositeScore(inputTokens, outputTokens, sessionCount, streakDays int64) float64 {
	input := clampNonNegative(inputTokens)
	output := clampNonNegative(outputTokens)
	sessions := clampNonNegative(sessionCount)
	streak := clampNonNegative(streakDays)

	volume := float64(input) + float64(output)
	effective := math.Min(float64(output), MaxEfficiency*float64(input))

	score := volumeWeight*math.Log10(1+volume) +
		efficiencyWeight*math.Log10(1+effective) +
		sessionWeight*math.Log10(1+float64(sessions)) +
		streakWeight*math.Log10(1+float64(streak))

	return math.Round(score*100) / 100
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
