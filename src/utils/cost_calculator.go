package utils

import (
	"strings"
	"time"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/models"
)

// Floor applied to actual cost when computing the cost ratio, so a
// zero-cost outcome (cache hit, free tier) cannot blow up the reward.
const costEpsilon = 1e-6

// EstimateTokenCount estimates token count from text (rough approximation)
// More accurate: ~1 token per 4 characters for English
func EstimateTokenCount(text string) int {
	// Remove extra whitespace
	text = strings.TrimSpace(text)

	// Rough estimate: 1 token ≈ 4 characters
	charCount := len(text)
	tokenCount := charCount / 4

	// Add some buffer for special tokens
	if tokenCount < 10 {
		tokenCount = 10
	}

	return tokenCount
}

// CalculateCost computes the USD cost of one call given the model's
// per-1M-token pricing.
func CalculateCost(inputTokens, outputTokens int, info models.ModelInfo) float64 {
	inputCost := float64(inputTokens) * info.InputPer1M / 1000000
	outputCost := float64(outputTokens) * info.OutputPer1M / 1000000
	return inputCost + outputCost
}

// CalculateCostMetrics builds the cost report for one completion. On a
// cache hit the inference cost is zero and the model's price becomes the
// estimated savings.
func CalculateCostMetrics(prompt, response string, info models.ModelInfo, cacheHit bool) *models.CostMetrics {
	inputTokens := EstimateTokenCount(prompt)
	outputTokens := EstimateTokenCount(response)

	metrics := &models.CostMetrics{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		Model:        info.Name,
	}

	if cacheHit {
		metrics.Cost = 0
		metrics.EstimatedSavings = CalculateCost(inputTokens, outputTokens, info)
		return metrics
	}

	metrics.Cost = CalculateCost(inputTokens, outputTokens, info)
	return metrics
}

// ComputeReward combines cost, latency and quality signals into a single
// scalar in [0, 1], higher is better. Each component is a ratio of expected
// to actual, capped at 1 so beating expectations is not over-rewarded.
// Actual cost is clamped to a small epsilon: the ratio is undefined at
// zero, so a free outcome simply earns the full cost component.
func ComputeReward(weights models.RewardWeights, expectedCost, actualCost float64, expectedLatency, actualLatency time.Duration, quality float64) float64 {
	total := weights.Cost + weights.Latency + weights.Quality
	if total <= 0 {
		return quality
	}

	costRatio := 1.0
	if expectedCost > 0 {
		denom := actualCost
		if denom < costEpsilon {
			denom = costEpsilon
		}
		costRatio = expectedCost / denom
		if costRatio > 1.0 {
			costRatio = 1.0
		}
	}

	latencyRatio := 1.0
	if expectedLatency > 0 && actualLatency > 0 {
		latencyRatio = float64(expectedLatency) / float64(actualLatency)
		if latencyRatio > 1.0 {
			latencyRatio = 1.0
		}
	}

	if quality < 0 {
		quality = 0
	} else if quality > 1 {
		quality = 1
	}

	return (weights.Cost*costRatio + weights.Latency*latencyRatio + weights.Quality*quality) / total
}
