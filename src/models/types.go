package models

import "time"

type CompletionRequest struct {
	Prompt              string            `json:"prompt" binding:"required"`
	TaskType            string            `json:"task_type,omitempty"`
	Model               string            `json:"model,omitempty"` // pin a backend, bypassing routing
	Namespace           string            `json:"namespace,omitempty"`
	MaxTokens           int               `json:"max_tokens,omitempty"`
	Temperature         float32           `json:"temperature,omitempty"`
	SimilarityThreshold float64           `json:"similarity_threshold,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

type CompletionResponse struct {
	Response    string        `json:"response"`
	ModelUsed   string        `json:"model_used"`
	TaskType    string        `json:"task_type,omitempty"`
	CacheHit    bool          `json:"cache_hit"`
	CacheTier   string        `json:"cache_tier,omitempty"` // "exact", "semantic" or "remote"
	Similarity  float64       `json:"similarity,omitempty"`
	Latency     time.Duration `json:"latency"`
	Timestamp   time.Time     `json:"timestamp"`
	CostMetrics *CostMetrics  `json:"cost_metrics,omitempty"`
}

type CostMetrics struct {
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`              // Actual cost in USD
	EstimatedSavings float64 `json:"estimated_savings"` // Money saved by a cache hit
	Model            string  `json:"model"`
}

// CacheStats is a point-in-time snapshot of cache performance counters.
type CacheStats struct {
	HitRate            float64 `json:"hit_rate"`
	ExactHits          int64   `json:"exact_hits"`
	SemanticHits       int64   `json:"semantic_hits"`
	HighConfidenceHits int64   `json:"high_confidence_hits"`
	Misses             int64   `json:"misses"`
	Evictions          int64   `json:"evictions"`
	Size               int     `json:"size"`
}

// RoutingSuggestion is the outcome of one bandit decision. TrialID ties the
// eventual reward observation back to the suggestion.
type RoutingSuggestion struct {
	TrialID string `json:"trial_id"`
	Model   string `json:"model"`
}

// RoutingEvent is an immutable record emitted when a trial resolves or when
// shadow mode evaluates a candidate. Events are queued internally and handed
// off wholesale via DrainEvents.
type RoutingEvent struct {
	Type      string            `json:"type"` // "trial_resolved", "trial_abandoned" or "shadow_eval"
	TaskType  string            `json:"task_type"`
	Model     string            `json:"model"`
	TrialID   string            `json:"trial_id,omitempty"`
	Reward    float64           `json:"reward"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type ModelStats struct {
	Trials    int64   `json:"trials"`
	AvgReward float64 `json:"avg_reward"`
}

type RoutingStats struct {
	Enabled          bool                              `json:"enabled"`
	ActiveTrials     int                               `json:"active_trials"`
	AbandonedTrials  int64                             `json:"abandoned_trials"`
	ShadowEvals      int64                             `json:"shadow_evals"`
	ShadowAgreements int64                             `json:"shadow_agreements"`
	PerTask          map[string]map[string]*ModelStats `json:"per_task"`
}

// RewardWeights controls how cost, latency and quality signals combine into
// the scalar reward reported to the routing manager. Higher reward is better.
type RewardWeights struct {
	Cost    float64 `json:"cost"`
	Latency float64 `json:"latency"`
	Quality float64 `json:"quality"`
}

// ModelInfo describes a configured backend model, including the pricing and
// latency expectations used for reward computation.
type ModelInfo struct {
	Name              string
	InputPer1M        float64
	OutputPer1M       float64
	ExpectedLatencyMs int
}
