package routing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/cache"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/config"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/models"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/utils"
)

// Coordinator orchestrates one request end to end: normalize, cache
// lookup, routing decision, dispatch, best-effort store, reward report.
// Cache and routing failures never block the path to the dispatcher; only
// dispatch errors surface to the caller.
type Coordinator struct {
	cache      *cache.TieredCache
	manager    *Manager
	dispatcher models.Dispatcher

	fallback          map[string][]string
	defaultCandidates []string
	weights           models.RewardWeights
	defaultThreshold  float64
	ttl               time.Duration
}

func NewCoordinator(tc *cache.TieredCache, manager *Manager, dispatcher models.Dispatcher, cfg *config.Config) *Coordinator {
	defaults := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		defaults = append(defaults, m.Name)
	}

	threshold := cfg.Cache.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.8
	}

	return &Coordinator{
		cache:      tc,
		manager:    manager,
		dispatcher: dispatcher,
		fallback:   cfg.Fallback,
		weights: models.RewardWeights{
			Cost:    cfg.Routing.RewardWeights.Cost,
			Latency: cfg.Routing.RewardWeights.Latency,
			Quality: cfg.Routing.RewardWeights.Quality,
		},
		defaultCandidates: defaults,
		defaultThreshold:  threshold,
		ttl:               cfg.Cache.TTL,
	}
}

// Handle serves one completion request.
func (c *Coordinator) Handle(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	start := time.Now()

	threshold := req.SimilarityThreshold
	if threshold <= 0 {
		threshold = c.defaultThreshold
	}

	// Cache lookup is best-effort: an error here must not stop dispatch.
	// Pinned requests cache under their model; auto-routed requests share
	// the unpinned partition, since any backend's answer can serve them.
	if result, err := c.cache.Get(ctx, req.Prompt, req.Model, req.Namespace, threshold); err == nil && result != nil {
		return c.cachedResponse(req, result, start), nil
	}

	var suggestion *models.RoutingSuggestion
	var model string
	var candidates []string

	if req.Model != "" {
		model = req.Model
	} else {
		candidates = c.candidates(req.TaskType)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no candidate models for task type %q", req.TaskType)
		}
		suggestion = c.manager.Suggest(req.TaskType, candidates)
		model = c.chooseModel(suggestion, candidates)
	}

	opts := &models.CallOptions{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	dispatchStart := time.Now()
	text, err := c.dispatcher.Call(ctx, model, req.Prompt, opts)
	latency := time.Since(dispatchStart)

	if err != nil {
		// A failed or cancelled dispatch still resolves the trial, with
		// the lowest reward, so abandoned outcomes do not bias the stats.
		c.observe(req.TaskType, suggestion, 0, map[string]string{
			"model":   model,
			"outcome": outcomeLabel(ctx, err),
		})
		return nil, err
	}

	info, _ := c.dispatcher.Info(model)
	costMetrics := utils.CalculateCostMetrics(req.Prompt, text, info, false)

	response := &models.CompletionResponse{
		Response:    text,
		ModelUsed:   model,
		TaskType:    req.TaskType,
		CacheHit:    false,
		Latency:     time.Since(start),
		Timestamp:   time.Now(),
		CostMetrics: costMetrics,
	}

	// Store and reward report are side channels; neither may fail the
	// response that was already obtained.
	_ = c.cache.Set(ctx, req.Prompt, req.Model, req.Namespace, response, c.ttl)

	reward := utils.ComputeReward(
		c.weights,
		c.expectedCost(candidates, costMetrics.InputTokens, costMetrics.OutputTokens),
		costMetrics.Cost,
		time.Duration(info.ExpectedLatencyMs)*time.Millisecond,
		latency,
		1.0,
	)
	c.observe(req.TaskType, suggestion, reward, map[string]string{
		"model":      model,
		"outcome":    "success",
		"latency_ms": strconv.FormatInt(latency.Milliseconds(), 10),
	})

	return response, nil
}

// cachedResponse adapts a cache hit into a response, reporting the money
// the hit saved. No reward is observed here: there is no open trial, and a
// synthetic sample would double count against real dispatch latency.
func (c *Coordinator) cachedResponse(req *models.CompletionRequest, result *cache.Result, start time.Time) *models.CompletionResponse {
	cached := result.Response

	info, _ := c.dispatcher.Info(cached.ModelUsed)
	costMetrics := utils.CalculateCostMetrics(req.Prompt, cached.Response, info, true)

	return &models.CompletionResponse{
		Response:    cached.Response,
		ModelUsed:   cached.ModelUsed,
		TaskType:    req.TaskType,
		CacheHit:    true,
		CacheTier:   result.Tier,
		Similarity:  result.Similarity,
		Latency:     time.Since(start),
		Timestamp:   time.Now(),
		CostMetrics: costMetrics,
	}
}

func (c *Coordinator) candidates(taskType string) []string {
	if cands, ok := c.fallback[taskType]; ok && len(cands) > 0 {
		return cands
	}
	return c.defaultCandidates
}

// chooseModel prefers the bandit suggestion; with none (routing disabled),
// the static policy picks the first candidate whose backend is healthy,
// falling back to the first candidate when all are sitting out.
func (c *Coordinator) chooseModel(suggestion *models.RoutingSuggestion, candidates []string) string {
	if suggestion != nil && suggestion.Model != "" {
		return suggestion.Model
	}

	for _, cand := range candidates {
		if c.dispatcher.IsHealthy(cand) {
			return cand
		}
	}
	return candidates[0]
}

// expectedCost is what a uniformly random candidate would have charged for
// the same token counts. The expectation the actual cost is judged against.
func (c *Coordinator) expectedCost(candidates []string, inputTokens, outputTokens int) float64 {
	var total float64
	var n int
	for _, cand := range candidates {
		if info, ok := c.dispatcher.Info(cand); ok {
			total += utils.CalculateCost(inputTokens, outputTokens, info)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func (c *Coordinator) observe(taskType string, suggestion *models.RoutingSuggestion, reward float64, metadata map[string]string) {
	if suggestion == nil {
		return
	}
	c.manager.Observe(taskType, suggestion.TrialID, reward, metadata)
}

func outcomeLabel(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	if err != nil {
		return "failure"
	}
	return "success"
}
