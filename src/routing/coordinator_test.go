package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/cache"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/config"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/mocks"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/models"
)

func testConfig(routingEnabled bool) *config.Config {
	return &config.Config{
		Models: []config.ModelConfig{
			{Name: "m1", InputPer1M: 0.5, OutputPer1M: 1.5, ExpectedLatencyMs: 800},
			{Name: "m2", InputPer1M: 30, OutputPer1M: 60, ExpectedLatencyMs: 2000},
		},
		Cache: config.CacheConfig{
			SimilarityThreshold: 0.8,
			MaxSize:             100,
			TTL:                 time.Hour,
		},
		Routing: config.RoutingConfig{
			Enabled:     routingEnabled,
			Epsilon:     0.0001,
			MaxTrialAge: 5 * time.Minute,
		},
		Fallback: map[string][]string{
			"general": {"m1", "m2"},
		},
	}
}

func setupCoordinator(routingEnabled bool) (*Coordinator, *mocks.MockDispatcher, *Manager, *cache.TieredCache) {
	cfg := testConfig(routingEnabled)
	tc := cache.NewTieredCache(&cfg.Cache, nil, nil)
	manager := NewManager(&cfg.Routing)
	dispatcher := new(mocks.MockDispatcher)

	info1 := models.ModelInfo{Name: "m1", InputPer1M: 0.5, OutputPer1M: 1.5, ExpectedLatencyMs: 800}
	info2 := models.ModelInfo{Name: "m2", InputPer1M: 30, OutputPer1M: 60, ExpectedLatencyMs: 2000}
	dispatcher.On("Info", "m1").Return(info1, true).Maybe()
	dispatcher.On("Info", "m2").Return(info2, true).Maybe()

	return NewCoordinator(tc, manager, dispatcher, cfg), dispatcher, manager, tc
}

func TestCoordinator_MissDispatchesThenCaches(t *testing.T) {
	coordinator, dispatcher, _, _ := setupCoordinator(false)

	dispatcher.On("IsHealthy", "m1").Return(true)
	dispatcher.On("Call", mock.Anything, "m1", mock.Anything, mock.Anything).Return("Paris", nil).Once()

	req := &models.CompletionRequest{
		Prompt:   "What is the capital of France?",
		TaskType: "general",
	}

	resp, err := coordinator.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Paris", resp.Response)
	assert.Equal(t, "m1", resp.ModelUsed)
	assert.False(t, resp.CacheHit)
	require.NotNil(t, resp.CostMetrics)
	assert.Greater(t, resp.CostMetrics.Cost, 0.0)

	// The same prompt, modulo case, now comes from the cache.
	resp, err = coordinator.Handle(context.Background(), &models.CompletionRequest{
		Prompt:   "what is the capital of france?",
		TaskType: "general",
	})
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)
	assert.Equal(t, cache.TierExact, resp.CacheTier)
	assert.Equal(t, "Paris", resp.Response)
	require.NotNil(t, resp.CostMetrics)
	assert.Equal(t, 0.0, resp.CostMetrics.Cost)
	assert.Greater(t, resp.CostMetrics.EstimatedSavings, 0.0)

	dispatcher.AssertNumberOfCalls(t, "Call", 1)
}

func TestCoordinator_StaticPolicySkipsUnhealthyBackend(t *testing.T) {
	coordinator, dispatcher, _, _ := setupCoordinator(false)

	dispatcher.On("IsHealthy", "m1").Return(false)
	dispatcher.On("IsHealthy", "m2").Return(true)
	dispatcher.On("Call", mock.Anything, "m2", mock.Anything, mock.Anything).Return("answer", nil)

	resp, err := coordinator.Handle(context.Background(), &models.CompletionRequest{
		Prompt:   "route me around the outage",
		TaskType: "general",
	})

	require.NoError(t, err)
	assert.Equal(t, "m2", resp.ModelUsed)
}

func TestCoordinator_AdaptiveRoutingObservesReward(t *testing.T) {
	coordinator, dispatcher, manager, _ := setupCoordinator(true)

	dispatcher.On("Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("fine", nil)

	_, err := coordinator.Handle(context.Background(), &models.CompletionRequest{
		Prompt:   "a prompt that misses the cache",
		TaskType: "general",
	})
	require.NoError(t, err)

	stats := manager.Stats()
	assert.Equal(t, 0, stats.ActiveTrials, "the trial resolved with the request")
	require.Contains(t, stats.PerTask, "general")

	var trials int64
	for _, s := range stats.PerTask["general"] {
		trials += s.Trials
		assert.Greater(t, s.AvgReward, 0.0)
	}
	assert.Equal(t, int64(1), trials)

	events := manager.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "trial_resolved", events[0].Type)
	assert.Equal(t, "success", events[0].Metadata["outcome"])
}

func TestCoordinator_DispatchFailureNotCached(t *testing.T) {
	coordinator, dispatcher, manager, tc := setupCoordinator(true)

	dispatcher.On("Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("backend exploded"))

	_, err := coordinator.Handle(context.Background(), &models.CompletionRequest{
		Prompt:   "a prompt that will fail",
		TaskType: "general",
	})

	require.Error(t, err)
	assert.Equal(t, 0, tc.Size(), "failed responses are never cached")

	// The failure still resolved the trial, with the lowest reward.
	events := manager.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "failure", events[0].Metadata["outcome"])
	assert.Equal(t, 0.0, events[0].Reward)
}

func TestCoordinator_CancelledDispatchObserved(t *testing.T) {
	coordinator, dispatcher, manager, _ := setupCoordinator(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dispatcher.On("Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", context.Canceled)

	_, err := coordinator.Handle(ctx, &models.CompletionRequest{
		Prompt:   "the caller gave up",
		TaskType: "general",
	})

	require.Error(t, err)

	events := manager.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "cancelled", events[0].Metadata["outcome"])
}

func TestCoordinator_PinnedModelBypassesRouting(t *testing.T) {
	coordinator, dispatcher, manager, _ := setupCoordinator(true)

	dispatcher.On("Info", "m9").Return(models.ModelInfo{}, false).Maybe()
	dispatcher.On("Call", mock.Anything, "m9", mock.Anything, mock.Anything).Return("pinned answer", nil)

	resp, err := coordinator.Handle(context.Background(), &models.CompletionRequest{
		Prompt:   "use exactly this backend",
		TaskType: "general",
		Model:    "m9",
	})

	require.NoError(t, err)
	assert.Equal(t, "m9", resp.ModelUsed)

	stats := manager.Stats()
	assert.Equal(t, 0, stats.ActiveTrials)
	assert.Empty(t, stats.PerTask, "pinned requests open no trial")
}

func TestCoordinator_UnknownTaskTypeUsesAllModels(t *testing.T) {
	coordinator, dispatcher, _, _ := setupCoordinator(false)

	dispatcher.On("IsHealthy", "m1").Return(true)
	dispatcher.On("Call", mock.Anything, "m1", mock.Anything, mock.Anything).Return("ok", nil)

	resp, err := coordinator.Handle(context.Background(), &models.CompletionRequest{
		Prompt:   "no fallback entry for this",
		TaskType: "exotic",
	})

	require.NoError(t, err)
	assert.Equal(t, "m1", resp.ModelUsed)
}
