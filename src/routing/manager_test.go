package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/config"
)

func newTestManager(enabled bool) *Manager {
	return NewManager(&config.RoutingConfig{
		Enabled:     enabled,
		Epsilon:     0.0001, // effectively pure exploitation for deterministic tests
		MaxTrialAge: 5 * time.Minute,
	})
}

func TestManager_DisabledSuggestsNothing(t *testing.T) {
	m := newTestManager(false)

	suggestion := m.Suggest("general", []string{"m1", "m2"})

	assert.Nil(t, suggestion, "disabled routing creates no trial")
	assert.Equal(t, 0, m.Stats().ActiveTrials)
}

func TestManager_SuggestOpensTrial(t *testing.T) {
	m := newTestManager(true)

	suggestion := m.Suggest("general", []string{"m1", "m2"})

	require.NotNil(t, suggestion)
	assert.NotEmpty(t, suggestion.TrialID)
	assert.Contains(t, []string{"m1", "m2"}, suggestion.Model)
	assert.Equal(t, 1, m.Stats().ActiveTrials)
}

func TestManager_NoCandidates(t *testing.T) {
	m := newTestManager(true)

	assert.Nil(t, m.Suggest("general", nil))
}

func TestManager_ObserveResolvesOnce(t *testing.T) {
	m := newTestManager(true)

	suggestion := m.Suggest("general", []string{"m1"})
	require.NotNil(t, suggestion)

	m.Observe("general", suggestion.TrialID, 0.9, nil)
	m.Observe("general", suggestion.TrialID, 0.1, nil) // no-op, already resolved

	stats := m.Stats()
	require.Contains(t, stats.PerTask, "general")
	modelStats := stats.PerTask["general"]["m1"]
	require.NotNil(t, modelStats)
	assert.Equal(t, int64(1), modelStats.Trials, "re-observing must not double count")
	assert.InDelta(t, 0.9, modelStats.AvgReward, 1e-9)
	assert.Equal(t, 0, stats.ActiveTrials)
}

func TestManager_ObserveUnknownTrialIsNoOp(t *testing.T) {
	m := newTestManager(true)

	m.Observe("general", "no-such-trial", 1.0, nil)
	m.Observe("general", "", 1.0, nil)

	assert.Empty(t, m.Stats().PerTask)
	assert.Empty(t, m.DrainEvents())
}

func TestManager_GreedyPrefersBestModel(t *testing.T) {
	m := newTestManager(true)

	// Give every candidate one observation so none is "unseen".
	for _, tc := range []struct {
		model  string
		reward float64
	}{{"m1", 0.2}, {"m2", 0.9}} {
		s := m.Suggest("general", []string{tc.model})
		require.NotNil(t, s)
		m.Observe("general", s.TrialID, tc.reward, nil)
	}

	wins := 0
	for i := 0; i < 20; i++ {
		s := m.Suggest("general", []string{"m1", "m2"})
		require.NotNil(t, s)
		if s.Model == "m2" {
			wins++
		}
		m.Observe("general", s.TrialID, mapReward(s.Model), nil)
	}

	assert.Greater(t, wins, 15, "the higher-reward model should dominate")
}

func mapReward(model string) float64 {
	if model == "m2" {
		return 0.9
	}
	return 0.2
}

func TestManager_UnseenCandidateTriedFirst(t *testing.T) {
	m := newTestManager(true)

	s := m.Suggest("general", []string{"m1"})
	require.NotNil(t, s)
	m.Observe("general", s.TrialID, 1.0, nil)

	// m2 has no observations yet, so exploitation picks it.
	s = m.Suggest("general", []string{"m1", "m2"})
	require.NotNil(t, s)
	assert.Equal(t, "m2", s.Model)
}

func TestManager_DrainEventsExhaustive(t *testing.T) {
	m := newTestManager(true)

	s := m.Suggest("general", []string{"m1"})
	require.NotNil(t, s)
	m.Observe("general", s.TrialID, 0.7, map[string]string{"outcome": "success"})

	events := m.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "trial_resolved", events[0].Type)
	assert.Equal(t, "m1", events[0].Model)
	assert.InDelta(t, 0.7, events[0].Reward, 1e-9)
	assert.Equal(t, s.TrialID, events[0].TrialID)

	assert.Empty(t, m.DrainEvents(), "a second drain returns nothing until new events arrive")
}

func TestManager_SweepAbandonsStaleTrials(t *testing.T) {
	m := NewManager(&config.RoutingConfig{
		Enabled:     true,
		Epsilon:     0.0001,
		MaxTrialAge: time.Minute,
	})

	s := m.Suggest("general", []string{"m1"})
	require.NotNil(t, s)

	swept := m.Sweep(time.Now().Add(2 * time.Minute))

	assert.Equal(t, 1, swept)
	stats := m.Stats()
	assert.Equal(t, 0, stats.ActiveTrials)
	assert.Equal(t, int64(1), stats.AbandonedTrials)

	events := m.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "trial_abandoned", events[0].Type)
	assert.Equal(t, s.TrialID, events[0].TrialID)

	// The abandoned trial is excluded from learning.
	m.Observe("general", s.TrialID, 1.0, nil)
	assert.Empty(t, m.Stats().PerTask)
}

func TestManager_ShadowModeGauge(t *testing.T) {
	m := NewManager(&config.RoutingConfig{
		Enabled:         true,
		Epsilon:         0.0001,
		MaxTrialAge:     time.Minute,
		ShadowTaskTypes: []string{"summarize"},
	})

	s := m.Suggest("summarize", []string{"m1", "m2"})
	require.NotNil(t, s)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.ShadowEvals)

	events := m.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "shadow_eval", events[0].Type)

	// Shadow evaluation never appears for non-shadow task types.
	m.Suggest("general", []string{"m1", "m2"})
	assert.Equal(t, int64(1), m.Stats().ShadowEvals)
}

func BenchmarkManager_Suggest(b *testing.B) {
	m := newTestManager(true)
	candidates := []string{"m1", "m2", "m3"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := m.Suggest("general", candidates)
		m.Observe("general", s.TrialID, 0.5, nil)
	}
}
