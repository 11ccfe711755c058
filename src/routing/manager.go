package routing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/config"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/models"
)

// Trial is one pending bandit exploration instance. It resolves exactly
// once via Observe, or is swept to abandoned after MaxTrialAge.
type Trial struct {
	ID             string
	TaskType       string
	SuggestedModel string
	Candidates     []string
	StartedAt      time.Time
}

type modelStats struct {
	trials      int64
	totalReward float64
}

func (s *modelStats) avg() float64 {
	if s.trials == 0 {
		return 0
	}
	return s.totalReward / float64(s.trials)
}

// Manager tracks per-(taskType, model) reward statistics and suggests a
// model per task type using an epsilon-greedy exploration policy. When
// disabled it suggests nothing and routing falls back to the static policy.
type Manager struct {
	enabled     bool
	epsilon     float64
	maxTrialAge time.Duration
	shadowTasks map[string]bool

	mu        sync.Mutex
	stats     map[string]map[string]*modelStats
	trials    map[string]*Trial
	events    []models.RoutingEvent
	abandoned int64

	shadowEvals      int64
	shadowAgreements int64

	rng *rand.Rand
}

func NewManager(cfg *config.RoutingConfig) *Manager {
	epsilon := cfg.Epsilon
	if epsilon <= 0 || epsilon >= 1 {
		epsilon = 0.1
	}
	maxAge := cfg.MaxTrialAge
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}

	shadow := make(map[string]bool, len(cfg.ShadowTaskTypes))
	for _, t := range cfg.ShadowTaskTypes {
		shadow[t] = true
	}

	return &Manager{
		enabled:     cfg.Enabled,
		epsilon:     epsilon,
		maxTrialAge: maxAge,
		shadowTasks: shadow,
		stats:       make(map[string]map[string]*modelStats),
		trials:      make(map[string]*Trial),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Suggest picks a model for the task type and opens a trial. Returns nil
// when routing is disabled or there are no candidates: the caller falls
// back to its static policy and no trial is created.
func (m *Manager) Suggest(taskType string, candidates []string) *models.RoutingSuggestion {
	if !m.enabled || len(candidates) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	greedy := m.greedyChoiceLocked(taskType, candidates)

	chosen := greedy
	if m.rng.Float64() < m.epsilon {
		chosen = candidates[m.rng.Intn(len(candidates))]
	}

	trial := &Trial{
		ID:             uuid.NewString(),
		TaskType:       taskType,
		SuggestedModel: chosen,
		Candidates:     candidates,
		StartedAt:      time.Now(),
	}
	m.trials[trial.ID] = trial

	if m.shadowTasks[taskType] && len(candidates) > 1 {
		m.evaluateShadowLocked(taskType, chosen, greedy, candidates)
	}

	return &models.RoutingSuggestion{
		TrialID: trial.ID,
		Model:   chosen,
	}
}

// greedyChoiceLocked returns the candidate with the best running average
// reward. Candidates never tried yet win outright, so every candidate gets
// observed at least once. Caller holds the lock.
func (m *Manager) greedyChoiceLocked(taskType string, candidates []string) string {
	byModel := m.stats[taskType]

	best := candidates[0]
	bestAvg := -1.0
	for _, cand := range candidates {
		s, ok := byModel[cand]
		if !ok || s.trials == 0 {
			return cand
		}
		if avg := s.avg(); avg > bestAvg {
			best = cand
			bestAvg = avg
		}
	}

	return best
}

// evaluateShadowLocked records whether an alternative candidate would have
// agreed with the live choice. Shadow outcomes feed a separate gauge and
// never change the model chosen for the live request. Caller holds the lock.
func (m *Manager) evaluateShadowLocked(taskType, chosen, greedy string, candidates []string) {
	alternate := candidates[m.rng.Intn(len(candidates))]

	m.shadowEvals++
	if alternate == greedy {
		m.shadowAgreements++
	}

	m.events = append(m.events, models.RoutingEvent{
		Type:      "shadow_eval",
		TaskType:  taskType,
		Model:     alternate,
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"live_model":   chosen,
			"greedy_model": greedy,
		},
	})
}

// Observe resolves a trial exactly once, folding the reward into the
// running statistics and queueing a RoutingEvent. An unknown or already
// resolved trial ID is a benign no-op: re-observing never double counts.
func (m *Manager) Observe(taskType, trialID string, reward float64, metadata map[string]string) {
	if trialID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	trial, ok := m.trials[trialID]
	if !ok || trial.TaskType != taskType {
		return
	}
	delete(m.trials, trialID)

	byModel, ok := m.stats[taskType]
	if !ok {
		byModel = make(map[string]*modelStats)
		m.stats[taskType] = byModel
	}
	s, ok := byModel[trial.SuggestedModel]
	if !ok {
		s = &modelStats{}
		byModel[trial.SuggestedModel] = s
	}
	s.trials++
	s.totalReward += reward

	m.events = append(m.events, models.RoutingEvent{
		Type:      "trial_resolved",
		TaskType:  taskType,
		Model:     trial.SuggestedModel,
		TrialID:   trialID,
		Reward:    reward,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
}

// DrainEvents atomically removes and returns all queued events. Never
// blocks; returns an empty slice when nothing is queued.
func (m *Manager) DrainEvents() []models.RoutingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events
	m.events = nil
	return events
}

// Sweep discards pending trials older than the maximum trial age. Abandoned
// trials are excluded from reward averages so statistics are not biased by
// requests that never reported back.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	swept := 0
	for id, trial := range m.trials {
		if now.Sub(trial.StartedAt) > m.maxTrialAge {
			delete(m.trials, id)
			m.abandoned++
			swept++

			m.events = append(m.events, models.RoutingEvent{
				Type:      "trial_abandoned",
				TaskType:  trial.TaskType,
				Model:     trial.SuggestedModel,
				TrialID:   id,
				Timestamp: now,
			})
		}
	}

	return swept
}

// StartSweeper runs Sweep on an interval until the context is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(time.Now())
			}
		}
	}()
}

// Enabled reports whether adaptive routing is active.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Stats snapshots the per-task running reward statistics.
func (m *Manager) Stats() models.RoutingStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	perTask := make(map[string]map[string]*models.ModelStats, len(m.stats))
	for task, byModel := range m.stats {
		perTask[task] = make(map[string]*models.ModelStats, len(byModel))
		for model, s := range byModel {
			perTask[task][model] = &models.ModelStats{
				Trials:    s.trials,
				AvgReward: s.avg(),
			}
		}
	}

	return models.RoutingStats{
		Enabled:          m.enabled,
		ActiveTrials:     len(m.trials),
		AbandonedTrials:  m.abandoned,
		ShadowEvals:      m.shadowEvals,
		ShadowAgreements: m.shadowAgreements,
		PerTask:          perTask,
	}
}
