package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/config"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/models"
)

const (
	// Consecutive failures before a backend is marked unhealthy.
	unhealthyAfter = 3

	// How long an unhealthy backend sits out before being retried.
	healthCooldown = 30 * time.Second
)

type modelClient struct {
	llm       llms.Model
	info      models.ModelInfo
	maxTokens int

	mu               sync.Mutex
	consecutiveFails int
	unhealthyUntil   time.Time
}

// Registry implements the Dispatcher capability: one langchaingo client per
// configured backend model, with failure-count based health marking. It does
// not retry; retry and backoff policy belongs to the provider client.
type Registry struct {
	clients map[string]*modelClient
}

func NewRegistry(cfgs []config.ModelConfig) (*Registry, error) {
	clients := make(map[string]*modelClient, len(cfgs))

	for _, cfg := range cfgs {
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Name),
		}
		if cfg.Endpoint != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
		}

		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create client for model %s: %w", cfg.Name, err)
		}

		maxTokens := cfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 1024
		}

		clients[cfg.Name] = &modelClient{
			llm:       llm,
			maxTokens: maxTokens,
			info: models.ModelInfo{
				Name:              cfg.Name,
				InputPer1M:        cfg.InputPer1M,
				OutputPer1M:       cfg.OutputPer1M,
				ExpectedLatencyMs: cfg.ExpectedLatencyMs,
			},
		}
	}

	return &Registry{clients: clients}, nil
}

// Call dispatches a prompt to the named backend model.
func (r *Registry) Call(ctx context.Context, model string, prompt string, opts *models.CallOptions) (string, error) {
	client, ok := r.clients[model]
	if !ok {
		return "", fmt.Errorf("unknown model %q", model)
	}

	temperature := 0.7
	maxTokens := client.maxTokens
	if opts != nil {
		if opts.Temperature > 0 {
			temperature = float64(opts.Temperature)
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
	}

	response, err := llms.GenerateFromSinglePrompt(
		ctx,
		client.llm,
		prompt,
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		client.markFailure()
		return "", fmt.Errorf("generation failed on %s: %w", model, err)
	}

	client.markSuccess()
	return response, nil
}

// IsHealthy reports whether the backend has not accumulated enough
// consecutive failures to sit out, or its cooldown has elapsed. Unknown
// models are unhealthy.
func (r *Registry) IsHealthy(model string) bool {
	client, ok := r.clients[model]
	if !ok {
		return false
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	if client.consecutiveFails < unhealthyAfter {
		return true
	}
	return time.Now().After(client.unhealthyUntil)
}

// Info returns pricing and latency expectations for a configured model.
func (r *Registry) Info(model string) (models.ModelInfo, bool) {
	client, ok := r.clients[model]
	if !ok {
		return models.ModelInfo{}, false
	}
	return client.info, true
}

// Models lists the configured model names.
func (r *Registry) Models() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

func (c *modelClient) markFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFails++
	if c.consecutiveFails >= unhealthyAfter {
		c.unhealthyUntil = time.Now().Add(healthCooldown)
	}
}

func (c *modelClient) markSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFails = 0
	c.unhealthyUntil = time.Time{}
}
