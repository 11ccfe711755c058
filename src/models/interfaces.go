package models

import (
	"context"
	"time"
)

// CallOptions carries per-request generation parameters through to the
// backend model.
type CallOptions struct {
	MaxTokens   int
	Temperature float32
}

// Dispatcher defines the interface for invoking a backend LLM. Retry and
// backoff policy belongs to the implementation, not the caller.
type Dispatcher interface {
	Call(ctx context.Context, model string, prompt string, opts *CallOptions) (string, error)
	IsHealthy(model string) bool
	Info(model string) (ModelInfo, bool)
}

// SimilarityBackend scores how alike two texts are, in [0, 1].
// Implementations that depend on an external service return an error when
// the backend cannot be used; callers degrade to a cheaper tier.
type SimilarityBackend interface {
	Name() string
	Score(a, b string) (float64, error)
}

// KeyValueStore is an optional distributed cache tier shared across
// replicas. A miss is reported as (nil, nil).
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// TelemetrySink consumes drained routing events. Fire-and-forget: errors are
// logged by the caller, never propagated to the request path.
type TelemetrySink interface {
	Record(ctx context.Context, metric string, value float64, labels map[string]string) error
}
