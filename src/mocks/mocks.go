package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/models"
)

// MockDispatcher implements models.Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Call(ctx context.Context, model string, prompt string, opts *models.CallOptions) (string, error) {
	args := m.Called(ctx, model, prompt, opts)
	return args.String(0), args.Error(1)
}

func (m *MockDispatcher) IsHealthy(model string) bool {
	args := m.Called(model)
	return args.Bool(0)
}

func (m *MockDispatcher) Info(model string) (models.ModelInfo, bool) {
	args := m.Called(model)
	return args.Get(0).(models.ModelInfo), args.Bool(1)
}

// MockSimilarityBackend implements models.SimilarityBackend
type MockSimilarityBackend struct {
	mock.Mock
}

func (m *MockSimilarityBackend) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSimilarityBackend) Score(a, b string) (float64, error) {
	args := m.Called(a, b)
	return args.Get(0).(float64), args.Error(1)
}

// MockKeyValueStore implements models.KeyValueStore
type MockKeyValueStore struct {
	mock.Mock
}

func (m *MockKeyValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKeyValueStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockKeyValueStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockTelemetrySink implements models.TelemetrySink
type MockTelemetrySink struct {
	mock.Mock
}

func (m *MockTelemetrySink) Record(ctx context.Context, metric string, value float64, labels map[string]string) error {
	args := m.Called(ctx, metric, value, labels)
	return args.Error(0)
}
