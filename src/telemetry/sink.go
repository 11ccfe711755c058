package telemetry

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// LogSink writes metrics to the process log. The default sink when no
// external collector is configured.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Record(_ context.Context, metric string, value float64, labels map[string]string) error {
	log.Printf("telemetry: %s=%.4f labels=%v", metric, value, labels)
	return nil
}

const streamName = "adaptivelm:routing:events"

// RedisStreamSink appends metrics to a Redis stream for an external
// collector to consume.
type RedisStreamSink struct {
	client *redis.Client
}

func NewRedisStreamSink(client *redis.Client) *RedisStreamSink {
	return &RedisStreamSink{client: client}
}

func (s *RedisStreamSink) Record(ctx context.Context, metric string, value float64, labels map[string]string) error {
	values := map[string]interface{}{
		"metric": metric,
		"value":  value,
	}
	for k, v := range labels {
		values["label:"+k] = v
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		MaxLen: 10000,
		Approx: true,
		Values: values,
	}).Err()
}
