package telemetry

import (
	"context"
	"log"
	"time"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/models"
)

// EventSource is anything that hands over queued routing events. Satisfied
// by the routing manager.
type EventSource interface {
	DrainEvents() []models.RoutingEvent
}

// Drainer periodically drains routing events and pushes them to a sink.
// Fire-and-forget: a failing sink loses events rather than backing up the
// routing manager.
type Drainer struct {
	source   EventSource
	sink     models.TelemetrySink
	interval time.Duration
}

func NewDrainer(source EventSource, sink models.TelemetrySink, interval time.Duration) *Drainer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Drainer{
		source:   source,
		sink:     sink,
		interval: interval,
	}
}

// Run drains on an interval until the context is cancelled, with a final
// flush on shutdown.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Flush(context.Background())
			return
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

// Flush drains once and records every event.
func (d *Drainer) Flush(ctx context.Context) {
	events := d.source.DrainEvents()
	for _, ev := range events {
		labels := map[string]string{
			"type":      ev.Type,
			"task_type": ev.TaskType,
			"model":     ev.Model,
		}
		for k, v := range ev.Metadata {
			labels[k] = v
		}

		if err := d.sink.Record(ctx, "routing_event", ev.Reward, labels); err != nil {
			log.Printf("telemetry: failed to record event: %v", err)
		}
	}
}
