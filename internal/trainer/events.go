package trainer

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/dyluth/tangle/pkg/store"
)

// EventSink receives one event per completed generation. *store.Client implements it.
type EventSink interface {
	PublishGeneration(ctx context.Context, ev *store.GenerationEvent) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev *store.GenerationEvent) error

// PublishGeneration calls f.
func (f SinkFunc) PublishGeneration(ctx context.Context, ev *store.GenerationEvent) error {
	return f(ctx, ev)
}

// logEvent writes one structured JSON log line.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	e.logLevel("info", eventType, data)
}

func (e *Engine) logLevel(level, eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = level
	data["component"] = "trainer"
	data["event_type"] = eventType
	data["run_id"] = e.runID

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Trainer] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

// publish hands ev to the sink. Sink failures are logged, never fatal to training.
func (e *Engine) publish(ctx context.Context, ev *store.GenerationEvent) {
	if e.sink == nil {
		return
	}
	if err := e.sink.PublishGeneration(ctx, ev); err != nil {
		log.Printf("[Trainer] Failed to publish generation %d: %v", ev.Generation, err)
	}
}
