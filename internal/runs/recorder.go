package runs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/tangle/pkg/store"
)

// Recorder keeps a run record current as generation events arrive and
// forwards every event to the store's pub/sub channel.
type Recorder struct {
	client *store.Client

	mu  sync.Mutex
	run *store.Run
}

// NewRecorder wraps run, which must not yet be saved.
func NewRecorder(client *store.Client, run *store.Run) *Recorder {
	return &Recorder{client: client, run: run}
}

// Start saves the run with status running.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UnixMilli()
	if r.run.StartedAtMs == 0 {
		r.run.StartedAtMs = now
	}
	r.run.UpdatedAtMs = now
	r.run.Status = store.RunStatusRunning
	r.run.Error = ""
	return r.client.SaveRun(ctx, r.run)
}

// PublishGeneration records ev on the run and publishes it.
func (r *Recorder) PublishGeneration(ctx context.Context, ev *store.GenerationEvent) error {
	r.mu.Lock()
	r.run.Generation = ev.Generation
	r.run.Champion = ev.Champion
	r.run.BestReward = ev.BestReward
	r.run.Status = ev.Status
	r.run.UpdatedAtMs = time.Now().UnixMilli()
	err := r.client.SaveRun(ctx, r.run)
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return r.client.PublishGeneration(ctx, ev)
}

// Fail marks the run failed with cause and publishes a final event.
func (r *Recorder) Fail(ctx context.Context, cause error) error {
	r.mu.Lock()
	r.run.Status = store.RunStatusFailed
	r.run.Error = cause.Error()
	r.run.UpdatedAtMs = time.Now().UnixMilli()
	ev := &store.GenerationEvent{
		RunID:       r.run.ID,
		Generation:  r.run.Generation,
		Champion:    r.run.Champion,
		BestReward:  r.run.BestReward,
		Status:      store.RunStatusFailed,
		TimestampMs: r.run.UpdatedAtMs,
	}
	err := r.client.SaveRun(ctx, r.run)
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return r.client.PublishGeneration(ctx, ev)
}

// Run returns a copy of the current record.
func (r *Recorder) Run() store.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.run
}
