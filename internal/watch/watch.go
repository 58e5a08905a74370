// Package watch follows training runs through their published generation events.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/tangle/internal/printer"
	"github.com/dyluth/tangle/pkg/store"
)

// OutputFormat specifies how streamed events are written.
type OutputFormat string

const (
	// OutputFormatDefault prints one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON prints line-delimited JSON events
	OutputFormatJSON OutputFormat = "json"
)

// Subscription is the event feed consumed by Follow. *store.GenerationSubscription implements it.
type Subscription interface {
	Events() <-chan *store.GenerationEvent
	Errors() <-chan error
}

// Follow writes events from sub until ctx ends or the subscription closes.
// With a runID, events of other runs are skipped and Follow returns after the
// run's final event.
func Follow(ctx context.Context, sub Subscription, runID string, format OutputFormat, w io.Writer) error {
	events := sub.Events()
	errs := sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			printer.Warning("%v\n", err)

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if runID != "" && ev.RunID != runID {
				continue
			}
			if err := writeEvent(w, ev, format); err != nil {
				return err
			}
			if runID != "" && ev.Status.Finished() {
				return nil
			}
		}
	}
}

func writeEvent(w io.Writer, ev *store.GenerationEvent, format OutputFormat) error {
	switch format {
	case OutputFormatJSON:
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	default:
		_, err := fmt.Fprintln(w, FormatEvent(ev))
		return err
	}
}

// FormatEvent renders an event as a single line.
func FormatEvent(ev *store.GenerationEvent) string {
	ts := time.UnixMilli(ev.TimestampMs).Format("15:04:05")
	run := ev.RunID
	if len(run) > 8 {
		run = run[:8]
	}

	if ev.Status.Finished() {
		return fmt.Sprintf("[%s] 🏁 Run %s %s at generation %d: best=%.4f champion=#%d teams=%d learners=%d",
			ts, run, ev.Status, ev.Generation, ev.BestReward, ev.Champion, ev.Teams, ev.Learners)
	}

	line := fmt.Sprintf("[%s] 🧬 %s gen %d: best=%.4f mean=%.4f champion=#%d roots=%d teams=%d learners=%d collected=%d/%d (%dms)",
		ts, run, ev.Generation, ev.BestReward, ev.MeanReward, ev.Champion, ev.Roots,
		ev.Teams, ev.Learners, ev.CollectedTeams, ev.CollectedLearners, ev.DurationMs)
	if ev.NoDecisions > 0 {
		line += fmt.Sprintf(" no-decisions=%d", ev.NoDecisions)
	}
	if ev.Rejected > 0 {
		line += fmt.Sprintf(" rejected=%d", ev.Rejected)
	}
	return line
}

// RunGetter is the subset of *store.Client used by PollForRun.
type RunGetter interface {
	GetRun(ctx context.Context, runID string) (*store.Run, error)
}

// PollForRun polls until the run record exists and returns it.
// Used when a watcher starts before the trainer has saved its run.
func PollForRun(ctx context.Context, client RunGetter, runID string, interval, timeout time.Duration) (*store.Run, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		run, err := client.GetRun(ctx, runID)
		if err == nil {
			return run, nil
		}
		if !store.IsNotFound(err) {
			return nil, fmt.Errorf("failed to query run: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for run %s after %v", runID, timeout)
		case <-ticker.C:
		}
	}
}
