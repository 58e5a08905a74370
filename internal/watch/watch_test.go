package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/tangle/internal/printer"
	"github.com/dyluth/tangle/pkg/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupClient(t *testing.T) *store.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := store.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

type fakeSub struct {
	events chan *store.GenerationEvent
	errs   chan error
}

func (f *fakeSub) Events() <-chan *store.GenerationEvent { return f.events }
func (f *fakeSub) Errors() <-chan error                 { return f.errs }

func TestFollowStopsAtFinalEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := setupClient(t)

	sub, err := client.SubscribeGenerationEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	runID := uuid.New().String()
	publish := []*store.GenerationEvent{
		{RunID: runID, Generation: 1, BestReward: 0.5, Status: store.RunStatusRunning},
		{RunID: "other-run", Generation: 7, Status: store.RunStatusRunning},
		{RunID: runID, Generation: 2, BestReward: 0.75, Status: store.RunStatusRunning},
		{RunID: runID, Generation: 2, BestReward: 0.75, Status: store.RunStatusCompleted},
		{RunID: runID, Generation: 3, Status: store.RunStatusRunning},
	}
	for _, ev := range publish {
		require.NoError(t, client.PublishGeneration(ctx, ev))
	}

	var out bytes.Buffer
	require.NoError(t, Follow(ctx, sub, runID, OutputFormatJSON, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var last store.GenerationEvent
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, store.RunStatusCompleted, last.Status)
	assert.Equal(t, 0.75, last.BestReward)
}

func TestFollowAllRuns(t *testing.T) {
	var warn bytes.Buffer
	restore := printer.SetOutput(&warn, &warn)
	defer restore()

	sub := &fakeSub{events: make(chan *store.GenerationEvent), errs: make(chan error)}
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- Follow(context.Background(), sub, "", OutputFormatDefault, &out)
	}()

	sub.errs <- errors.New("failed to unmarshal generation event")
	sub.events <- &store.GenerationEvent{RunID: "a", Generation: 1, Status: store.RunStatusRunning}
	sub.events <- &store.GenerationEvent{RunID: "a", Generation: 1, Status: store.RunStatusCompleted}
	sub.events <- &store.GenerationEvent{RunID: "b", Generation: 1, Status: store.RunStatusRunning}
	close(sub.events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after the subscription closed")
	}

	assert.Equal(t, 3, strings.Count(out.String(), "\n"), "finished runs do not end an unfiltered follow")
	assert.Contains(t, warn.String(), "failed to unmarshal")
}

func TestFollowReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub := &fakeSub{events: make(chan *store.GenerationEvent), errs: make(chan error)}
	assert.NoError(t, Follow(ctx, sub, "x", OutputFormatDefault, &bytes.Buffer{}))
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2025, 1, 1, 9, 30, 15, 0, time.Local).UnixMilli()

	running := FormatEvent(&store.GenerationEvent{
		RunID:             "0123456789abcdef",
		Generation:        12,
		BestReward:        0.8125,
		MeanReward:        0.5,
		Champion:          44,
		Roots:             20,
		Teams:             31,
		Learners:          150,
		CollectedTeams:    3,
		CollectedLearners: 12,
		NoDecisions:       2,
		DurationMs:        35,
		Status:            store.RunStatusRunning,
		TimestampMs:       ts,
	})
	assert.Equal(t, "[09:30:15] 🧬 01234567 gen 12: best=0.8125 mean=0.5000 champion=#44 roots=20 teams=31 learners=150 collected=3/12 (35ms) no-decisions=2", running)

	final := FormatEvent(&store.GenerationEvent{
		RunID:       "abc",
		Generation:  50,
		BestReward:  1,
		Champion:    9,
		Status:      store.RunStatusStopped,
		TimestampMs: ts,
	})
	assert.Equal(t, "[09:30:15] 🏁 Run abc stopped at generation 50: best=1.0000 champion=#9 teams=0 learners=0", final)
}

func TestPollForRun(t *testing.T) {
	ctx := context.Background()
	client := setupClient(t)

	t.Run("returns run once saved", func(t *testing.T) {
		runID := uuid.New().String()
		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = client.SaveRun(ctx, &store.Run{ID: runID, Name: "late", Status: store.RunStatusRunning})
		}()

		run, err := PollForRun(ctx, client, runID, 10*time.Millisecond, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "late", run.Name)
	})

	t.Run("times out", func(t *testing.T) {
		_, err := PollForRun(ctx, client, uuid.New().String(), 10*time.Millisecond, 50*time.Millisecond)
		assert.ErrorContains(t, err, "timeout waiting for run")
	})

	t.Run("respects context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := PollForRun(cctx, client, uuid.New().String(), 10*time.Millisecond, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
