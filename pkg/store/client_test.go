package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/tangle/pkg/tpg"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func newRun(name string, startedAt int64) *Run {
	return &Run{
		ID:          uuid.New().String(),
		Name:        name,
		Status:      RunStatusRunning,
		Seed:        42,
		Generations: 10,
		Population:  20,
		Labels:      []int64{0, 1},
		Args:        map[string]string{"run.name": name},
		StartedAtMs: startedAt,
		UpdatedAtMs: startedAt,
	}
}

func testModel(t *testing.T) *tpg.Model {
	t.Helper()
	g := tpg.NewGraph(nil)
	team := g.NewTeam(0)
	prog, err := tpg.NewBidProgram([]tpg.Instruction{tpg.NewInstruction(tpg.ModeInput, tpg.OpAdd, 0, 0, false)})
	require.NoError(t, err)
	for _, label := range []int64{0, 1} {
		lid, err := g.AddLearner(tpg.NewLearner(0, prog.Clone(), tpg.LabelAction(label)))
		require.NoError(t, err)
		require.NoError(t, g.Attach(team.ID, lid))
	}
	m := tpg.NewModel(map[string]string{"run.name": "t"}, 9, g, []int64{0, 1})
	m.Champion = team.ID
	return m
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.InstanceName())
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})

	t.Run("parses redis URL", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewClientFromURL("redis://"+mr.Addr()+"/0", "default")
		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, client.Ping(context.Background()))

		_, err = NewClientFromURL("not a url", "default")
		assert.Error(t, err)
	})
}

func TestSaveAndGetRun(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	run := newRun("iris", 1000)
	run.Champion = 17
	run.BestReward = 0.875
	require.NoError(t, client.SaveRun(ctx, run))
	assert.True(t, mr.Exists(RunKey("test-instance", run.ID)))

	got, err := client.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	run.Status = RunStatusCompleted
	run.Generation = 10
	require.NoError(t, client.SaveRun(ctx, run))
	got, err = client.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, 10, got.Generation)
}

func TestSaveRunValidates(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	bad := newRun("x", 1)
	bad.ID = "not-a-uuid"
	assert.ErrorContains(t, client.SaveRun(ctx, bad), "invalid run ID")

	bad = newRun("", 1)
	assert.ErrorContains(t, client.SaveRun(ctx, bad), "run name is required")

	bad = newRun("x", 1)
	bad.Status = "paused"
	assert.ErrorContains(t, client.SaveRun(ctx, bad), "invalid run status")
}

func TestGetRunNotFound(t *testing.T) {
	client, _ := setupTestClient(t)

	run, err := client.GetRun(context.Background(), uuid.New().String())
	assert.Nil(t, run)
	assert.True(t, IsNotFound(err))
}

func TestScanAndListRuns(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	second := newRun("second", 2000)
	first := newRun("first", 1000)
	require.NoError(t, client.SaveRun(ctx, second))
	require.NoError(t, client.SaveRun(ctx, first))

	// another instance's runs stay invisible
	other, err := NewClient(&redis.Options{Addr: mr.Addr()}, "other")
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.SaveRun(ctx, newRun("elsewhere", 500)))

	ids, err := client.ScanRuns(ctx, first.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, ids)

	// a corrupt record is skipped, not fatal
	mr.HSet(RunKey("test-instance", "broken"), "generation", "NaN")

	runs, skipped, err := client.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "first", runs[0].Name)
	assert.Equal(t, "second", runs[1].Name)
	assert.Equal(t, []string{"broken"}, skipped)
}

func TestSaveAndLoadModel(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	runID := uuid.New().String()

	_, err := client.LoadModel(ctx, runID)
	assert.True(t, IsNotFound(err))

	m := testModel(t)
	require.NoError(t, client.SaveModel(ctx, runID, m))

	loaded, err := client.LoadModel(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, m.Champion, loaded.Champion)
	assert.Equal(t, m.Graph.LearnerIDs(), loaded.Graph.LearnerIDs())

	d, err := loaded.Decide([]float64{1})
	require.NoError(t, err)
	assert.False(t, d.NoDecision)
}

func TestLoadModelCorrupt(t *testing.T) {
	client, mr := setupTestClient(t)
	runID := uuid.New().String()
	require.NoError(t, mr.Set(ModelKey("test-instance", runID), "TPG1garbage"))

	_, err := client.LoadModel(context.Background(), runID)
	require.Error(t, err)
	assert.ErrorIs(t, err, tpg.ErrCorruptModel)
	assert.False(t, IsNotFound(err))
}

func TestGenerationEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := client.SubscribeGenerationEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	ev := &GenerationEvent{RunID: uuid.New().String(), Generation: 3, BestReward: 0.5, Status: RunStatusRunning}
	require.NoError(t, client.PublishGeneration(ctx, ev))

	select {
	case got := <-sub.Events():
		assert.Equal(t, ev, got)
	case <-ctx.Done():
		t.Fatal("timed out waiting for generation event")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "tangle:prod:run:abc", RunKey("prod", "abc"))
	assert.Equal(t, "tangle:prod:run:", RunKeyPrefix("prod"))
	assert.Equal(t, "tangle:prod:model:abc", ModelKey("prod", "abc"))
	assert.Equal(t, "tangle:prod:generation_events", GenerationEventsChannel("prod"))
}

func TestValidateInstanceName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"simple", "prod", ""},
		{"single character", "a", ""},
		{"hyphenated", "team-a-2", ""},
		{"empty", "", "cannot be empty"},
		{"uppercase", "Prod", "invalid instance name"},
		{"colon", "a:b", "invalid instance name"},
		{"leading hyphen", "-prod", "invalid instance name"},
		{"trailing hyphen", "prod-", "invalid instance name"},
		{"too long", strings.Repeat("a", 64), "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstanceName(tt.input)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRunStatus(t *testing.T) {
	assert.False(t, RunStatusRunning.Finished())
	for _, s := range []RunStatus{RunStatusCompleted, RunStatusStopped, RunStatusFailed} {
		assert.True(t, s.Finished())
		assert.NoError(t, s.Validate())
	}
	assert.Error(t, RunStatus("paused").Validate())
}
