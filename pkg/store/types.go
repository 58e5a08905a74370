package store

import (
	"fmt"

	"github.com/google/uuid"
)

// Run is the persisted record of one training run.
type Run struct {
	ID          string            `json:"id"`           // UUID
	Name        string            `json:"name"`         // run.name from tangle.yml
	Status      RunStatus         `json:"status"`       // lifecycle state
	Seed        uint64            `json:"seed"`         // RNG seed the run started from
	Generation  int               `json:"generation"`   // last completed generation
	Generations int               `json:"generations"`  // configured generation budget
	Population  int               `json:"population"`   // configured root team count
	Champion    uint64            `json:"champion"`     // best team id of the last generation, 0 if none
	BestReward  float64           `json:"best_reward"`  // champion reward
	Labels      []int64           `json:"labels"`       // atomic action label set
	Args        map[string]string `json:"args"`         // flattened configuration
	Error       string            `json:"error,omitempty"`
	StartedAtMs int64             `json:"started_at_ms"`
	UpdatedAtMs int64             `json:"updated_at_ms"`
}

// RunStatus defines the lifecycle state of a run.
type RunStatus string

const (
	// RunStatusRunning indicates generations are still being evaluated
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates the generation budget or target reward was reached
	RunStatusCompleted RunStatus = "completed"

	// RunStatusStopped indicates the run was cancelled at a generation boundary
	RunStatusStopped RunStatus = "stopped"

	// RunStatusFailed indicates a fatal error, such as a fitness failure
	RunStatusFailed RunStatus = "failed"
)

// Validate checks that the status is one of the known values.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusStopped, RunStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// Finished reports whether no further generations will be published for the run.
func (s RunStatus) Finished() bool {
	return s != RunStatusRunning
}

// Validate checks required fields.
func (r *Run) Validate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("invalid run ID: %w", err)
	}
	if r.Name == "" {
		return fmt.Errorf("run name is required")
	}
	if err := r.Status.Validate(); err != nil {
		return err
	}
	if r.Generation < 0 {
		return fmt.Errorf("generation must be >= 0, got %d", r.Generation)
	}
	return nil
}

// GenerationEvent summarises one completed generation of a run.
type GenerationEvent struct {
	RunID             string    `json:"run_id"`
	Generation        int       `json:"generation"`
	BestReward        float64   `json:"best_reward"`
	MeanReward        float64   `json:"mean_reward"`
	Champion          uint64    `json:"champion"`
	Roots             int       `json:"roots"`
	Teams             int       `json:"teams"`
	Learners          int       `json:"learners"`
	Removed           int       `json:"removed"`
	CollectedTeams    int       `json:"collected_teams"`
	CollectedLearners int       `json:"collected_learners"`
	NoDecisions       int       `json:"no_decisions"`
	Rejected          int       `json:"rejected"`
	DurationMs        int64     `json:"duration_ms"`
	Status            RunStatus `json:"status"` // running for every event except the last
	TimestampMs       int64     `json:"timestamp_ms"`
}
