package runs

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/tangle/pkg/store"
	"github.com/dyluth/tangle/pkg/tpg"
)

// ModelSummary describes the population held by a saved model.
type ModelSummary struct {
	RunID      string            `json:"run_id,omitempty"`
	Generation int               `json:"generation"`
	Champion   uint64            `json:"champion"`
	Teams      int               `json:"teams"`
	Roots      int               `json:"roots"`
	Learners   int               `json:"learners"`
	Labels     []int64           `json:"labels"`
	Args       map[string]string `json:"args"`

	// Memory is the bank shape, such as "4x3", empty without a bank
	Memory string `json:"memory,omitempty"`
	// Actions counts learners per action kind
	Actions map[string]int `json:"actions"`

	ChampionTeam *TeamSummary `json:"champion_team,omitempty"`
}

// TeamSummary lists a team's learners.
type TeamSummary struct {
	ID       uint64           `json:"id"`
	Birthday int              `json:"birthday"`
	InDegree int              `json:"in_degree"`
	Learners []LearnerSummary `json:"learners"`
}

// LearnerSummary describes one learner.
type LearnerSummary struct {
	ID           uint64 `json:"id"`
	Birthday     int    `json:"birthday"`
	Instructions int    `json:"instructions"`
	Action       string `json:"action"`
	Teams        int    `json:"teams"` // number of teams holding the learner
}

// Summarize builds a ModelSummary without modifying the model.
func Summarize(m *tpg.Model) *ModelSummary {
	g := m.Graph
	s := &ModelSummary{
		Generation: m.Generation,
		Champion:   uint64(m.Champion),
		Teams:      g.TeamCount(),
		Roots:      len(g.Roots()),
		Learners:   g.LearnerCount(),
		Labels:     m.Labels,
		Actions:    map[string]int{},
		Args:       m.Args,
	}
	if bank := g.Memory(); bank != nil {
		s.Memory = fmt.Sprintf("%dx%d", bank.Rows(), bank.Cols())
	}

	for _, id := range g.LearnerIDs() {
		l, _ := g.Learner(id)
		s.Actions[l.Action().Kind.String()]++
	}

	if team, ok := g.Team(m.Champion); ok {
		ts := &TeamSummary{ID: uint64(team.ID), Birthday: team.Birthday, InDegree: team.InDegree()}
		for _, lid := range team.Learners() {
			l, _ := g.Learner(lid)
			ts.Learners = append(ts.Learners, LearnerSummary{
				ID:           uint64(l.ID),
				Birthday:     l.Birthday,
				Instructions: l.Program.Len(),
				Action:       l.Action().String(),
				Teams:        l.RefCount(),
			})
		}
		s.ChampionTeam = ts
	}
	return s
}

// InspectModel loads the model saved for a run and writes its summary as JSON.
func InspectModel(ctx context.Context, client *store.Client, runID string, w io.Writer) error {
	m, err := client.LoadModel(ctx, runID)
	if err != nil {
		if store.IsNotFound(err) {
			return &RunNotFoundError{RunID: runID}
		}
		return fmt.Errorf("failed to load model: %w", err)
	}

	s := Summarize(m)
	s.RunID = runID
	return FormatJSON(w, s)
}
