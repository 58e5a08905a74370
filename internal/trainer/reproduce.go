package trainer

import (
	"fmt"
	"log"
	"math"
	"sort"
)

// rankScores orders scores best first. Equal rewards go to the older (lower) team id.
func rankScores(scores []teamScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].reward != scores[j].reward {
			return scores[i].reward > scores[j].reward
		}
		return scores[i].team < scores[j].team
	})
}

// selectSurvivors removes the ranked roots below the keep fraction. The
// champion (scores[0]) always survives. Returns the number removed.
func (e *Engine) selectSurvivors(scores []teamScore) (int, error) {
	keep := int(math.Ceil(*e.cfg.Run.KeepFraction * float64(len(scores))))
	if keep < 1 {
		keep = 1
	}
	if keep >= len(scores) {
		return 0, nil
	}

	g := e.model.Graph
	for _, s := range scores[keep:] {
		if err := g.RemoveTeam(s.team); err != nil {
			return 0, fmt.Errorf("failed to remove team %d: %w", s.team, err)
		}
	}
	return len(scores) - keep, nil
}

// reproduce clones and mutates surviving roots until the population is back
// to run.population root teams. Offspring only ever reference teams that
// existed before reproduction started.
func (e *Engine) reproduce(generation int) error {
	g := e.model.Graph
	rng := e.model.Rand()
	parents := g.Roots()
	if len(parents) == 0 {
		return fmt.Errorf("no surviving root teams")
	}

	for len(g.Roots()) < e.cfg.Run.Population {
		parent := parents[rng.IntN(len(parents))]
		child, err := g.CloneTeam(parent, generation)
		if err != nil {
			return err
		}
		if err := e.mutator.MutateTeam(g, child.ID, generation, parents); err != nil {
			return fmt.Errorf("failed to mutate team %d: %w", child.ID, err)
		}
	}
	return nil
}

// initPopulation seeds run.population root teams of 2..initial_team_size fresh learners.
func (e *Engine) initPopulation() error {
	g := e.model.Graph
	rng := e.model.Rand()
	maxSize := *e.cfg.Run.InitialTeamSize

	for i := 0; i < e.cfg.Run.Population; i++ {
		size := 2 + rng.IntN(maxSize-1)
		if _, err := e.mutator.NewTeam(g, 0, size); err != nil {
			return err
		}
	}
	log.Printf("[Trainer] Seeded %d teams with %d learners", g.TeamCount(), g.LearnerCount())
	return nil
}
