package trainer

import (
	"context"
	"fmt"
	"math"

	"github.com/dyluth/tangle/pkg/tpg"
	"golang.org/x/sync/errgroup"
)

type teamScore struct {
	team        tpg.TeamID
	reward      float64
	noDecisions int
}

// evaluate scores every root on a bounded worker pool. The graph is read-only
// for the duration; the first error cancels the remaining teams.
func (e *Engine) evaluate(ctx context.Context, roots []tpg.TeamID, exemplars []tpg.Exemplar) ([]teamScore, error) {
	scores := make([]teamScore, len(roots))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, id := range roots {
		g.Go(func() error {
			s, err := e.evaluateTeam(gCtx, id, exemplars)
			if err != nil {
				return err
			}
			scores[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// evaluateTeam streams every exemplar through one root team, in order, into a
// fresh fitness strategy.
func (e *Engine) evaluateTeam(ctx context.Context, id tpg.TeamID, exemplars []tpg.Exemplar) (teamScore, error) {
	score := teamScore{team: id}
	strategy := e.fitness()
	graph := e.model.Graph

	for i := range exemplars {
		if err := ctx.Err(); err != nil {
			return score, err
		}
		ex := &exemplars[i]

		d, err := graph.Decide(id, ex.Features)
		if err != nil {
			return score, fmt.Errorf("team %d: %w", id, err)
		}
		if d.NoDecision {
			score.noDecisions++
		}

		if err := strategy.OnPrediction(tpg.Prediction{TeamID: id, Exemplar: ex, Decision: d}); err != nil {
			return score, fmt.Errorf("%w: team %d exemplar %s: %w", ErrFitness, id, ex.ID, err)
		}
	}

	reward, err := strategy.Reward()
	if err != nil {
		return score, fmt.Errorf("%w: team %d reward: %w", ErrFitness, id, err)
	}
	if math.IsNaN(reward) {
		// NaN has no rank; treat it as the worst possible score
		reward = math.Inf(-1)
	}
	score.reward = reward
	return score, nil
}

func meanReward(scores []teamScore) float64 {
	var sum float64
	n := 0
	for _, s := range scores {
		if math.IsInf(s.reward, 0) {
			continue
		}
		sum += s.reward
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func totalNoDecisions(scores []teamScore) int {
	n := 0
	for _, s := range scores {
		n += s.noDecisions
	}
	return n
}
