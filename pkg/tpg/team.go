package tpg

import "fmt"

// TeamID identifies a team. Ids are allocated by the graph and never reused.
type TeamID uint64

// Team is a graph node owning an ordered set of learners that compete by bidding.
type Team struct {
	ID       TeamID
	Birthday int
	learners []LearnerID
	inRefs   int
}

// Learners returns a copy of the member learner ids in attachment order.
func (t *Team) Learners() []LearnerID {
	return append([]LearnerID(nil), t.learners...)
}

// Size returns the number of member learners.
func (t *Team) Size() int {
	return len(t.learners)
}

// Has reports whether the learner is a member.
func (t *Team) Has(id LearnerID) bool {
	return t.indexOf(id) >= 0
}

// InDegree returns how many learners currently target this team.
func (t *Team) InDegree() int {
	return t.inRefs
}

// IsRoot reports whether no learner targets this team.
func (t *Team) IsRoot() bool {
	return t.inRefs == 0
}

func (t *Team) indexOf(id LearnerID) int {
	for i, l := range t.learners {
		if l == id {
			return i
		}
	}
	return -1
}

// Decision is the result of a traversal from a root team.
type Decision struct {
	// NoDecision is set when every candidate learner was excluded by the cycle rule.
	NoDecision bool
	Kind       ActionKind
	Vector     []float64
	// Label holds the emitted label for label actions and NoLabel otherwise.
	Label int64
	// Team and Learner identify where the atomic action was taken.
	Team    TeamID
	Learner LearnerID
	// Path lists the teams visited, in order.
	Path []TeamID
}

// Decide runs the bid auction starting at root and follows team delegations
// until an atomic action wins or no candidate remains. Each team is entered at
// most once per call, so traversal terminates on any topology.
func (g *Graph) Decide(root TeamID, input []float64) (Decision, error) {
	if _, ok := g.teams[root]; !ok {
		return Decision{}, fmt.Errorf("team %d not found", root)
	}

	visited := make(map[TeamID]bool)
	var path []TeamID
	current := root

	for {
		team, ok := g.teams[current]
		if !ok || visited[current] {
			return Decision{NoDecision: true, Label: NoLabel, Path: path}, nil
		}
		visited[current] = true
		path = append(path, current)

		winner := g.auction(team, input, visited)
		if winner == nil {
			return Decision{NoDecision: true, Label: NoLabel, Path: path}, nil
		}

		outcome := winner.action.Evaluate(input)
		if outcome.Deferred {
			current = outcome.Delegate
			continue
		}

		d := Decision{
			Kind:    winner.action.Kind,
			Vector:  outcome.Vector,
			Label:   NoLabel,
			Team:    team.ID,
			Learner: winner.ID,
			Path:    path,
		}
		if winner.action.Kind == ActionLabel {
			d.Label = winner.action.Label
		}
		return d, nil
	}
}

// auction returns the highest bidder among learners not pointing at a visited
// team. Ties go to the lowest learner id. Returns nil when nobody may bid.
func (g *Graph) auction(team *Team, input []float64, visited map[TeamID]bool) *Learner {
	var best *Learner
	bestBid := 0.0
	for _, id := range team.learners {
		l, ok := g.learners[id]
		if !ok {
			continue
		}
		if l.action.Kind == ActionTeam {
			if _, exists := g.teams[l.action.Team]; !exists || visited[l.action.Team] {
				continue
			}
		}
		bid := l.Bid(input)
		if best == nil || bid > bestBid || (bid == bestBid && l.ID < best.ID) {
			best, bestBid = l, bid
		}
	}
	return best
}
