package tpg

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned when a team or learner id is not in the arena.
var ErrNotFound = errors.New("not found")

// IDAllocator hands out monotonically increasing team and learner ids.
// The zero value starts both sequences at 1.
type IDAllocator struct {
	lastTeam    TeamID
	lastLearner LearnerID
}

// NextTeam allocates a fresh team id.
func (a *IDAllocator) NextTeam() TeamID {
	a.lastTeam++
	return a.lastTeam
}

// NextLearner allocates a fresh learner id.
func (a *IDAllocator) NextLearner() LearnerID {
	a.lastLearner++
	return a.lastLearner
}

// Last returns the most recently allocated ids.
func (a *IDAllocator) Last() (TeamID, LearnerID) {
	return a.lastTeam, a.lastLearner
}

// Graph is the arena holding every team and learner of a population.
// Edges are ids: teams list member learner ids and team actions hold target team ids.
//
// Graph is not safe for concurrent mutation. Decide may run concurrently with
// other Decide calls as long as nothing mutates the graph.
type Graph struct {
	teams    map[TeamID]*Team
	learners map[LearnerID]*Learner
	ids      IDAllocator
	memory   *MemoryBank
}

// NewGraph creates an empty arena. memory may be nil.
func NewGraph(memory *MemoryBank) *Graph {
	return &Graph{
		teams:    make(map[TeamID]*Team),
		learners: make(map[LearnerID]*Learner),
		memory:   memory,
	}
}

// Memory returns the shared memory bank, or nil.
func (g *Graph) Memory() *MemoryBank {
	return g.memory
}

// IDs exposes the allocator state.
func (g *Graph) IDs() IDAllocator {
	return g.ids
}

// Team looks up a team.
func (g *Graph) Team(id TeamID) (*Team, bool) {
	t, ok := g.teams[id]
	return t, ok
}

// Learner looks up a learner.
func (g *Graph) Learner(id LearnerID) (*Learner, bool) {
	l, ok := g.learners[id]
	return l, ok
}

// TeamCount returns the number of teams in the arena.
func (g *Graph) TeamCount() int { return len(g.teams) }

// LearnerCount returns the number of learners in the arena.
func (g *Graph) LearnerCount() int { return len(g.learners) }

// TeamIDs returns every team id in ascending order.
func (g *Graph) TeamIDs() []TeamID {
	ids := make([]TeamID, 0, len(g.teams))
	for id := range g.teams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LearnerIDs returns every learner id in ascending order.
func (g *Graph) LearnerIDs() []LearnerID {
	ids := make([]LearnerID, 0, len(g.learners))
	for id := range g.learners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Roots returns the ids of teams no learner points at, ascending.
func (g *Graph) Roots() []TeamID {
	var roots []TeamID
	for _, id := range g.TeamIDs() {
		if g.teams[id].IsRoot() {
			roots = append(roots, id)
		}
	}
	return roots
}

// NewTeam allocates an empty team.
func (g *Graph) NewTeam(birthday int) *Team {
	t := &Team{ID: g.ids.NextTeam(), Birthday: birthday}
	g.teams[t.ID] = t
	return t
}

// AddLearner assigns an id to a detached learner and places it in the arena.
// A learner with no team is collected by the next Collect pass.
func (g *Graph) AddLearner(l *Learner) (LearnerID, error) {
	if l.Program == nil {
		return 0, fmt.Errorf("learner has no bidding program")
	}
	if err := g.checkAction(l.action); err != nil {
		return 0, err
	}
	l.ID = g.ids.NextLearner()
	l.refs = 0
	g.bind(l)
	if l.action.Kind == ActionTeam {
		g.teams[l.action.Team].inRefs++
	}
	g.learners[l.ID] = l
	return l.ID, nil
}

// Attach makes learner a member of team and increments the learner's count.
func (g *Graph) Attach(teamID TeamID, learnerID LearnerID) error {
	t, ok := g.teams[teamID]
	if !ok {
		return fmt.Errorf("attach: team %d: %w", teamID, ErrNotFound)
	}
	l, ok := g.learners[learnerID]
	if !ok {
		return fmt.Errorf("attach: learner %d: %w", learnerID, ErrNotFound)
	}
	if t.Has(learnerID) {
		return fmt.Errorf("attach: learner %d already in team %d", learnerID, teamID)
	}
	t.learners = append(t.learners, learnerID)
	l.refs++
	return nil
}

// Detach removes learner from team and decrements the learner's count.
// The learner stays in the arena until Collect runs.
func (g *Graph) Detach(teamID TeamID, learnerID LearnerID) error {
	t, ok := g.teams[teamID]
	if !ok {
		return fmt.Errorf("detach: team %d: %w", teamID, ErrNotFound)
	}
	i := t.indexOf(learnerID)
	if i < 0 {
		return fmt.Errorf("detach: learner %d not in team %d", learnerID, teamID)
	}
	t.learners = append(t.learners[:i], t.learners[i+1:]...)
	if l, ok := g.learners[learnerID]; ok && l.refs > 0 {
		l.refs--
	}
	return nil
}

// Retarget swaps a learner's action. When the new action targets a team, that
// team's count is incremented before the old target's count is decremented.
func (g *Graph) Retarget(learnerID LearnerID, next Action) error {
	l, ok := g.learners[learnerID]
	if !ok {
		return fmt.Errorf("retarget: learner %d: %w", learnerID, ErrNotFound)
	}
	if err := g.checkAction(next); err != nil {
		return fmt.Errorf("retarget: %w", err)
	}
	prev := l.action
	if next.Kind == ActionTeam {
		g.teams[next.Team].inRefs++
	}
	l.action = next
	if prev.Kind == ActionTeam {
		if t, ok := g.teams[prev.Team]; ok && t.inRefs > 0 {
			t.inRefs--
		}
	}
	g.bind(l)
	return nil
}

// Replace swaps member old for learner next at the same position in team.
// next is counted before old is released.
func (g *Graph) Replace(teamID TeamID, old, next LearnerID) error {
	t, ok := g.teams[teamID]
	if !ok {
		return fmt.Errorf("replace: team %d: %w", teamID, ErrNotFound)
	}
	nl, ok := g.learners[next]
	if !ok {
		return fmt.Errorf("replace: learner %d: %w", next, ErrNotFound)
	}
	i := t.indexOf(old)
	if i < 0 {
		return fmt.Errorf("replace: learner %d not in team %d", old, teamID)
	}
	if t.Has(next) {
		return fmt.Errorf("replace: learner %d already in team %d", next, teamID)
	}
	nl.refs++
	t.learners[i] = next
	if ol, ok := g.learners[old]; ok && ol.refs > 0 {
		ol.refs--
	}
	return nil
}

// RemoveTeam detaches every member learner and deletes the team. A team that
// is still the target of some learner cannot be removed.
func (g *Graph) RemoveTeam(id TeamID) error {
	t, ok := g.teams[id]
	if !ok {
		return fmt.Errorf("remove: team %d: %w", id, ErrNotFound)
	}
	if t.inRefs > 0 {
		return fmt.Errorf("remove: team %d is still targeted by %d learners", id, t.inRefs)
	}
	g.dropTeam(t)
	return nil
}

// CloneTeam creates a new team sharing every learner of src.
func (g *Graph) CloneTeam(src TeamID, birthday int) (*Team, error) {
	s, ok := g.teams[src]
	if !ok {
		return nil, fmt.Errorf("clone: team %d: %w", src, ErrNotFound)
	}
	t := g.NewTeam(birthday)
	for _, lid := range s.learners {
		if err := g.Attach(t.ID, lid); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// CollectReport lists what a Collect pass freed, in collection order.
type CollectReport struct {
	Learners []LearnerID
	Teams    []TeamID
}

// Collect frees every learner whose count has reached zero, in ascending id
// order, releasing the team each freed learner targeted. It then removes teams
// that are targeted but unreachable from any root (cycles that reference
// counting alone never frees), again in ascending id order, and repeats until
// nothing changes. The pass is deterministic for a given graph.
func (g *Graph) Collect() CollectReport {
	var report CollectReport
	for {
		changed := false

		for _, id := range g.LearnerIDs() {
			l := g.learners[id]
			if l.refs > 0 {
				continue
			}
			if l.action.Kind == ActionTeam {
				if t, ok := g.teams[l.action.Team]; ok && t.inRefs > 0 {
					t.inRefs--
				}
			}
			l.Program = nil
			l.action = Action{}
			delete(g.learners, id)
			report.Learners = append(report.Learners, id)
			changed = true
		}

		reachable := g.reachable()
		for _, id := range g.TeamIDs() {
			if reachable[id] {
				continue
			}
			g.dropTeam(g.teams[id])
			report.Teams = append(report.Teams, id)
			changed = true
		}

		if !changed {
			return report
		}
	}
}

// reachable marks every team reachable from a root through member learners' team actions.
func (g *Graph) reachable() map[TeamID]bool {
	seen := make(map[TeamID]bool, len(g.teams))
	stack := g.Roots()
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, lid := range g.teams[id].learners {
			l, ok := g.learners[lid]
			if !ok || l.action.Kind != ActionTeam {
				continue
			}
			if _, ok := g.teams[l.action.Team]; ok && !seen[l.action.Team] {
				stack = append(stack, l.action.Team)
			}
		}
	}
	return seen
}

func (g *Graph) dropTeam(t *Team) {
	for _, lid := range t.learners {
		if l, ok := g.learners[lid]; ok && l.refs > 0 {
			l.refs--
		}
	}
	t.learners = nil
	delete(g.teams, t.ID)
}

func (g *Graph) checkAction(a Action) error {
	switch a.Kind {
	case ActionLabel:
		if a.Label == NoLabel {
			return fmt.Errorf("label action carries the NoLabel sentinel")
		}
	case ActionProgram:
		if a.Program == nil {
			return fmt.Errorf("program action has no program")
		}
	case ActionTeam:
		if _, ok := g.teams[a.Team]; !ok {
			return fmt.Errorf("action target team %d: %w", a.Team, ErrNotFound)
		}
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
	return nil
}

func (g *Graph) bind(l *Learner) {
	l.Program.BindMemory(g.memory)
	if l.action.Kind == ActionProgram {
		l.action.Program.BindMemory(g.memory)
	}
}

// CheckInvariants recomputes every reference count from the edges and reports
// the first inconsistency: unknown ids, duplicate membership, or a stored
// count that disagrees with the edges.
func (g *Graph) CheckInvariants() error {
	learnerRefs := make(map[LearnerID]int, len(g.learners))
	teamRefs := make(map[TeamID]int, len(g.teams))

	for _, tid := range g.TeamIDs() {
		t := g.teams[tid]
		seen := make(map[LearnerID]bool, len(t.learners))
		for _, lid := range t.learners {
			if _, ok := g.learners[lid]; !ok {
				return fmt.Errorf("team %d holds unknown learner %d", tid, lid)
			}
			if seen[lid] {
				return fmt.Errorf("team %d holds learner %d twice", tid, lid)
			}
			seen[lid] = true
			learnerRefs[lid]++
		}
	}
	for _, lid := range g.LearnerIDs() {
		l := g.learners[lid]
		if l.action.Kind == ActionTeam {
			if _, ok := g.teams[l.action.Team]; !ok {
				return fmt.Errorf("learner %d targets unknown team %d", lid, l.action.Team)
			}
			teamRefs[l.action.Team]++
		}
		if l.refs != learnerRefs[lid] {
			return fmt.Errorf("learner %d count %d, held by %d teams", lid, l.refs, learnerRefs[lid])
		}
		if l.refs < 0 {
			return fmt.Errorf("learner %d has negative count", lid)
		}
	}
	for _, tid := range g.TeamIDs() {
		if g.teams[tid].inRefs != teamRefs[tid] {
			return fmt.Errorf("team %d in-degree %d, targeted by %d learners", tid, g.teams[tid].inRefs, teamRefs[tid])
		}
	}
	lastTeam, lastLearner := g.ids.Last()
	for tid := range g.teams {
		if tid > lastTeam || tid == 0 {
			return fmt.Errorf("team id %d outside allocated range (last %d)", tid, lastTeam)
		}
	}
	for lid := range g.learners {
		if lid > lastLearner || lid == 0 {
			return fmt.Errorf("learner id %d outside allocated range (last %d)", lid, lastLearner)
		}
	}
	return nil
}
