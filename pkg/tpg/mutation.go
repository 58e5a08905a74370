package tpg

import (
	"fmt"
	"math/rand/v2"
)

// MutationParams holds the per-event probabilities and bounds used during reproduction.
type MutationParams struct {
	// Program-level, applied once per instruction slot in a pass
	ProgramDelete float64
	ProgramAdd    float64
	ProgramSwap   float64
	ProgramMutate float64

	MaxProgramSize int
	// CanWrite lets generated instructions take the MEMORY store position
	CanWrite bool

	// Learner-level
	ActionMutate  float64 // chance a cloned learner's action is mutated
	ActionTeamRef float64 // chance an action mutation retargets to a team

	// Team-level
	LearnerDelete float64
	LearnerAdd    float64
	LearnerMutate float64
	MaxTeamSize   int
}

// Validate checks every probability is in [0, 1] and every bound is usable.
func (p MutationParams) Validate() error {
	probs := []struct {
		name string
		v    float64
	}{
		{"program_delete", p.ProgramDelete},
		{"program_add", p.ProgramAdd},
		{"program_swap", p.ProgramSwap},
		{"program_mutate", p.ProgramMutate},
		{"action_mutate", p.ActionMutate},
		{"action_team_ref", p.ActionTeamRef},
		{"learner_delete", p.LearnerDelete},
		{"learner_add", p.LearnerAdd},
		{"learner_mutate", p.LearnerMutate},
	}
	for _, pr := range probs {
		if pr.v < 0 || pr.v > 1 || pr.v != pr.v {
			return fmt.Errorf("mutation probability %s must be in [0, 1], got %v", pr.name, pr.v)
		}
	}
	if p.MaxProgramSize < 1 {
		return fmt.Errorf("max program size must be >= 1, got %d", p.MaxProgramSize)
	}
	if p.MaxTeamSize < 2 {
		return fmt.Errorf("max team size must be >= 2, got %d", p.MaxTeamSize)
	}
	return nil
}

// MutateProgram applies one mutation pass to p in place and reports whether it
// changed. The pass walks the original instructions in order: each may be
// deleted where it stands, and each slot may insert, swap or regenerate at
// random positions. Deletion never empties the program, insertion respects
// MaxProgramSize, and the result is truncated to MaxProgramSize.
func MutateProgram(rng *rand.Rand, p *Program, params MutationParams) bool {
	ins := p.instructions
	changed := false

	// cur indexes the original instruction visited by the current slot
	cur := 0
	slots := len(ins)
	for s := 0; s < slots; s++ {
		if rng.Float64() < params.ProgramDelete && len(ins) > 1 && cur < len(ins) {
			ins = append(ins[:cur], ins[cur+1:]...)
			changed = true
		} else {
			cur++
		}
		if rng.Float64() < params.ProgramAdd && len(ins) < params.MaxProgramSize {
			i := rng.IntN(len(ins) + 1)
			ins = append(ins, 0)
			copy(ins[i+1:], ins[i:])
			ins[i] = RandomInstruction(rng, params.CanWrite)
			if i < cur {
				cur++
			}
			changed = true
		}
		if rng.Float64() < params.ProgramSwap && len(ins) > 1 {
			i, j := rng.IntN(len(ins)), rng.IntN(len(ins))
			if i != j && ins[i] != ins[j] {
				ins[i], ins[j] = ins[j], ins[i]
				changed = true
			}
		}
		if rng.Float64() < params.ProgramMutate {
			i := rng.IntN(len(ins))
			next := RandomInstruction(rng, params.CanWrite)
			if next != ins[i] {
				ins[i] = next
				changed = true
			}
		}
	}

	if len(ins) > params.MaxProgramSize {
		ins = ins[:params.MaxProgramSize]
		changed = true
	}
	p.instructions = ins
	return changed
}

// MutateLabel draws a label from labels, preferring one different from current.
// It panics if the draw would yield NoLabel.
func MutateLabel(rng *rand.Rand, current int64, labels []int64) int64 {
	if len(labels) == 0 {
		panic("tpg: label mutation needs a non-empty label set")
	}
	next := labels[rng.IntN(len(labels))]
	if len(labels) > 1 {
		for next == current {
			next = labels[rng.IntN(len(labels))]
		}
	}
	if next == NoLabel {
		panic("tpg: label set contains the NoLabel sentinel")
	}
	return next
}

// Mutator generates and varies learners and teams for one population.
// It owns no graph state; every structural change goes through the Graph.
type Mutator struct {
	Params MutationParams
	Labels []int64

	// ProgramActions is the chance a freshly drawn atomic action is a sub-program.
	ProgramActions     float64
	ActionRegisters    int
	ActionOutputs      int
	InitialProgramSize int

	rng *rand.Rand
}

// NewMutator validates params and labels and returns a mutator drawing from rng.
func NewMutator(rng *rand.Rand, params MutationParams, labels []int64) (*Mutator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("action label set is empty")
	}
	for _, l := range labels {
		if l == NoLabel {
			return nil, fmt.Errorf("action label set contains the NoLabel sentinel")
		}
	}
	return &Mutator{
		Params:             params,
		Labels:             append([]int64(nil), labels...),
		ActionRegisters:    BidRegisters,
		ActionOutputs:      1,
		InitialProgramSize: params.MaxProgramSize,
		rng:                rng,
	}, nil
}

// RandomBidProgram draws a fresh bidding program.
func (m *Mutator) RandomBidProgram() (*Program, error) {
	return RandomProgram(m.rng, m.initialSize(), BidRegisters, 1, m.Params.CanWrite)
}

// RandomAtomicAction draws a label action or, with chance ProgramActions, a sub-program action.
func (m *Mutator) RandomAtomicAction() (Action, error) {
	if m.ProgramActions > 0 && m.rng.Float64() < m.ProgramActions {
		p, err := RandomProgram(m.rng, m.initialSize(), m.ActionRegisters, m.ActionOutputs, m.Params.CanWrite)
		if err != nil {
			return Action{}, err
		}
		return ProgramAction(p), nil
	}
	return LabelAction(m.Labels[m.rng.IntN(len(m.Labels))]), nil
}

// NewLearner draws a learner with an atomic action and places it in the arena, unattached.
func (m *Mutator) NewLearner(g *Graph, birthday int) (LearnerID, error) {
	prog, err := m.RandomBidProgram()
	if err != nil {
		return 0, err
	}
	act, err := m.RandomAtomicAction()
	if err != nil {
		return 0, err
	}
	return g.AddLearner(NewLearner(birthday, prog, act))
}

// NewTeam draws a team of size learners, the first of which always keeps an atomic action.
func (m *Mutator) NewTeam(g *Graph, birthday, size int) (*Team, error) {
	if size < 2 {
		size = 2
	}
	t := g.NewTeam(birthday)
	for i := 0; i < size; i++ {
		lid, err := m.NewLearner(g, birthday)
		if err != nil {
			return nil, err
		}
		if err := g.Attach(t.ID, lid); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// CloneLearner copies a learner's program and action under a fresh id, unattached.
func (m *Mutator) CloneLearner(g *Graph, id LearnerID, birthday int) (LearnerID, error) {
	src, ok := g.Learner(id)
	if !ok {
		return 0, fmt.Errorf("clone learner %d: %w", id, ErrNotFound)
	}
	return g.AddLearner(NewLearner(birthday, src.Program.Clone(), src.action.Clone()))
}

// MutateAction varies a learner's action. With chance ActionTeamRef (and when
// allowTeamRef is set and candidates exist) the action is retargeted to a
// random candidate team; otherwise the atomic payload is mutated, converting a
// team action back into a fresh atomic action.
func (m *Mutator) MutateAction(g *Graph, id LearnerID, candidates []TeamID, allowTeamRef bool) error {
	l, ok := g.Learner(id)
	if !ok {
		return fmt.Errorf("mutate action %d: %w", id, ErrNotFound)
	}
	cur := l.Action()

	if allowTeamRef && len(candidates) > 0 && m.rng.Float64() < m.Params.ActionTeamRef {
		target := candidates[m.rng.IntN(len(candidates))]
		if cur.Kind == ActionTeam && cur.Team == target && len(candidates) > 1 {
			for target == cur.Team {
				target = candidates[m.rng.IntN(len(candidates))]
			}
		}
		return g.Retarget(id, TeamAction(target))
	}

	switch cur.Kind {
	case ActionLabel:
		return g.Retarget(id, LabelAction(MutateLabel(m.rng, cur.Label, m.Labels)))
	case ActionProgram:
		m.mutateUntilChanged(cur.Program)
		return nil
	default:
		next, err := m.RandomAtomicAction()
		if err != nil {
			return err
		}
		return g.Retarget(id, next)
	}
}

// MutateTeam applies learner deletion, addition and mutation to team.
// candidates are the teams a mutated action may be retargeted to; team itself
// is never used. The team always keeps at least two learners and at least one
// atomic learner.
func (m *Mutator) MutateTeam(g *Graph, teamID TeamID, birthday int, candidates []TeamID) error {
	team, ok := g.Team(teamID)
	if !ok {
		return fmt.Errorf("mutate team %d: %w", teamID, ErrNotFound)
	}
	targets := make([]TeamID, 0, len(candidates))
	for _, c := range candidates {
		if c != teamID {
			targets = append(targets, c)
		}
	}

	for _, lid := range team.Learners() {
		if team.Size() <= 2 || m.rng.Float64() >= m.Params.LearnerDelete {
			continue
		}
		if l, _ := g.Learner(lid); l.Action().IsAtomic() && m.atomicCount(g, team) <= 1 {
			continue
		}
		if err := g.Detach(teamID, lid); err != nil {
			return err
		}
	}

	pool := m.addPool(g, team)
	for len(pool) > 0 && team.Size() < m.Params.MaxTeamSize && m.rng.Float64() < m.Params.LearnerAdd {
		i := m.rng.IntN(len(pool))
		if err := g.Attach(teamID, pool[i]); err != nil {
			return err
		}
		pool = append(pool[:i], pool[i+1:]...)
	}

	for _, lid := range team.Learners() {
		if m.rng.Float64() >= m.Params.LearnerMutate {
			continue
		}
		clone, err := m.CloneLearner(g, lid, birthday)
		if err != nil {
			return err
		}
		if err := g.Replace(teamID, lid, clone); err != nil {
			return err
		}
		cl, _ := g.Learner(clone)
		m.mutateUntilChanged(cl.Program)
		if m.rng.Float64() < m.Params.ActionMutate {
			allowTeamRef := !cl.Action().IsAtomic() || m.atomicCount(g, team) > 1
			if err := m.MutateAction(g, clone, targets, allowTeamRef); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Mutator) mutateUntilChanged(p *Program) {
	for i := 0; i < 16; i++ {
		if MutateProgram(m.rng, p, m.Params) {
			return
		}
	}
	i := m.rng.IntN(len(p.instructions))
	p.instructions[i] = RandomInstruction(m.rng, m.Params.CanWrite)
}

func (m *Mutator) atomicCount(g *Graph, team *Team) int {
	n := 0
	for _, lid := range team.learners {
		if l, ok := g.Learner(lid); ok && l.Action().IsAtomic() {
			n++
		}
	}
	return n
}

// addPool lists learners that may join team: not already members and not targeting team.
func (m *Mutator) addPool(g *Graph, team *Team) []LearnerID {
	var pool []LearnerID
	for _, lid := range g.LearnerIDs() {
		l, _ := g.Learner(lid)
		if team.Has(lid) || l.RefCount() == 0 {
			continue
		}
		if a := l.Action(); a.Kind == ActionTeam && a.Team == team.ID {
			continue
		}
		pool = append(pool, lid)
	}
	return pool
}

func (m *Mutator) initialSize() int {
	if m.InitialProgramSize < 1 || m.InitialProgramSize > m.Params.MaxProgramSize {
		return m.Params.MaxProgramSize
	}
	return m.InitialProgramSize
}
