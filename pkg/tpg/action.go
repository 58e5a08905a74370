package tpg

import (
	"fmt"
	"math"
)

// ActionKind tags the variant held by an Action.
type ActionKind uint8

const (
	// ActionLabel is an atomic action emitting a fixed integer label
	ActionLabel ActionKind = iota + 1
	// ActionProgram is an atomic action emitting the output of an owned sub-program
	ActionProgram
	// ActionTeam delegates the decision to another team
	ActionTeam
)

// String returns the kind name.
func (k ActionKind) String() string {
	switch k {
	case ActionLabel:
		return "label"
	case ActionProgram:
		return "program"
	case ActionTeam:
		return "team"
	default:
		return fmt.Sprintf("ActionKind(%d)", uint8(k))
	}
}

// NoLabel is the sentinel "no label" value. It is never a legal action label.
const NoLabel int64 = math.MinInt64

// Action is a learner's decision payload. Exactly one of Label, Program or Team
// is meaningful, selected by Kind.
//
// A team action is a non-owning, reference-counted edge into the graph arena.
// Only the Graph changes a learner's action once the learner is attached, so
// that the target team's inbound count stays consistent.
type Action struct {
	Kind    ActionKind
	Label   int64
	Program *Program
	Team    TeamID
}

// LabelAction returns an atomic label action. Passing NoLabel is a programming error.
func LabelAction(label int64) Action {
	if label == NoLabel {
		panic("tpg: NoLabel is not a legal action label")
	}
	return Action{Kind: ActionLabel, Label: label}
}

// ProgramAction returns an atomic action owning p.
func ProgramAction(p *Program) Action {
	if p == nil {
		panic("tpg: program action requires a program")
	}
	return Action{Kind: ActionProgram, Program: p}
}

// TeamAction returns a delegating action targeting team id.
func TeamAction(id TeamID) Action {
	return Action{Kind: ActionTeam, Team: id}
}

// IsAtomic reports whether the action yields a value without delegation.
func (a Action) IsAtomic() bool {
	return a.Kind == ActionLabel || a.Kind == ActionProgram
}

// Outcome is the result of evaluating an Action: either a vector or a deferred delegation.
type Outcome struct {
	Vector   []float64
	Delegate TeamID
	Deferred bool
}

// Evaluate produces the action's outcome for input. Team actions are returned
// as deferred delegations; resolving them is the caller's job.
func (a Action) Evaluate(input []float64) Outcome {
	switch a.Kind {
	case ActionLabel:
		return Outcome{Vector: []float64{float64(a.Label)}}
	case ActionProgram:
		return Outcome{Vector: a.Program.Run(input)}
	case ActionTeam:
		return Outcome{Delegate: a.Team, Deferred: true}
	default:
		return Outcome{}
	}
}

// Clone deep-copies atomic payloads. Team actions copy the target id only.
func (a Action) Clone() Action {
	if a.Kind == ActionProgram && a.Program != nil {
		a.Program = a.Program.Clone()
	}
	return a
}

// Equal compares kind and payload. Sub-programs are compared by content.
func (a Action) Equal(o Action) bool {
	if a.Kind != o.Kind {
		return false
	}
	switch a.Kind {
	case ActionLabel:
		return a.Label == o.Label
	case ActionProgram:
		return a.Program.Equal(o.Program)
	case ActionTeam:
		return a.Team == o.Team
	default:
		return true
	}
}

// String renders the action for inspection output.
func (a Action) String() string {
	switch a.Kind {
	case ActionLabel:
		return fmt.Sprintf("label(%d)", a.Label)
	case ActionProgram:
		return fmt.Sprintf("program(%d ins, %d out)", a.Program.Len(), a.Program.Outputs())
	case ActionTeam:
		return fmt.Sprintf("team(%d)", a.Team)
	default:
		return "none"
	}
}
