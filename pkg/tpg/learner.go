package tpg

// LearnerID identifies a learner. Ids are allocated by the graph and never reused.
type LearnerID uint64

// Learner couples a bidding program to an action. It is the unit of selection and mutation.
type Learner struct {
	ID       LearnerID
	Birthday int
	Program  *Program
	action   Action
	refs     int
}

// NewLearner builds a detached learner. Ids are assigned by Graph.AddLearner.
func NewLearner(birthday int, program *Program, action Action) *Learner {
	return &Learner{Birthday: birthday, Program: program, action: action}
}

// Action returns the learner's current action.
func (l *Learner) Action() Action {
	return l.action
}

// RefCount returns how many teams currently hold this learner.
func (l *Learner) RefCount() int {
	return l.refs
}

// Bid returns sigmoid(program(input)[0]).
func (l *Learner) Bid(input []float64) float64 {
	return Sigmoid(l.Program.Run(input)[0])
}
