package tpg

// Prediction is what a root team decided for one exemplar.
type Prediction struct {
	TeamID   TeamID
	Exemplar *Exemplar
	Decision Decision
}

// Correct reports whether a label decision matches the exemplar label.
func (p Prediction) Correct() bool {
	return !p.Decision.NoDecision && p.Decision.Kind == ActionLabel && p.Decision.Label == p.Exemplar.Label
}

// FitnessStrategy accumulates predictions for one candidate policy and scores it.
// OnPrediction may be called many times; Reward is a pure read of the accumulated score.
// A strategy is used for a single team in a single generation.
type FitnessStrategy interface {
	OnPrediction(p Prediction) error
	Reward() (float64, error)
}

// FitnessFactory creates a fresh strategy. The trainer calls it once per team per generation.
type FitnessFactory func() FitnessStrategy
