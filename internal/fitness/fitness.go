// Package fitness provides the built-in reward strategies selectable from tangle.yml.
package fitness

import (
	"fmt"
	"sort"

	"github.com/dyluth/tangle/pkg/tpg"
)

// Strategy names accepted by ByName
const (
	NameAccuracy         = "accuracy"
	NameBalancedAccuracy = "balanced_accuracy"
)

// Accuracy rewards the fraction of exemplars whose label decision matches the
// exemplar label. No-decision and non-label outcomes count as wrong.
type Accuracy struct {
	correct int
	total   int
}

// NewAccuracy returns an empty accuracy accumulator.
func NewAccuracy() tpg.FitnessStrategy { return &Accuracy{} }

// OnPrediction records one prediction.
func (a *Accuracy) OnPrediction(p tpg.Prediction) error {
	if p.Exemplar == nil {
		return fmt.Errorf("prediction for team %d has no exemplar", p.TeamID)
	}
	a.total++
	if p.Correct() {
		a.correct++
	}
	return nil
}

// Reward returns correct/total, or 0 before any prediction.
func (a *Accuracy) Reward() (float64, error) {
	if a.total == 0 {
		return 0, nil
	}
	return float64(a.correct) / float64(a.total), nil
}

// BalancedAccuracy rewards the mean per-class recall.
type BalancedAccuracy struct {
	seen    map[int64]int
	correct map[int64]int
}

// NewBalancedAccuracy returns an empty balanced accuracy accumulator.
func NewBalancedAccuracy() tpg.FitnessStrategy {
	return &BalancedAccuracy{seen: map[int64]int{}, correct: map[int64]int{}}
}

// OnPrediction records one prediction against its exemplar's class.
func (b *BalancedAccuracy) OnPrediction(p tpg.Prediction) error {
	if p.Exemplar == nil {
		return fmt.Errorf("prediction for team %d has no exemplar", p.TeamID)
	}
	b.seen[p.Exemplar.Label]++
	if p.Correct() {
		b.correct[p.Exemplar.Label]++
	}
	return nil
}

// Reward returns the mean recall over every class seen so far.
func (b *BalancedAccuracy) Reward() (float64, error) {
	if len(b.seen) == 0 {
		return 0, nil
	}
	labels := make([]int64, 0, len(b.seen))
	for l := range b.seen {
		labels = append(labels, l)
	}
	// fixed summation order keeps rewards bit-identical across runs
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	var sum float64
	for _, l := range labels {
		sum += float64(b.correct[l]) / float64(b.seen[l])
	}
	return sum / float64(len(labels)), nil
}

// ByName returns the factory for a built-in strategy.
func ByName(name string) (tpg.FitnessFactory, error) {
	switch name {
	case NameAccuracy, "":
		return NewAccuracy, nil
	case NameBalancedAccuracy:
		return NewBalancedAccuracy, nil
	default:
		return nil, fmt.Errorf("unknown fitness strategy '%s' (valid: %s, %s)", name, NameAccuracy, NameBalancedAccuracy)
	}
}
