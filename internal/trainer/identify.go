package trainer

import (
	"fmt"

	"github.com/dyluth/tangle/pkg/tpg"
)

// Identify runs a trained model's champion on one exemplar.
// A traversal that ends without an atomic action is returned as a
// NoDecision value, not an error.
func Identify(model *tpg.Model, ex *tpg.Exemplar) (tpg.Decision, error) {
	if model == nil {
		return tpg.Decision{}, fmt.Errorf("model is required")
	}
	if err := ex.Validate(nil); err != nil {
		return tpg.Decision{}, err
	}
	return model.Decide(ex.Features)
}
