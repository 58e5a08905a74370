package tpg

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidExemplar marks an exemplar that cannot be evaluated.
var ErrInvalidExemplar = errors.New("invalid exemplar")

// Exemplar is one labelled training sample. The engine never mutates exemplars.
type Exemplar struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Features []float64         `json:"features"`
	Label    int64             `json:"label"`
	Dataset  string            `json:"dataset"`
	Extras   map[string]string `json:"extras,omitempty"`
}

// Validate rejects empty or non-finite feature vectors and labels outside labels.
// A nil labels slice skips the label check.
func (e *Exemplar) Validate(labels []int64) error {
	if len(e.Features) == 0 {
		return fmt.Errorf("%w: exemplar %q has an empty feature vector", ErrInvalidExemplar, e.ID)
	}
	for i, f := range e.Features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: exemplar %q feature %d is not finite", ErrInvalidExemplar, e.ID, i)
		}
	}
	if labels == nil {
		return nil
	}
	for _, l := range labels {
		if l == e.Label {
			return nil
		}
	}
	return fmt.Errorf("%w: exemplar %q label %d is not in the action set", ErrInvalidExemplar, e.ID, e.Label)
}

// Source supplies a finite, restartable sequence of exemplars.
// Every call returns the full sequence from the start.
type Source interface {
	Exemplars(ctx context.Context) ([]Exemplar, error)
}

// SliceSource serves exemplars from memory.
type SliceSource []Exemplar

// Exemplars returns a copy of the slice header; exemplars themselves are shared read-only.
func (s SliceSource) Exemplars(ctx context.Context) ([]Exemplar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Exemplar(nil), s...), nil
}
