package tpg

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExemplarValidate(t *testing.T) {
	labels := []int64{0, 1}
	tests := []struct {
		name    string
		ex      Exemplar
		wantErr bool
	}{
		{"valid", Exemplar{ID: "a", Features: []float64{1, 2}, Label: 1}, false},
		{"empty features", Exemplar{ID: "b", Label: 1}, true},
		{"nan feature", Exemplar{ID: "c", Features: []float64{math.NaN()}, Label: 1}, true},
		{"inf feature", Exemplar{ID: "d", Features: []float64{math.Inf(-1)}, Label: 0}, true},
		{"unknown label", Exemplar{ID: "e", Features: []float64{1}, Label: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ex.Validate(labels)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidExemplar)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	ex := Exemplar{ID: "f", Features: []float64{1}, Label: 99}
	assert.NoError(t, ex.Validate(nil), "nil label set skips the label check")
}

func TestSliceSourceRestarts(t *testing.T) {
	src := SliceSource{
		{ID: "1", Features: []float64{1}},
		{ID: "2", Features: []float64{2}},
	}
	first, err := src.Exemplars(context.Background())
	require.NoError(t, err)
	second, err := src.Exemplars(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Exemplars(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredictionCorrect(t *testing.T) {
	ex := &Exemplar{Label: 3}
	assert.True(t, Prediction{Exemplar: ex, Decision: Decision{Kind: ActionLabel, Label: 3}}.Correct())
	assert.False(t, Prediction{Exemplar: ex, Decision: Decision{Kind: ActionLabel, Label: 2}}.Correct())
	assert.False(t, Prediction{Exemplar: ex, Decision: Decision{NoDecision: true, Label: NoLabel}}.Correct())
	assert.False(t, Prediction{Exemplar: ex, Decision: Decision{Kind: ActionProgram, Vector: []float64{3}}}.Correct())
}
