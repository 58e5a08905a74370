package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dyluth/tangle/pkg/tpg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	input := `{"id": "a", "source": "s1", "features": [1, 2], "label": 2}

{"features": [3.5], "label": 0, "dataset": "other", "extras": {"k": "v"}}
`
	d, err := Parse(strings.NewReader(input), "iris")
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())

	exemplars, err := d.Exemplars(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", exemplars[0].ID)
	assert.Equal(t, "iris", exemplars[0].Dataset)
	assert.Equal(t, []float64{1, 2}, exemplars[0].Features)
	assert.Equal(t, "3", exemplars[1].ID, "missing ids take the line number")
	assert.Equal(t, "other", exemplars[1].Dataset)
	assert.Equal(t, "v", exemplars[1].Extras["k"])

	assert.Equal(t, []int64{0, 2}, d.Labels())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{"malformed json", "{\"features\": [1], \"label\": 0}\n{nope}\n", "line 2"},
		{"unknown field", `{"features": [1], "colour": "red"}`, "line 1"},
		{"empty", "\n\n", "no exemplars"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input), "bad")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseKeepsInvalidExemplars(t *testing.T) {
	input := `{"id": "ok", "features": [1], "label": 1}
{"id": "empty", "label": 1}
`
	d, err := Parse(strings.NewReader(input), "mixed")
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())

	exemplars, err := d.Exemplars(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "empty", exemplars[1].ID)
	assert.Empty(t, exemplars[1].Features)
	assert.ErrorIs(t, exemplars[1].Validate(nil), tpg.ErrInvalidExemplar)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digits.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"features": [0.5], "label": 7}`+"\n"), 0644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "digits", d.Name)
	assert.Equal(t, []int64{7}, d.Labels())

	_, err = Load(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open dataset")
}
