package filter

import (
	"testing"
	"time"

	"github.com/dyluth/tangle/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriteriaMatches(t *testing.T) {
	run := &store.Run{Name: "iris-small", Status: store.RunStatusCompleted, StartedAtMs: 5000}

	tests := []struct {
		name     string
		criteria Criteria
		want     bool
	}{
		{"empty criteria", Criteria{}, true},
		{"since before start", Criteria{SinceTimestampMs: 4000}, true},
		{"since after start", Criteria{SinceTimestampMs: 6000}, false},
		{"until after start", Criteria{UntilTimestampMs: 6000}, true},
		{"until before start", Criteria{UntilTimestampMs: 4000}, false},
		{"name glob", Criteria{NameGlob: "iris-*"}, true},
		{"name glob mismatch", Criteria{NameGlob: "mnist*"}, false},
		{"malformed glob", Criteria{NameGlob: "[iris"}, false},
		{"status", Criteria{Status: store.RunStatusCompleted}, true},
		{"status mismatch", Criteria{Status: store.RunStatusRunning}, false},
		{"all together", Criteria{SinceTimestampMs: 1, NameGlob: "iris*", Status: store.RunStatusCompleted}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Matches(run))
			assert.Equal(t, tt.criteria != Criteria{}, tt.criteria.HasFilters())
		})
	}
}

func TestCriteriaApply(t *testing.T) {
	runs := []*store.Run{
		{Name: "a", Status: store.RunStatusRunning},
		{Name: "b", Status: store.RunStatusFailed},
		{Name: "c", Status: store.RunStatusRunning},
	}

	c := Criteria{Status: store.RunStatusRunning}
	got := c.Apply(runs)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "c", got[1].Name)

	empty := Criteria{}
	assert.Len(t, empty.Apply(runs), 3)
}

func TestParseTime(t *testing.T) {
	now := time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

	ms, err := ParseTime("1h30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*time.Minute).UnixMilli(), ms)

	ms, err = ParseTime("2025-10-29T13:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC).UnixMilli(), ms)

	for _, bad := range []string{"", "yesterday", "-1h", "2025-10-29"} {
		_, err := ParseTime(bad, now)
		assert.Error(t, err, bad)
	}
}

func TestParseRange(t *testing.T) {
	now := time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

	since, until, err := ParseRange("2h", "1h", now)
	require.NoError(t, err)
	assert.Less(t, since, until)

	since, until, err = ParseRange("", "", now)
	require.NoError(t, err)
	assert.Zero(t, since)
	assert.Zero(t, until)

	_, _, err = ParseRange("1h", "2h", now)
	assert.ErrorContains(t, err, "--since must be before --until")

	_, _, err = ParseRange("soon", "", now)
	assert.ErrorContains(t, err, "invalid --since")
}
