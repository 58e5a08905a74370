// Package filter selects runs for the runs and watch commands.
package filter

import (
	"path/filepath"

	"github.com/dyluth/tangle/pkg/store"
)

// Criteria defines filtering criteria for runs.
// All filters are ANDed together - a run must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64           // started at or after, 0 = no filter
	UntilTimestampMs int64           // started at or before, 0 = no filter
	NameGlob         string          // glob over the run name, empty = no filter
	Status           store.RunStatus // exact status, empty = no filter
}

// Matches returns true if the run matches all filter criteria.
func (c *Criteria) Matches(run *store.Run) bool {
	if c.SinceTimestampMs > 0 && run.StartedAtMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && run.StartedAtMs > c.UntilTimestampMs {
		return false
	}

	if c.NameGlob != "" {
		matched, err := filepath.Match(c.NameGlob, run.Name)
		if err != nil || !matched {
			return false
		}
	}

	if c.Status != "" && run.Status != c.Status {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.NameGlob != "" ||
		c.Status != ""
}

// Apply returns the runs that match, preserving order.
func (c *Criteria) Apply(runs []*store.Run) []*store.Run {
	if !c.HasFilters() {
		return runs
	}
	out := make([]*store.Run, 0, len(runs))
	for _, r := range runs {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
