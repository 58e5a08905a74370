package runs

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/tangle/internal/printer"
	"github.com/dyluth/tangle/pkg/store"
)

// FormatTable writes runs as a formatted table to the provided writer.
// Returns the number of runs formatted.
func FormatTable(w io.Writer, runs []*store.Run, instanceName string, now time.Time) int {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Runs for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-20s %-10s %-9s %-9s %s\n",
		"ID", "NAME", "STATUS", "GEN", "BEST", "STARTED")
	fmt.Fprintf(w, "%-10s %-20s %-10s %-9s %-9s %s\n",
		"----------", "--------------------", "----------", "---------", "---------", "--------")

	for _, r := range runs {
		// pad before coloring so escape codes do not break alignment
		status := fmt.Sprintf("%-10s", r.Status)
		fmt.Fprintf(w, "%-10s %-20s %s %-9s %-9s %s\n",
			formatID(r.ID),
			formatName(r.Name),
			printer.Status(string(r.Status))+status[len(r.Status):],
			formatProgress(r.Generation, r.Generations),
			formatReward(r),
			formatAge(r.StartedAtMs, now),
		)
	}

	noun := "run"
	if len(runs) != 1 {
		noun = "runs"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(runs), noun)

	return len(runs)
}

// FormatJSONL writes one JSON object per line, suitable for jq.
func FormatJSONL(w io.Writer, runs []*store.Run) error {
	for _, r := range runs {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal run to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatJSON writes v as pretty-printed JSON followed by a newline.
func FormatJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatID truncates run IDs to their first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatName(name string) string {
	if len(name) > 20 {
		return name[:17] + "..."
	}
	return name
}

func formatProgress(generation, generations int) string {
	return fmt.Sprintf("%d/%d", generation, generations)
}

// formatReward shows "-" until a champion exists.
func formatReward(r *store.Run) string {
	if r.Champion == 0 {
		return "-"
	}
	return fmt.Sprintf("%.4f", r.BestReward)
}

// formatAge renders a millisecond timestamp as "2m ago", "1h ago" and so on.
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := now.Sub(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
