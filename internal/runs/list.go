// Package runs implements the run listing, lookup and model inspection behind the tangle CLI.
package runs

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/tangle/internal/filter"
	"github.com/dyluth/tangle/pkg/store"
)

// OutputFormat specifies how to format the run list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete run records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ListRuns writes every run of the client's instance that matches criteria, oldest first.
// Malformed records are skipped with a warning on warnW.
func ListRuns(ctx context.Context, client *store.Client, criteria *filter.Criteria, format OutputFormat, w, warnW io.Writer) error {
	all, skipped, err := client.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	for _, id := range skipped {
		fmt.Fprintf(warnW, "⚠️  Skipping malformed run: %s\n", id)
	}

	if criteria != nil {
		all = criteria.Apply(all)
	}

	switch format {
	case OutputFormatDefault, "":
		FormatTable(w, all, client.InstanceName(), time.Now())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, all); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
