package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/tangle/internal/filter"
	"github.com/dyluth/tangle/internal/printer"
	"github.com/dyluth/tangle/internal/runs"
	"github.com/dyluth/tangle/pkg/store"
	"github.com/spf13/cobra"
)

var (
	runsOutput string
	runsSince  string
	runsUntil  string
	runsName   string
	runsStatus string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List training runs in the run store",
	Long: `List the training runs recorded in the run store, oldest first.

Filters are ANDed together.

Examples:
  # Runs started in the last two hours
  tangle runs --since 2h

  # Completed runs whose name starts with iris, as JSON lines
  tangle runs --name 'iris*' --status completed --output jsonl`,
	Args: cobra.NoArgs,
	RunE: runRunsList,
}

var runsGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show one run as JSON",
	Long: `Show the full run record as JSON.

The run may be given as a full ID, a prefix of at least 6 characters, or
'latest'.`,
	Args: cobra.ExactArgs(1),
	RunE: runRunsGet,
}

func init() {
	runsCmd.Flags().StringVarP(&runsOutput, "output", "o", "default", "Output format (default or jsonl)")
	runsCmd.Flags().StringVar(&runsSince, "since", "", "Only runs started after this time (duration like 1h or RFC3339)")
	runsCmd.Flags().StringVar(&runsUntil, "until", "", "Only runs started before this time (duration like 1h or RFC3339)")
	runsCmd.Flags().StringVar(&runsName, "name", "", "Only runs whose name matches this glob")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "Only runs with this status (running, completed, stopped, failed)")
	runsCmd.AddCommand(runsGetCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	format := runs.OutputFormat(runsOutput)
	if format != runs.OutputFormatDefault && format != runs.OutputFormatJSONL {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", runsOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	since, until, err := filter.ParseRange(runsSince, runsUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time range", err.Error(), nil)
	}
	criteria := &filter.Criteria{
		SinceTimestampMs: since,
		UntilTimestampMs: until,
		NameGlob:         runsName,
		Status:           store.RunStatus(runsStatus),
	}
	if criteria.Status != "" {
		if err := criteria.Status.Validate(); err != nil {
			return printer.Error("invalid --status", err.Error(),
				[]string{"Valid statuses: running, completed, stopped, failed"})
		}
	}

	ctx := context.Background()
	client, err := requireStore(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	return runs.ListRuns(ctx, client, criteria, format, cmd.OutOrStdout(), os.Stderr)
}

func runRunsGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client, err := requireStore(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := resolveRun(ctx, client, args[0])
	if err != nil {
		return err
	}
	return runs.GetRun(ctx, client, id, cmd.OutOrStdout())
}
