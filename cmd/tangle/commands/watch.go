package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/tangle/internal/printer"
	"github.com/dyluth/tangle/internal/watch"
	"github.com/dyluth/tangle/pkg/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchWait         time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [run-id]",
	Short: "Follow training progress in real time",
	Long: `Stream generation events as runs progress.

With a run ID, only that run is followed and the command exits when the
run finishes. Without one, every run of the instance is streamed until
interrupted.

Output Formats:
  default - Human-readable output with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Follow the most recent run
  tangle watch latest

  # Wait up to a minute for a run that has not started yet
  tangle watch 0b6e2f2c-4c1a-4b8e-9c55-1f0d2e3a4b5c --wait 1m

  # Export all events as JSON
  tangle watch --output=json > events.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().DurationVar(&watchWait, "wait", 0, "Wait this long for a run ID that does not exist yet")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var format watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		format = watch.OutputFormatDefault
	case "json":
		format = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := requireStore(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	// Subscribe before checking the run so its final event cannot slip past
	sub, err := client.SubscribeGenerationEvents(ctx)
	if err != nil {
		return printer.Error("failed to subscribe", err.Error(), nil)
	}
	defer sub.Close()

	var runID string
	if len(args) == 1 {
		run, err := lookupRun(ctx, client, args[0])
		if err != nil {
			return err
		}
		runID = run.ID

		if run.Status.Finished() {
			printer.Info("Run %s already %s at generation %d (best reward %.4f)\n",
				run.ID, printer.Status(string(run.Status)), run.Generation, run.BestReward)
			return nil
		}
		printer.Step("Watching run '%s' (%s)\n", run.Name, run.ID)
	} else {
		printer.Step("Watching all runs on instance '%s'\n", client.InstanceName())
	}

	return watch.Follow(ctx, sub, runID, format, cmd.OutOrStdout())
}

// lookupRun resolves ref, waiting up to --wait for a full run ID to appear.
func lookupRun(ctx context.Context, client *store.Client, ref string) (*store.Run, error) {
	if _, err := uuid.Parse(ref); err == nil && watchWait > 0 {
		run, err := watch.PollForRun(ctx, client, ref, 200*time.Millisecond, watchWait)
		if err != nil {
			return nil, printer.Error("run did not appear", err.Error(), nil)
		}
		return run, nil
	}

	id, err := resolveRun(ctx, client, ref)
	if err != nil {
		return nil, err
	}
	run, err := client.GetRun(ctx, id)
	if err != nil {
		return nil, printer.Error("failed to read run", err.Error(), nil)
	}
	return run, nil
}
