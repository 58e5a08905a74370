package commands

import (
	"context"

	"github.com/dyluth/tangle/internal/printer"
	"github.com/dyluth/tangle/internal/runs"
	"github.com/spf13/cobra"
)

var inspectModel string

var inspectCmd = &cobra.Command{
	Use:   "inspect [run-id]",
	Short: "Summarize a trained model",
	Long: `Print a JSON summary of a trained model: population sizes, action kinds,
memory shape and the champion team's learners.

Examples:
  tangle inspect latest
  tangle inspect --model model.tpg`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectModel, "model", "m", "", "Model file written by tangle train --output")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if inspectModel != "" {
		if len(args) > 0 {
			return printer.Error("conflicting inputs", "Give either a run ID or --model, not both.", nil)
		}
		m, err := loadModel(ctx, inspectModel, "")
		if err != nil {
			return err
		}
		return runs.FormatJSON(cmd.OutOrStdout(), runs.Summarize(m))
	}

	if len(args) == 0 {
		return printer.Error(
			"no model specified",
			"Nothing to inspect.",
			[]string{"Inspect a stored run:\n  tangle inspect <run-id>", "Inspect a model file:\n  tangle inspect --model model.tpg"},
		)
	}

	client, err := requireStore(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := resolveRun(ctx, client, args[0])
	if err != nil {
		return err
	}
	if err := runs.InspectModel(ctx, client, id, cmd.OutOrStdout()); err != nil {
		if runs.IsNotFound(err) {
			return printer.Error("model not found", err.Error(),
				[]string{"The run may still be in progress or may have failed:\n  tangle runs get " + id})
		}
		return err
	}
	return nil
}
