package commands

import (
	"fmt"

	"github.com/dyluth/tangle/internal/printer"
	"github.com/dyluth/tangle/internal/scaffold"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new tangle project",
	Long: `Initialize a new tangle project with a default configuration and a
small sample dataset.

Creates:
  • tangle.yml      - Training configuration
  • exemplars.jsonl - Sample labelled exemplars, one JSON object per line

Use --force to reinitialize an existing project (WARNING: overwrites both files).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (overwrites tangle.yml and exemplars.jsonl)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	if !forceInit {
		if err := scaffold.CheckExisting(dir); err != nil {
			return printer.Error("project already initialized", err.Error(), nil)
		}
	}

	if err := scaffold.Initialize(dir, forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess(dir)
	return nil
}
