package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath   string
	redisURLFlag string
	instanceFlag string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tangle",
	Short: "tangle - Tangled Program Graph trainer",
	Long: `tangle evolves Tangled Program Graphs: populations of teams of small
bidding programs that learn to label feature vectors.

Training is configured by tangle.yml. Runs, trained models and live
generation events are kept in Redis when a store is configured.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tangle.yml", "Path to tangle.yml")
	rootCmd.PersistentFlags().StringVar(&redisURLFlag, "redis-url", "", "Redis URL of the run store (overrides store.redis_url and $TANGLE_REDIS_URL)")
	rootCmd.PersistentFlags().StringVar(&instanceFlag, "instance", "", "Store instance name (overrides store.instance)")
}
