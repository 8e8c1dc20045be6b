package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	pipelineConfigPath string
	verbose            bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "quantsnap - scheduled equity quant snapshot",
	Long: `quantsnap Unified CLI

Pulls daily prices for a configured universe, computes indicators, ranks
symbols against a target annual return and publishes a JSON snapshot for a
static dashboard.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant run --once
  go run ./cmd/quant run --once --export-json /tmp/latest.json
  go run ./cmd/quant scheduler start
  go run ./cmd/quant serve
  go run ./cmd/quant status`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&pipelineConfigPath, "config", "", "pipeline YAML (default $PIPELINE_CONFIG or config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
