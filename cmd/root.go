package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "lintagent",
	Short: "Static-analysis orchestration for git repositories",
	Long: `lintagent clones git repositories, runs per-file static analyzers
(flake8, bandit, eslint, go vet) plus dependency audits over them, and
reports the aggregated findings via the REST API or signed webhooks.

Get started:
  lintagent serve      Start the analysis service (REST API + worker pool)
  lintagent analyze    Analyze one repository from the command line
  lintagent jobs       Inspect submitted jobs
  lintagent apikey     Manage API keys for the REST surface`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.lintagent/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		serveCmd,
		analyzeCmd,
		jobsCmd,
		apikeyCmd,
	)
}

func initLogging() {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
