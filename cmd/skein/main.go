package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/skeinworks/skein/cmd/skein/commands"
	"github.com/skeinworks/skein/internal/config"
	"github.com/skeinworks/skein/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Wipe any protected secret buffers before the process exits.
	defer memguard.Purge()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	// Create config placeholder
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "skein",
		Short: "Secrets backends and migration tooling for workflow pipelines",
		Long: `skein resolves connections and variables from pluggable secrets
backends, injects them into child processes, and migrates pipeline code
off removed backend APIs.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize logger with parsed flags
			logger := logging.New(debug, noColor)

			// Update config with parsed values
			cfg.Path = configFile
			cfg.Logger = logger
			cfg.NonInteractive = nonInteractive
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "skein.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Non-interactive mode")

	// Add commands
	rootCmd.AddCommand(
		commands.NewInitCommand(cfg),
		commands.NewGetCommand(cfg),
		commands.NewConnectionsCommand(cfg),
		commands.NewVariablesCommand(cfg),
		commands.NewExecCommand(cfg),
		commands.NewBackendsCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewLintCommand(cfg),
		commands.NewFixCommand(cfg),
		commands.NewFragmentCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}
