// Package cmd implements the pdiscovery command-line interface.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pdiscovery/pdiscovery/internal/config"
	"github.com/pdiscovery/pdiscovery/internal/log"
)

var (
	flagVerbose bool
	flagJSONLog bool
)

var rootCmd = &cobra.Command{
	Use:   "pdiscovery",
	Short: "Product-discovery research assistant",
	Long: `pdiscovery answers questions about product-discovery research.

It ingests research documents (PDF and Markdown), indexes them in
PostgreSQL with pgvector, and answers questions grounded in the indexed
research, citing the sources it used.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "log in JSON format")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
}

// newLogger builds the process logger from the global flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagJSONLog})
}

// loadConfig loads and validates configuration for subcommands.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
