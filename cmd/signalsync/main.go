// Package main is the entry point for the signalsync CLI.
//
// Usage:
//
//	signalsync serve -c signalsync.yaml    # poll and serve the dashboard
//	signalsync once -c signalsync.yaml     # fetch every task once
//	signalsync validate -c signalsync.yaml # check a config file
//	signalsync version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "signalsync",
	Short: "Keep a view of the MiiCoin backend in sync",
	Long: `signalsync polls the MiiCoin backend on fixed intervals and renders
the latest signals, bot status and profile to a live dashboard, the terminal
and optionally Redis.

Quick start:
  1. Create a config file (signalsync.yaml)
  2. Run: signalsync serve -c signalsync.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  base_url: http://localhost:5000
  interval: 30s
  tasks:
    - name: signals
      path: /api/signals
      kind: signals
      sinks: [store, console]`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger on stderr at the --log-level threshold.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "signalsync %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}
