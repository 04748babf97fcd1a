package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/miicoin/signalsync/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a signalsync config file without polling anything.

Parses the YAML, expands environment variables and checks every field.
Useful in CI before a deploy.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  signalsync validate -c signalsync.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Tasks)
	total := cfg.TaskCount()

	dashboard := "disabled"
	if cfg.DashboardEnabled() {
		dashboard = fmt.Sprintf("port %d", cfg.Port)
	}
	auth := "none"
	if cfg.Auth != nil {
		auth = cfg.Auth.Email
	}
	redis := "none"
	if cfg.Redis != nil {
		redis = cfg.Redis.Addr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Base URL:  %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  Dashboard: %s\n", dashboard)
	fmt.Fprintf(out, "  Interval:  %s\n", cfg.Interval.Duration())
	fmt.Fprintf(out, "  Auth:      %s\n", auth)
	fmt.Fprintf(out, "  Redis:     %s\n", redis)
	fmt.Fprintf(out, "  Tasks:     %d direct + %d from grids = %d total\n", direct, total-direct, total)
	return nil
}
