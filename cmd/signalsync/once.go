package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/miicoin/signalsync/config"
)

const onceTimeout = 30 * time.Second

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Fetch every task once and print the results",
	Long: `Run a single cycle for every task, print what each one returned and
exit. No sinks are written and nothing is scheduled.

Exit codes:
  0 - Every task succeeded
  1 - At least one task failed

Example:
  signalsync once -c signalsync.yaml`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)

	onceCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = onceCmd.MarkFlagRequired("config")
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	plans, err := config.BuildPlans(cfg)
	if err != nil {
		return fmt.Errorf("failed to build tasks: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), onceTimeout)
	defer cancel()

	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.close()

	out := cmd.OutOrStdout()
	failed := 0
	for _, p := range plans {
		payload, err := p.Probe(ctx, sess.fetcher, cfg.BaseURL)
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", p.Name, err)
			continue
		}
		data, err := json.Marshal(payload)
		if err != nil {
			data = []byte(fmt.Sprintf("%v", payload))
		}
		fmt.Fprintf(out, "OK   %s: %s\n", p.Name, data)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(plans))
	}
	return nil
}
