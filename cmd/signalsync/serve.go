package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miicoin/signalsync"
	"github.com/miicoin/signalsync/config"
	"github.com/miicoin/signalsync/internal/sink/console"
	"github.com/miicoin/signalsync/internal/sink/redissink"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the backend and serve the dashboard",
	Long: `Load the config, log in if credentials are set, then poll every task
on its interval. Payloads go to the sinks each task lists: the dashboard
store, the terminal, or Redis.

Runs until interrupted (Ctrl+C) or SIGTERM.

Example:
  signalsync serve -c signalsync.yaml
  signalsync serve --config /etc/signalsync/signalsync.yaml --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Info("config loaded",
		"tasks", len(cfg.Tasks),
		"grids", len(cfg.Grids),
		"interval", cfg.Interval.Duration().String(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.close()

	deps := config.Deps{
		Console: console.NewWriter(cmd.OutOrStdout()),
		Logger:  logger,
	}
	if cfg.Redis != nil {
		rdb, err := redissink.Dial(ctx, redissink.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			// writes are retried on every cycle
			logger.Warn("redis unavailable", "addr", cfg.Redis.Addr, "error", err)
		}
		defer func() { _ = rdb.Close() }()
		deps.Redis = rdb
	}

	opts := append(config.SyncOptions(cfg),
		signalsync.WithLogger(logger),
		signalsync.WithFetcher(sess.fetcher),
	)
	s, err := signalsync.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create synchronizer: %w", err)
	}

	if _, err := config.BuildTasks(s, cfg, deps); err != nil {
		return fmt.Errorf("failed to build tasks: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Run(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
