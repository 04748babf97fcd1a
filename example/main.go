// Command example runs the SignalSync SDK against an in-process mock of the
// MiiCoin backend and serves the dashboard on :8080.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/miicoin/signalsync"
	"github.com/miicoin/signalsync/example/mockbackend"
	"github.com/miicoin/signalsync/internal/sink/console"
	"github.com/miicoin/signalsync/signals"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseURL, err := startBackend(ctx, logger)
	if err != nil {
		logger.Error("failed to start mock backend", "error", err)
		os.Exit(1)
	}

	s, err := signalsync.New(
		signalsync.WithBaseURL(baseURL),
		signalsync.WithDefaultInterval(5*time.Second),
		signalsync.WithDashboard(8080),
		signalsync.WithTitle("MiiCoin demo"),
		signalsync.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create synchronizer", "error", err)
		os.Exit(1)
	}

	if err := register(s, console.NewWriter(os.Stdout), logger); err != nil {
		logger.Error("failed to register tasks", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  SignalSync demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println("  Mock backend fails every 4th signals request")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := s.Run(ctx); err != nil {
		logger.Error("signalsync error", "error", err)
		os.Exit(1)
	}
}

func register(s *signalsync.Synchronizer, out *console.Writer, logger *slog.Logger) error {
	signalsEP := signalsync.MustEndpoint("signals", "/api/signals", signals.ParseSignalList)
	if _, err := signalsync.Register(s, signalsync.Task[signals.SignalList]{
		Endpoint: signalsEP,
		Sink: signalsync.MultiSink[signals.SignalList](
			signalsync.StoreSink[signals.SignalList](s, "signals"),
			console.Signals(out, "signals", logger),
		),
	}); err != nil {
		return err
	}

	botEP := signalsync.MustEndpoint("bot", "/api/bot/status", signals.ParseBotStatus,
		signalsync.WithInterval(15*time.Second),
	)
	if _, err := signalsync.Register(s, signalsync.Task[signals.BotStatus]{
		Endpoint: botEP,
		Sink:     signalsync.StoreSink[signals.BotStatus](s, "bot"),
	}); err != nil {
		return err
	}

	// one price task per market
	prices, err := signalsync.NewEndpointGrid("price", signalsync.JSONPath[float64]("signals.0.price"),
		signalsync.WithPathTemplate("/api/signals?symbol={{.symbol}}"),
		signalsync.WithDimensions(map[string][]string{
			"symbol": {"BTC/USDT", "ETH/USDT"},
		}),
	)
	if err != nil {
		return err
	}
	for _, ep := range prices {
		if _, err := signalsync.Register(s, signalsync.Task[float64]{
			Endpoint: ep,
			Sink:     signalsync.StoreSink[float64](s, ep.Name()),
		}); err != nil {
			return err
		}
	}
	return nil
}

// startBackend serves the mock backend on a free local port until ctx ends.
func startBackend(ctx context.Context, logger *slog.Logger) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}

	backend := mockbackend.New(mockbackend.Options{FailEvery: 4, Logger: logger})
	srv := &http.Server{Handler: backend, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mock backend stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return "http://" + ln.Addr().String(), nil
}
