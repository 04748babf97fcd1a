// Standalone mock of the MiiCoin backend for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	MIICOIN_EMAIL=trader@miicoin.io MIICOIN_PASSWORD=secret \
//	    go run ./cmd/signalsync serve -c example/signalsync.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/miicoin/signalsync/example/mockbackend"
)

const addr = ":5000"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	backend := mockbackend.New(mockbackend.Options{FailEvery: 5, Logger: logger})
	backend.AddUser("trader@miicoin.io", "secret", "Trader")

	fmt.Println("Mock MiiCoin backend starting on " + addr)
	fmt.Println("Demo account: trader@miicoin.io / secret")
	fmt.Println("Every 5th /api/signals request answers HTTP 500")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	srv := &http.Server{Addr: addr, Handler: backend, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
