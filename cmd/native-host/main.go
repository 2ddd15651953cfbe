// SPDX-License-Identifier: Apache-2.0

// Command native-host is the browser native messaging host. Frames arrive on
// stdin and status frames leave on stdout, so logs go to stderr or LOG_FILE.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adiadia/syrphid-receiver/internal/bootstrap"
	"github.com/adiadia/syrphid-receiver/internal/config"
	"github.com/adiadia/syrphid-receiver/internal/logging"
	nativehost "github.com/adiadia/syrphid-receiver/internal/transport/native"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	out, closeOut, err := logging.Output(cfg.LogFile, os.Stderr)
	if err != nil {
		log.Fatalf("open log file: %v", err)
	}
	defer closeOut()
	logger := logging.NewLogger(cfg.Env, cfg.LogLevel, out)

	pipeline, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("pipeline setup failed", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	host := nativehost.New(nativehost.Deps{
		Store:        pipeline.Store,
		Dispatcher:   pipeline.Dispatcher,
		Logger:       logger,
		IdleInterval: cfg.NativeIdleInterval,
	})

	if err := host.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("native host failed", "error", err)
		pipeline.Close()
		os.Exit(1)
	}
}
