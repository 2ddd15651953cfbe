// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/syrphid-receiver/internal/bootstrap"
	"github.com/adiadia/syrphid-receiver/internal/config"
	"github.com/adiadia/syrphid-receiver/internal/logging"
	httptransport "github.com/adiadia/syrphid-receiver/internal/transport/http"
	wstransport "github.com/adiadia/syrphid-receiver/internal/transport/ws"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
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

	out, closeOut, err := logging.Output(cfg.LogFile, os.Stdout)
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

	ws := wstransport.New(wstransport.Deps{
		Store:      pipeline.Store,
		Dispatcher: pipeline.Dispatcher,
		Logger:     logger,
	})

	handler := httptransport.NewRouter(httptransport.Deps{
		WebSocket: ws,
		Readiness: pipeline.Database,
		Logger:    logger,
		AuthToken: cfg.AuthToken,
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("receiver listening",
			"addr", cfg.Addr(),
			"dialect", pipeline.Database.Dialect,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("server failed", "error", err)
		pipeline.Close()
		os.Exit(1)
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	// Upgraded connections are hijacked and invisible to srv.Shutdown.
	if err := ws.Shutdown(shutdownCtx); err != nil {
		logger.Error("websocket shutdown error", "error", err, "open_connections", ws.Active())
	}
}
