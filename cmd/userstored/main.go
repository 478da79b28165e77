// Command userstored runs the user store daemon: the HTTP API, the TCP
// storage server and the session inactivity watcher.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/celerix-dev/celerix-users/internal/config"
	"github.com/celerix-dev/celerix-users/internal/logger"
)

func main() {
	cfg, _, err := config.Load("userstored", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("can't initialize app", "error", err)
		os.Exit(1)
	}

	log.Info("starting user store daemon", "backend", cfg.Backend, "origin", cfg.Origin)
	if err := app.Run(ctx); err != nil {
		os.Exit(1)
	}
}
