package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"enrollment-reconciler/internal/adapters/cli"
	"enrollment-reconciler/internal/adapters/repl"
	"enrollment-reconciler/internal/app"
	"enrollment-reconciler/internal/config"
	"enrollment-reconciler/internal/lock"
	"enrollment-reconciler/internal/logger"

	"go.uber.org/zap"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		fmt.Println(cli.Usage)
		fmt.Println("  console                               interactive operator session")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog := logger.Must(cfg.Log)
	defer func() { _ = zlog.Sync() }()
	if cfg.ModeFallback != "" {
		zlog.Warn("unknown app.mode, running in PRODUCTION", zap.String("configured", cfg.ModeFallback))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := app.Bootstrap(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("startup failed", zap.Error(err))
	}

	loc, _ := cfg.App.Location()
	runner := &cli.Runner{Svc: svc, Out: os.Stdout, Loc: loc, Now: time.Now}
	if len(args) > 0 && args[0] == "console" {
		console := &repl.Console{Runner: runner, In: bufio.NewReader(os.Stdin), Out: os.Stdout, Mode: string(cfg.App.Mode)}
		console.Run(ctx)
		cleanup()
		return
	}
	err = runner.Run(ctx, args)
	cleanup()
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			zlog.Warn("another run holds the lock, exiting")
			os.Exit(2)
		}
		zlog.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
