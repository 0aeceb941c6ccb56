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

	webAdapter "enrollment-reconciler/internal/adapters/web"
	"enrollment-reconciler/internal/app"
	"enrollment-reconciler/internal/config"
	"enrollment-reconciler/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog := logger.Must(cfg.Log)
	defer func() { _ = zlog.Sync() }()

	if cfg.Server.JWTSecret == "" {
		zlog.Fatal("server.jwt_secret is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := app.Bootstrap(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("startup failed", zap.Error(err))
	}
	defer cleanup()

	loc, _ := cfg.App.Location()
	handler := webAdapter.NewHandler(svc, zlog.Named("http"), loc, cfg.Server.AllowedOrigins, cfg.Server.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zlog.Info("server starting", zap.String("addr", srv.Addr), zap.String("mode", string(cfg.App.Mode)))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zlog.Fatal("server", zap.Error(err))
	}
}
