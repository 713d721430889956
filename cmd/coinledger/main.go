package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/config"
	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/server"
	"github.com/25x8/coinledger/internal/coinledger/tracing"
)

func main() {
	// Load configuration
	cfg := config.NewConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	shutdownTracing := tracing.Init(context.Background(), log, tracing.Config{
		ServiceName: "coinledger",
		Environment: cfg.LogMode,
	})

	// Create and run server
	srv := server.NewServer(cfg, log)
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := srv.Init(initCtx); err != nil {
		log.Fatal("server init error", "error", err)
	}
	initCancel()

	go func() {
		if err := srv.Run(); err != nil {
			log.Fatal("server error", "error", err)
		}
	}()

	// Wait for termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Warn("tracing shutdown error", "error", err)
	}

	log.Info("server stopped")
}
