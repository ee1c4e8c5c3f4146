package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtding233/seedpool/internal/app"
	"github.com/xtding233/seedpool/internal/config"
)

func main() {
	env, err := config.ParseEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := app.NewLogger(env.LogLevel, env.LogJSON, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{Env: env, Logger: logger})
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
