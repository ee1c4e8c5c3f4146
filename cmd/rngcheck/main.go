package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtding233/seedpool/internal/cmd/rngcheck"
)

func main() {
	cfg, err := rngcheck.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ok, err := rngcheck.Run(ctx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("rngcheck: %v", err)
	}
	if !ok {
		os.Exit(2)
	}
}
