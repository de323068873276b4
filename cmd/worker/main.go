package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tricktime/tricktime/cmd/tricktime/cli"
	"github.com/tricktime/tricktime/internal/app"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.RunWorker(ctx); err != nil {
		slog.Default().Error("worker", slog.Any("error", err))
		os.Exit(1)
	}
}
