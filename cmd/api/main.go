package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ayolclub/travel-auth/internal/di"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := di.InitializeApp(ctx)
	if err != nil {
		slog.Error("api bootstrap failed", "error", err)
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		a.Logger.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
	a.Logger.Info("api stopped")
}
