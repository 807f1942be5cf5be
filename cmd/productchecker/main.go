package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"productchecker/cmd/productchecker/commands"
	"productchecker/lib/telemetry"
)

func main() {
	os.Exit(run())
}

// run returns the exit code only after telemetry has been flushed.
func run() int {
	ctx := context.Background()

	otel, err := telemetry.SetupFromEnv(ctx, "productchecker")
	if err != nil {
		slog.Warn("failed to setup telemetry, continuing without it", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := otel.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}()

	err = commands.ExecuteContext(ctx)
	if err != nil {
		return 1
	}
	return 0
}
