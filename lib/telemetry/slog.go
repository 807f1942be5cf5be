package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog sets the default slog logger to a text handler on stderr, at debug
// level when verbose is set.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
