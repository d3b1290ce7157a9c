package logging

import (
	"log/slog"
	"os"
)

// Setup installs a JSON slog logger on stdout. Level "debug" enables debug output.
func Setup(level string) {
	lvl := slog.LevelInfo
	if level == "debug" {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(NewStdoutHandler(lvl)))
}

func NewStdoutHandler(level slog.Level) slog.Handler {
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
}
