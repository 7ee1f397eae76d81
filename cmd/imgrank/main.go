package main

import (
	"log/slog"
	"os"

	"github.com/pixelsort/imgrank/cmd/imgrank/commands"
)

func main() {
	// Structured logs go to stderr so they don't interleave with command output.
	// The level is raised or lowered once config is loaded.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: commands.LogLevel,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
