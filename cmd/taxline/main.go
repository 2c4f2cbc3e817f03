package main

import (
	"log/slog"
	"os"

	"github.com/taxline/taxline/internal/cli"
)

func main() {
	level := slog.LevelWarn
	for _, arg := range os.Args[1:] {
		if arg == "-v" || arg == "--verbose" {
			level = slog.LevelDebug
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(cli.GetExitCode(err))
	}
}
