package main

import (
	"log/slog"
	"os"

	"github.com/go-dsu/steam-dsu-bridge/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	l := logging.New(format, logging.ParseLevel(level), os.Stderr)
	logging.Set(l)
	return l
}
