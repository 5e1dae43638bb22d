package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-dsu/steam-dsu-bridge/internal/dsuserver"
	"github.com/go-dsu/steam-dsu-bridge/internal/serialreplay"
)

// initBackend selects the controller backend, installs it in the server's
// first free slot, and returns a cleanup function. It returns an error
// instead of exiting the process so the caller can shut down gracefully.
func initBackend(ctx context.Context, cfg *appConfig, srv *dsuserver.Server, l *slog.Logger) (func(), error) {
	switch cfg.backend {
	case "replay":
		return initReplayBackend(ctx, cfg, srv, l)
	case "none":
		return func() {}, nil
	default:
		return func() {}, fmt.Errorf("unknown backend %q (use none|replay)", cfg.backend)
	}
}

func initReplayBackend(ctx context.Context, cfg *appConfig, srv *dsuserver.Server, l *slog.Logger) (func(), error) {
	port, err := serialreplay.Open(cfg.replayPath, cfg.replayBaud, cfg.replayReadTO)
	if err != nil {
		return func() {}, fmt.Errorf("open replay port %s: %w", cfg.replayPath, err)
	}
	producer := serialreplay.New(ctx, port, 16)
	idx, ok := srv.AddController(ctx, producer)
	if !ok {
		_ = producer.Close()
		return func() {}, fmt.Errorf("no free controller slot for replay backend")
	}
	l.Info("replay_backend_started", "path", cfg.replayPath, "slot", idx)
	return func() { _ = producer.Close() }, nil
}
