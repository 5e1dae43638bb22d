package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-dsu/steam-dsu-bridge/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"decoded", snap.Decoded,
					"malformed", snap.Malformed,
					"sent", snap.Sent,
					"fanned_out", snap.FannedOut,
					"evictions", snap.Evictions,
					"clients", snap.Clients,
					"slots", snap.Slots,
					"fanout_last", snap.FanoutLast,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
