package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/go-dsu/steam-dsu-bridge/internal/dsuserver"
	"github.com/go-dsu/steam-dsu-bridge/internal/metrics"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, metrics_logger.go, mdns.go, backend.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("dsu-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	srv := dsuserver.NewServer(
		dsuserver.WithListenAddr(cfg.listenAddr),
		dsuserver.WithClientTimeout(cfg.clientTimeout),
		dsuserver.WithSocketTuning(cfg.socketTune),
		dsuserver.WithLogger(l),
	)

	cleanupBackend, err := initBackend(ctx, cfg, srv, l)
	if err != nil {
		l.Error("backend_init_error", "error", err)
		return
	}

	if err := srv.Start(ctx); err != nil {
		l.Error("dsu_listen_error", "error", err)
		cleanupBackend()
		return
	}

	go func() {
		for {
			select {
			case err, ok := <-srv.Errors():
				if !ok {
					return
				}
				l.Warn("dsu_runtime_error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		addr := srv.Addr()
		var portNum int
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		if portNum == 0 {
			if lastColon := strings.LastIndex(addr, ":"); lastColon >= 0 {
				if pn, perr := strconv.Atoi(addr[lastColon+1:]); perr == nil {
					portNum = pn
				}
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	srv.Stop()
	cleanupBackend()
	wg.Wait()
}
